package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"printbridge/internal/config"
	"printbridge/internal/job"
)

// Client talks to the print API from the printer's network. Status
// calls use a short timeout; artifact downloads get a much longer one
// since files may be large and the link slow.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	downloader *http.Client
}

func NewClient(cfg config.AgentConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		downloader: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// PendingJobs fetches the Pending queue, oldest upload first.
func (c *Client) PendingJobs(ctx context.Context) ([]job.PrintJob, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/print/pending", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, fmt.Errorf("pending jobs request failed: %w", err)
	}

	var jobs []job.PrintJob
	if err := json.Unmarshal(env.Data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode pending jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus reports a transition to the server. A 409 means the
// transition was rejected or lost a race and surfaces as
// job.ErrConflict so callers can skip the job without treating it as
// an outage.
func (c *Client) UpdateStatus(ctx context.Context, jobID string, status job.Status, errorMessage string) error {
	payload := map[string]any{"status": int(status)}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode status update: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/api/print/update/"+jobID, bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return job.ErrConflict
	}
	if _, err := decodeEnvelope(resp); err != nil {
		return fmt.Errorf("status update failed: %w", err)
	}
	return nil
}

// Download streams the job's artifact to dest, replacing any partial
// file left by an earlier attempt.
func (c *Client) Download(ctx context.Context, jobID, dest string) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/print/download/"+jobID, nil)
	if err != nil {
		return err
	}

	resp, err := c.downloader.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	if written == 0 {
		os.Remove(dest)
		return fmt.Errorf("downloaded artifact is empty")
	}
	return nil
}

func decodeEnvelope(resp *http.Response) (*apiEnvelope, error) {
	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("status %d: unreadable response", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, env.Message)
	}
	return &env, nil
}
