package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printbridge/internal/config"
	"printbridge/internal/job"
)

func testClient(baseURL string) *Client {
	return NewClient(config.AgentConfig{
		BaseURL:         baseURL,
		APIKey:          "agent-key",
		RequestTimeout:  5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	})
}

func TestPendingJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/print/pending", r.URL.Path)
		assert.Equal(t, "agent-key", r.Header.Get("X-API-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"job_id": "PJ-20240115-AAAAAA", "filename": "a.pdf", "status": 1, "attempts": 2},
			},
		})
	}))
	defer srv.Close()

	jobs, err := testClient(srv.URL).PendingJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "PJ-20240115-AAAAAA", jobs[0].JobID)
	assert.Equal(t, job.StatusPending, jobs[0].Status)
	assert.Equal(t, 2, jobs[0].Attempts)
}

func TestPendingJobsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "database unavailable"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PendingJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestUpdateStatus(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/print/update/PJ-20240115-AAAAAA", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	err := testClient(srv.URL).UpdateStatus(context.Background(), "PJ-20240115-AAAAAA", job.StatusPending, "printer jam")
	require.NoError(t, err)
	assert.Equal(t, float64(job.StatusPending), got["status"])
	assert.Equal(t, "printer jam", got["error_message"])
}

func TestUpdateStatusOmitsEmptyErrorMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).UpdateStatus(context.Background(), "PJ-20240115-AAAAAA", job.StatusProcessing, ""))
	_, present := got["error_message"]
	assert.False(t, present)
}

func TestUpdateStatusConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "job status changed concurrently"})
	}))
	defer srv.Close()

	err := testClient(srv.URL).UpdateStatus(context.Background(), "PJ-20240115-AAAAAA", job.StatusProcessing, "")
	assert.ErrorIs(t, err, job.ErrConflict)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/print/download/PJ-20240115-AAAAAA", r.URL.Path)
		w.Write([]byte("%PDF-1.4 payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "PJ-20240115-AAAAAA_a.pdf")
	require.NoError(t, testClient(srv.URL).Download(context.Background(), "PJ-20240115-AAAAAA", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 payload", string(data))
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "Artifact not found"})
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "missing.pdf")
	err := testClient(srv.URL).Download(context.Background(), "PJ-20240115-AAAAAA", dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file must be left behind on failure")
}

func TestDownloadRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "empty.pdf")
	err := testClient(srv.URL).Download(context.Background(), "PJ-20240115-AAAAAA", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}
