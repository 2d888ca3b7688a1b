package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"printbridge/internal/config"
	"printbridge/internal/job"
)

// API is the slice of the print server the worker needs. *Client
// implements it; tests substitute a fake.
type API interface {
	PendingJobs(ctx context.Context) ([]job.PrintJob, error)
	UpdateStatus(ctx context.Context, jobID string, status job.Status, errorMessage string) error
	Download(ctx context.Context, jobID, dest string) error
}

// Worker drives Pending jobs to Printed, one at a time. It holds no
// state between invocations; everything it knows about a job comes
// from the server on each pass.
type Worker struct {
	api     API
	invoker Invoker
	cfg     config.AgentConfig
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

func NewWorker(api API, invoker Invoker, cfg config.AgentConfig, logger *slog.Logger) *Worker {
	return &Worker{
		api:     api,
		invoker: invoker,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// RunOnce performs a single polling pass: purge stale temp files, list
// Pending jobs, process each strictly in order. Per-job failures are
// contained; only a failure to list at all is fatal and returned so
// the process can exit non-zero for the scheduler.
func (w *Worker) RunOnce(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	w.purgeTempFiles()

	jobs, err := w.api.PendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}

	w.logger.Info("polling pass started", "pending", len(jobs))

	for i := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.processJob(ctx, &jobs[i])
		// Throttle the physical printer and the API between jobs.
		w.sleep(ctx, w.cfg.JobDelay)
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, j *job.PrintJob) {
	log := w.logger.With("job_id", j.JobID, "filename", j.Filename)

	if w.cfg.MaxAttempts > 0 && j.Attempts >= w.cfg.MaxAttempts {
		log.Warn("attempt cap reached, skipping job", "attempts", j.Attempts)
		return
	}

	// Claim. A conflict means another worker got there first; any
	// other failure means the store is unreachable. Either way the job
	// stays as-is for the next cycle.
	if err := w.api.UpdateStatus(ctx, j.JobID, job.StatusProcessing, ""); err != nil {
		if errors.Is(err, job.ErrConflict) {
			log.Info("job already claimed, skipping")
		} else {
			log.Error("claim failed", "error", err)
		}
		return
	}

	tempPath := filepath.Join(w.cfg.TempDir, j.JobID+"_"+sanitizeFilename(j.Filename))

	if err := w.api.Download(ctx, j.JobID, tempPath); err != nil {
		log.Error("artifact fetch failed", "error", err)
		w.release(ctx, j.JobID, fmt.Sprintf("artifact fetch failed: %v", err))
		return
	}

	printer := j.PrinterName
	if printer == "" || printer == "default" {
		printer = w.cfg.DefaultPrinter
	}

	log.Info("printing", "printer", printer, "copies", j.Copies)

	result, err := w.invoker.Invoke(ctx, tempPath, printer, j.Options())
	if err != nil {
		// The command never ran; keep the temp file for diagnosis.
		log.Error("print invocation failed", "error", err)
		w.release(ctx, j.JobID, fmt.Sprintf("print invocation failed: %v", err))
		return
	}

	if result.ExitCode != 0 {
		log.Error("print command failed", "exit_code", result.ExitCode, "output", result.Output)
		w.release(ctx, j.JobID, fmt.Sprintf("print command exited %d: %s", result.ExitCode, result.Output))
		return
	}

	if err := w.reportPrinted(ctx, j.JobID); err != nil {
		// The page is out but the server missed it. A job left in
		// Processing never comes back through the Pending listing, so
		// release it and accept the duplicate print next cycle.
		log.Error("completion report failed, releasing for reprint", "error", err)
		w.release(ctx, j.JobID, fmt.Sprintf("completion report failed: %v", err))
		return
	}

	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		log.Warn("temp file cleanup failed", "path", tempPath, "error", err)
	}

	log.Info("job printed")
}

// reportPrinted marks the job Printed, retrying once on a transient
// failure before the caller gives up and releases the job.
func (w *Worker) reportPrinted(ctx context.Context, jobID string) error {
	err := w.api.UpdateStatus(ctx, jobID, job.StatusPrinted, "")
	if err == nil {
		return nil
	}
	w.logger.Warn("completion report failed, retrying", "job_id", jobID, "error", err)
	return w.api.UpdateStatus(ctx, jobID, job.StatusPrinted, "")
}

// release sends a job back to Pending with a failure reason. Errors
// here are only logged; the job will be recovered by the temp-file
// purge and the next polling pass.
func (w *Worker) release(ctx context.Context, jobID, reason string) {
	if err := w.api.UpdateStatus(ctx, jobID, job.StatusPending, reason); err != nil {
		w.logger.Error("failed to release job", "job_id", jobID, "error", err)
	}
}

// purgeTempFiles removes downloads older than the configured age,
// regardless of job status. This catches orphans left by crashed runs.
func (w *Worker) purgeTempFiles() {
	cutoff := time.Now().Add(-w.cfg.TempMaxAge)

	entries, err := os.ReadDir(w.cfg.TempDir)
	if err != nil {
		w.logger.Warn("temp directory scan failed", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(w.cfg.TempDir, entry.Name())
			if err := os.Remove(path); err != nil {
				w.logger.Warn("temp file purge failed", "path", path, "error", err)
				continue
			}
			w.logger.Info("purged stale temp file", "path", path)
		}
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
