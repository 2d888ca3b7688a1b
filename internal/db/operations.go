package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"printbridge/internal/job"
)

// HistoryFilter narrows and paginates the job history listing. Nil
// date bounds are not applied; Status 0 means any status.
type HistoryFilter struct {
	Status   job.Status
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// Jobs provides all persistence operations for print jobs.
type Jobs struct {
	db *sql.DB
}

func NewJobs(database *sql.DB) *Jobs {
	return &Jobs{db: database}
}

func (o *Jobs) Create(ctx context.Context, j *job.PrintJob) error {
	result, err := o.db.ExecContext(ctx, insertJob,
		j.JobID, j.Filename, j.Filepath, j.FileSize,
		j.PaperSize, j.ColorMode, j.PageRange, j.Copies, j.PrinterName,
		int(j.Status), j.Attempts, j.ErrorMessage, j.QRCode, j.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job row id: %w", err)
	}
	j.ID = id
	return nil
}

func (o *Jobs) GetByJobID(ctx context.Context, jobID string) (*job.PrintJob, error) {
	row := o.db.QueryRowContext(ctx, getJobByJobID, jobID)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// JobIDExists reports whether a job id is already taken. The id format
// is only probabilistically unique, so submission checks here before
// accepting one.
func (o *Jobs) JobIDExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	if err := o.db.QueryRowContext(ctx, jobIDExists, jobID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check job id: %w", err)
	}
	return exists, nil
}

// ListByStatus returns all jobs in the given status ordered by
// uploaded_at ascending, oldest first.
func (o *Jobs) ListByStatus(ctx context.Context, status job.Status) ([]*job.PrintJob, error) {
	rows, err := o.db.QueryContext(ctx, listJobsByStatus, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// History returns one page of jobs matching the filter, newest first,
// along with the total number of matches.
func (o *Jobs) History(ctx context.Context, filter HistoryFilter) ([]*job.PrintJob, int, error) {
	var conds []string
	var args []any

	if filter.Status != 0 {
		conds = append(conds, "status = ?")
		args = append(args, int(filter.Status))
	}
	if filter.FromDate != nil {
		conds = append(conds, "uploaded_at >= ?")
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conds = append(conds, "uploaded_at <= ?")
		args = append(args, *filter.ToDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM print_jobs" + where
	if err := o.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	listQuery := "SELECT " + jobColumns + " FROM print_jobs" + where +
		" ORDER BY uploaded_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := o.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var jobs []*job.PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// UpdateStatus persists a transition already applied to j by the
// lifecycle engine. prev must be the status the row held before the
// transition; if the row no longer holds it the update is a no-op and
// ErrConflict is returned.
func (o *Jobs) UpdateStatus(ctx context.Context, j *job.PrintJob, prev job.Status) error {
	var processedAt, completedAt any
	if j.ProcessedAt != nil {
		processedAt = *j.ProcessedAt
	}
	if j.CompletedAt != nil {
		completedAt = *j.CompletedAt
	}

	result, err := o.db.ExecContext(ctx, updateJobStatus,
		int(j.Status), j.Attempts, j.ErrorMessage, processedAt, completedAt,
		j.JobID, int(prev))
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return job.ErrConflict
	}
	return nil
}

// UpdateError records an error message without touching the status.
func (o *Jobs) UpdateError(ctx context.Context, jobID, message string) error {
	result, err := o.db.ExecContext(ctx, updateJobError, message, jobID)
	if err != nil {
		return fmt.Errorf("failed to update error message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return job.ErrNotFound
	}
	return nil
}

// DeletePending removes the job row if it is still Pending. A job
// claimed for processing must not be deleted out from under the
// worker, so any other status is a conflict.
func (o *Jobs) DeletePending(ctx context.Context, jobID string) error {
	result, err := o.db.ExecContext(ctx, deletePendingJob, jobID, int(job.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		exists, err := o.JobIDExists(ctx, jobID)
		if err != nil {
			return err
		}
		if !exists {
			return job.ErrNotFound
		}
		return job.ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.PrintJob, error) {
	j := &job.PrintJob{}
	var status int
	var processedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.JobID, &j.Filename, &j.Filepath, &j.FileSize,
		&j.PaperSize, &j.ColorMode, &j.PageRange, &j.Copies, &j.PrinterName,
		&status, &j.Attempts, &j.ErrorMessage, &j.QRCode,
		&j.UploadedAt, &processedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	if processedAt.Valid {
		j.ProcessedAt = &processedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}
