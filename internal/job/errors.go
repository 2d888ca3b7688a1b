package job

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not one
	// of the legal lifecycle edges.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when no job exists for a job id.
	ErrNotFound = errors.New("print job not found")

	// ErrConflict is returned when a guarded update loses a race, e.g.
	// a claim on a job another worker already moved out of Pending.
	ErrConflict = errors.New("job status changed concurrently")

	// ErrValidation marks rejected submission input.
	ErrValidation = errors.New("validation failed")
)
