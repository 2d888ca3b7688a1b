package job

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a print job. The integer values are
// the wire codes used by the HTTP API and stored in the database, so
// they must not be renumbered.
type Status int

const (
	StatusPending    Status = 1
	StatusProcessing Status = 2
	StatusPrinted    Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusProcessing:
		return "Processing"
	case StatusPrinted:
		return "Printed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPrinted:
		return true
	}
	return false
}

// ParseStatus converts a wire code into a Status, rejecting anything
// outside the closed set.
func ParseStatus(code int) (Status, error) {
	s := Status(code)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: unknown status code %d", ErrInvalidTransition, code)
	}
	return s, nil
}

// PrintJob is one request to print a stored PDF. Everything except
// Status, Attempts, ErrorMessage and the transition timestamps is
// immutable after creation.
type PrintJob struct {
	ID           int64      `json:"-"`
	JobID        string     `json:"job_id"`
	Filename     string     `json:"filename"`
	Filepath     string     `json:"-"`
	FileSize     int64      `json:"file_size"`
	PaperSize    string     `json:"paper_size"`
	ColorMode    string     `json:"color_mode"`
	PageRange    string     `json:"page_range"`
	Copies       int        `json:"copies"`
	PrinterName  string     `json:"printer_name"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	QRCode       string     `json:"-"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Options is the print-option object handed to the external print
// command as its JSON argument.
type Options struct {
	PaperSize string `json:"paper_size"`
	ColorMode string `json:"color_mode"`
	PageRange string `json:"page_range"`
	Copies    int    `json:"copies"`
}

// Options returns the invoker options captured at submission time.
func (j *PrintJob) Options() Options {
	return Options{
		PaperSize: j.PaperSize,
		ColorMode: j.ColorMode,
		PageRange: j.PageRange,
		Copies:    j.Copies,
	}
}

const (
	MinCopies = 1
	MaxCopies = 10

	DefaultPageRange = "all"
)

var paperSizes = map[string]bool{
	"A4":     true,
	"A3":     true,
	"Letter": true,
	"Legal":  true,
}

var colorModes = map[string]bool{
	"color":     true,
	"grayscale": true,
}

// ValidateOptions checks the print options supplied at submission.
// These are validated once here and never re-validated downstream.
func ValidateOptions(paperSize, colorMode string, copies int) error {
	if !paperSizes[paperSize] {
		return fmt.Errorf("%w: paper_size must be one of A4, A3, Letter, Legal", ErrValidation)
	}
	if !colorModes[colorMode] {
		return fmt.Errorf("%w: color_mode must be color or grayscale", ErrValidation)
	}
	if copies < MinCopies || copies > MaxCopies {
		return fmt.Errorf("%w: copies must be between %d and %d", ErrValidation, MinCopies, MaxCopies)
	}
	return nil
}
