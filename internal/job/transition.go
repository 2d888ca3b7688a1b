package job

import (
	"fmt"
	"time"
)

// Transition moves j to target if the edge is legal, stamping the
// matching timestamp and updating the error message. Legal edges:
//
//	Pending    -> Processing  (claim; processed_at stamped, attempt counted)
//	Processing -> Printed     (terminal; completed_at stamped once)
//	Processing -> Pending     (retryable failure; errMsg recorded)
//
// Any other edge returns ErrInvalidTransition and leaves j unchanged.
// The engine mutates only the passed job; persisting it is the
// caller's responsibility.
func Transition(j *PrintJob, target Status, now time.Time, errMsg string) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status code %d", ErrInvalidTransition, int(target))
	}

	legal := (j.Status == StatusPending && target == StatusProcessing) ||
		(j.Status == StatusProcessing && target == StatusPrinted) ||
		(j.Status == StatusProcessing && target == StatusPending)
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, target)
	}

	switch target {
	case StatusProcessing:
		t := now
		j.ProcessedAt = &t
		j.Attempts++
		j.ErrorMessage = ""
	case StatusPrinted:
		t := now
		j.CompletedAt = &t
		j.ErrorMessage = ""
	case StatusPending:
		j.ErrorMessage = errMsg
	}

	j.Status = target
	return nil
}
