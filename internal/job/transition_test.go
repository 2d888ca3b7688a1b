package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingJob() *PrintJob {
	return &PrintJob{
		JobID:      "PJ-20240115-ABC123",
		Filename:   "report.pdf",
		Status:     StatusPending,
		UploadedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestTransitionClaim(t *testing.T) {
	j := pendingJob()
	now := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)

	err := Transition(j, StatusProcessing, now, "")
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, j.Status)
	require.NotNil(t, j.ProcessedAt)
	assert.Equal(t, now, *j.ProcessedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Equal(t, 1, j.Attempts)
	assert.Empty(t, j.ErrorMessage)
}

func TestTransitionComplete(t *testing.T) {
	j := pendingJob()
	claimed := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)
	done := time.Date(2024, 1, 15, 9, 6, 0, 0, time.UTC)

	require.NoError(t, Transition(j, StatusProcessing, claimed, ""))
	require.NoError(t, Transition(j, StatusPrinted, done, ""))

	assert.Equal(t, StatusPrinted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, done, *j.CompletedAt)
	assert.Empty(t, j.ErrorMessage)
}

func TestTransitionRetryableFailure(t *testing.T) {
	j := pendingJob()
	now := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)

	require.NoError(t, Transition(j, StatusProcessing, now, ""))
	require.NoError(t, Transition(j, StatusPending, now.Add(time.Minute), "lp: printer not responding"))

	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, "lp: printer not responding", j.ErrorMessage)
	assert.Nil(t, j.CompletedAt)
	// processed_at stays from the failed attempt until the next claim
	// overwrites it.
	require.NotNil(t, j.ProcessedAt)
	assert.Equal(t, now, *j.ProcessedAt)
}

func TestTransitionRetryOverwritesProcessedAtAndClearsError(t *testing.T) {
	j := pendingJob()
	first := time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC)
	second := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)

	require.NoError(t, Transition(j, StatusProcessing, first, ""))
	require.NoError(t, Transition(j, StatusPending, first.Add(time.Minute), "jam"))
	require.NoError(t, Transition(j, StatusProcessing, second, ""))

	assert.Equal(t, second, *j.ProcessedAt)
	assert.Empty(t, j.ErrorMessage)
	assert.Equal(t, 2, j.Attempts)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	cases := []struct {
		name   string
		from   Status
		target Status
	}{
		{"pending to printed", StatusPending, StatusPrinted},
		{"pending to pending", StatusPending, StatusPending},
		{"printed to pending", StatusPrinted, StatusPending},
		{"printed to processing", StatusPrinted, StatusProcessing},
		{"printed to printed", StatusPrinted, StatusPrinted},
		{"processing to processing", StatusProcessing, StatusProcessing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := pendingJob()
			j.Status = tc.from
			before := *j

			err := Transition(j, tc.target, time.Now(), "")
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, *j, "job must be unchanged after a rejected transition")
		})
	}
}

func TestTransitionRejectsUndefinedStatusCode(t *testing.T) {
	j := pendingJob()
	before := *j

	err := Transition(j, Status(7), time.Now(), "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, *j)
}
