package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"printbridge/internal/job"
)

// Result is the outcome of one print invocation. A non-zero ExitCode
// with captured output is a retryable print failure, not a Go error.
type Result struct {
	ExitCode int
	Output   string
}

// Invoker renders one artifact on a physical printer. Implementations
// must not mutate job state; the worker owns all transitions.
type Invoker interface {
	Invoke(ctx context.Context, artifactPath, printerName string, opts job.Options) (Result, error)
}

// CommandInvoker shells out to the external print script:
//
//	<interpreter> <script> <artifact> <printer> <options-json>
//
// Exit code 0 means the page came out; anything else is returned with
// the combined stdout/stderr as diagnostic detail.
type CommandInvoker struct {
	Interpreter string
	Script      string
}

func (ci *CommandInvoker) Invoke(ctx context.Context, artifactPath, printerName string, opts job.Options) (Result, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode print options: %w", err)
	}

	cmd := exec.CommandContext(ctx, ci.Interpreter, ci.Script, artifactPath, printerName, string(optsJSON))
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err = cmd.Run()
	result := Result{Output: output.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run print command: %w", err)
	}
	return result, nil
}
