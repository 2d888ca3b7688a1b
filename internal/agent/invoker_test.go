//go:build !windows

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printbridge/internal/job"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "print.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCommandInvokerSuccess(t *testing.T) {
	script := writeScript(t, `echo "printed $1 on $2 with $3"`)
	ci := &CommandInvoker{Interpreter: "/bin/sh", Script: script}

	opts := job.Options{PaperSize: "A4", ColorMode: "color", PageRange: "all", Copies: 2}
	result, err := ci.Invoke(context.Background(), "/tmp/doc.pdf", "OfficePrinter", opts)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "printed /tmp/doc.pdf on OfficePrinter")
	assert.Contains(t, result.Output, `"copies":2`)
}

func TestCommandInvokerNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "lp: printer not responding" >&2; exit 3`)
	ci := &CommandInvoker{Interpreter: "/bin/sh", Script: script}

	result, err := ci.Invoke(context.Background(), "/tmp/doc.pdf", "OfficePrinter", job.Options{Copies: 1})
	require.NoError(t, err, "a failing print command is a result, not an error")

	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "lp: printer not responding")
}

func TestCommandInvokerMissingInterpreter(t *testing.T) {
	ci := &CommandInvoker{Interpreter: "/nonexistent/interpreter", Script: "whatever.py"}

	_, err := ci.Invoke(context.Background(), "/tmp/doc.pdf", "OfficePrinter", job.Options{Copies: 1})
	assert.Error(t, err)
}
