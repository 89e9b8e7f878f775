package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	_, err := Run(context.Background(), []string{scriptPath, outputPath}, "hello from huddle")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "hello from huddle", string(data))
}

func TestRunCapturesStdout(t *testing.T) {
	result, err := Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, "")
	require.NoError(t, err)
	require.Equal(t, "out\n", string(result.Stdout))
	require.Equal(t, "err\n", string(result.Stderr))
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	_, err := Run(context.Background(), nil, "payload")
	require.Error(t, err)
	require.Contains(t, err.Error(), "argv cannot be empty")
}

func TestRunReportsExitCodeAndStderr(t *testing.T) {
	failScript := writeFailScript(t, "conversion failed")

	result, err := Run(context.Background(), []string{failScript}, "")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 3, exitErr.Code)
	require.Equal(t, 3, result.ExitCode)
	require.Contains(t, err.Error(), "exited with code 3: conversion failed")
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), []string{"definitely-not-a-real-binary"}, "")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, []string{"sleep", "5"}, "")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTailTruncatesLongStderr(t *testing.T) {
	long := strings.Repeat("x", stderrTail+10)
	require.True(t, strings.HasPrefix(tail(long), "..."))
	require.Len(t, tail(long), stderrTail+3)
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "capture-stdin.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
cat > "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho " + "\"" + message + "\"" + " >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
