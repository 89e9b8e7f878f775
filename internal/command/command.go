// Package command runs external tools (ffmpeg, whisperx) with captured output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// stderrTail bounds how much stderr is carried in errors.
const stderrTail = 512

// Result is the captured output of one finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.Code, e.Stderr)
}

// Runner executes argv; Run is the production implementation.
type Runner func(ctx context.Context, argv []string, input string) (Result, error)

// Run executes argv, optionally writing input to stdin, and captures output.
func Run(ctx context.Context, argv []string, input string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return Result{}, fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return Result{}, fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	waitErr := cmd.Wait()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if waitErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && ctx.Err() == nil {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Name: argv[0], Code: result.ExitCode, Stderr: tail(stderr.String())}
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("wait for %s: %w", argv[0], ctx.Err())
	}
	return result, fmt.Errorf("wait for %s: %w", argv[0], waitErr)
}

// IsNotFound reports whether err means the binary could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
