// Package toolchain runs a stack's install and type-check commands in a working
// directory and hands their text output back to the engine.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"assemblyline/internal/lang"
)

const (
	DefaultTimeout = 5 * time.Minute
	maxOutputBytes = 256 << 10
)

// Output is what one command produced. A non-zero exit is not an error: the
// diagnostics are in Text.
type Output struct {
	Command  string        `json:"command"`
	Text     string        `json:"text"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
}

func (o Output) OK() bool { return o.Skipped || o.ExitCode == 0 }

type Toolchain interface {
	InstallDependencies(ctx context.Context, workDir string) (Output, error)
	TypeCheck(ctx context.Context, workDir string) (Output, error)
	LintAndFormat(ctx context.Context, workDir string) (Output, error)
}

// Exec runs the configured argv vectors with os/exec.
type Exec struct {
	Commands lang.Commands
	Timeout  time.Duration
	// Env is appended to the process environment.
	Env []string
}

// ForAdapter returns an Exec using the adapter's default commands. Adapters without
// commands get an Exec that skips every step.
func ForAdapter(adapter lang.Adapter, timeout time.Duration) *Exec {
	e := &Exec{Timeout: timeout}
	if c, ok := adapter.(lang.Commander); ok {
		e.Commands = c.Commands()
	}
	return e
}

func (e *Exec) InstallDependencies(ctx context.Context, workDir string) (Output, error) {
	return e.run(ctx, workDir, e.Commands.Install)
}

func (e *Exec) TypeCheck(ctx context.Context, workDir string) (Output, error) {
	return e.run(ctx, workDir, e.Commands.TypeCheck)
}

func (e *Exec) LintAndFormat(ctx context.Context, workDir string) (Output, error) {
	return e.run(ctx, workDir, e.Commands.Lint)
}

func (e *Exec) run(ctx context.Context, workDir string, argv []string) (Output, error) {
	if len(argv) == 0 {
		return Output{Skipped: true}, nil
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := Output{Command: strings.Join(argv, " ")}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), e.Env...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	out.Duration = time.Since(start)
	out.Text = truncate(buf.String())
	if ctx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("%s timed out after %s", out.Command, timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", out.Command, err)
	}
	return out, nil
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... output truncated"
}

// Noop skips every step. It backs dry runs and stacks without a toolchain.
type Noop struct{}

func (Noop) InstallDependencies(context.Context, string) (Output, error) {
	return Output{Skipped: true}, nil
}
func (Noop) TypeCheck(context.Context, string) (Output, error) { return Output{Skipped: true}, nil }
func (Noop) LintAndFormat(context.Context, string) (Output, error) {
	return Output{Skipped: true}, nil
}
