// Package shell runs the external packaging tools (strip, dpkg-deb, rpmbuild, flatpak-builder).
//
// Every invocation blocks until the process exits. There is no timeout: the
// caller's context is the only way to abort a running tool.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/etnz/app-packager/logger"
)

// outputTail is the amount of tool output kept in a ToolError.
const outputTail = 4096

// Runner executes an external command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, dir, name string, args ...string) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, dir, name string, args ...string) error {
	return f(ctx, dir, name, args...)
}

// ToolError reports an external tool that could not be started or exited non-zero.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int // -1 when the process never ran
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	cmdline := strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
	if e.ExitCode < 0 {
		return fmt.Sprintf("failed to exec %s: %v", cmdline, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", cmdline, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
// Tool output is streamed to Stdout/Stderr when set, and always captured for error reports.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	log := logger.Logger()
	log.Debugf("Exec: [%s %s] in %q", name, strings.Join(args, " "), dir)

	var captured bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = tee(&captured, r.Stdout)
	cmd.Stderr = tee(&captured, r.Stderr)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	out := captured.String()
	if len(out) > outputTail {
		out = out[len(out)-outputTail:]
	}
	if out != "" {
		log.Infof("%s output:\n%s", name, out)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ToolError{Tool: name, Args: args, ExitCode: exitErr.ExitCode(), Output: out, Err: err}
	}
	return &ToolError{Tool: name, Args: args, ExitCode: -1, Output: out, Err: err}
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
