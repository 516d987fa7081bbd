package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes a single external process invocation.
type Cmd struct {
	Name string
	Args []string
	// Env holds KEY=VALUE overrides applied on top of the current environment.
	Env []string
	Dir string
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures everything a finished process produced.
type Result struct {
	Cmd      Cmd
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Failed reports whether the process wrote to stderr or exited non-zero.
// Release tooling treats either as fatal.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || len(r.Stderr) > 0
}

// Err returns a *ResultError when the process failed and nil otherwise.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return &ResultError{Result: r}
}

// ResultError wraps a failed Result so callers can inspect the captured output.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	msg := strings.TrimSpace(string(e.Result.Stderr))
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.Result.ExitCode)
	}
	return fmt.Sprintf("%s: %s", e.Result.Cmd.Name, msg)
}

// Runner executes commands synchronously.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ExecRunner runs commands with os/exec, echoing output while capturing it.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run starts the command and blocks until it exits. The returned error is non-nil only
// when the process could not be started or waited on; a process that ran and failed is
// reported through Result.Err.
func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	if c.Name == "" {
		return Result{}, errors.New("command name is required")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = teeTo(&stdout, r.Stdout)
	cmd.Stderr = teeTo(&stderr, r.Stderr)

	res := Result{Cmd: c}
	err := cmd.Run()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run %s: %w", c.Name, err)
	}
	return res, nil
}

func teeTo(buf *bytes.Buffer, echo io.Writer) io.Writer {
	if echo == nil {
		return buf
	}
	return io.MultiWriter(buf, echo)
}

// Output runs the command and returns its trimmed stdout, failing on any stderr output.
func Output(ctx context.Context, r Runner, c Cmd) (string, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
