// Package compose drives the `docker compose` command line and reads
// compose files. It never talks to the Docker daemon directly.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ErrTimeout is returned when a compose command exceeds its deadline.
var ErrTimeout = errors.New("compose command timed out")

// ExitError is returned when a compose command exits non-zero or cannot be
// started at all (Code is -1 then).
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("compose %s failed (exit %d): %s", strings.Join(e.Args, " "), e.Code, msg)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Command is one compose invocation. Args follow "compose", e.g.
// {"up", "-d"}.
type Command struct {
	Dir  string
	Env  []string // full environment; nil inherits the current process
	Args []string
}

// Runner executes compose commands. Output returns stdout once the command
// has finished; Stream returns combined stdout/stderr as it is produced.
type Runner interface {
	Output(ctx context.Context, cmd Command) ([]byte, error)
	Stream(ctx context.Context, cmd Command) (io.ReadCloser, error)
}

// CLI runs `<binary> compose ...` subprocesses.
type CLI struct {
	binary string
	logger *log.Logger
}

func NewCLI(binary string, logger *log.Logger) *CLI {
	return &CLI{binary: binary, logger: logger.With("component", "compose")}
}

// waitDelay bounds how long Wait lingers on output pipes after the
// command was killed.
const waitDelay = 2 * time.Second

// command builds the subprocess. Cancelling ctx kills the whole process
// group: the docker CLI runs compose as a child plugin, and killing only
// the direct child leaves the plugin holding the output pipes.
func (c *CLI) command(ctx context.Context, cmd Command) *exec.Cmd {
	args := append([]string{"compose"}, cmd.Args...)
	ec := exec.CommandContext(ctx, c.binary, args...)
	ec.Dir = cmd.Dir
	ec.Env = cmd.Env
	ec.WaitDelay = waitDelay
	killGroupOnCancel(ec)
	return ec
}

func (c *CLI) Output(ctx context.Context, cmd Command) ([]byte, error) {
	ec := c.command(ctx, cmd)
	var stdout, stderr bytes.Buffer
	ec.Stdout = &stdout
	ec.Stderr = &stderr

	start := time.Now()
	err := ec.Run()
	c.logger.Debug("compose", "args", cmd.Args, "dir", cmd.Dir, "took", time.Since(start).Round(time.Millisecond), "err", err)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.Bytes(), fmt.Errorf("%w: compose %s", ErrTimeout, strings.Join(cmd.Args, " "))
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stdout.Bytes(), &ExitError{Args: cmd.Args, Code: code, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Stream starts the command and returns a reader over its combined output.
// Closing the reader kills the command.
func (c *CLI) Stream(ctx context.Context, cmd Command) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	ec := c.command(ctx, cmd)

	pr, pw := io.Pipe()
	ec.Stdout = pw
	ec.Stderr = pw

	if err := ec.Start(); err != nil {
		cancel()
		_ = pw.Close()
		return nil, &ExitError{Args: cmd.Args, Code: -1, Err: err}
	}
	c.logger.Debug("compose stream", "args", cmd.Args, "dir", cmd.Dir, "pid", ec.Process.Pid)

	go func() {
		err := ec.Wait()
		if err != nil && ctx.Err() == nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	return &stream{PipeReader: pr, cancel: cancel}, nil
}

type stream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *stream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}
