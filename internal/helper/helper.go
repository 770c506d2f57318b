// Package helper starts and stops the auxiliary process launched before the
// handshake, typically a gdbserver bound to a socket path.
package helper

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

// waitDelay bounds how long Wait keeps copying output after the helper
// exits while a grandchild still holds its stdout or stderr.
const waitDelay = time.Second

// reapTimeout bounds the wait for exit after SIGKILL.
const reapTimeout = 5 * time.Second

// Options configures Launch.
type Options struct {
	Logger *logging.Logger
	Dir    string
	Env    []string // appended to the current environment
}

// Handle is a running helper process.
type Handle struct {
	cmd    *exec.Cmd
	pid    int
	logger *logging.Logger

	done    chan struct{}
	exitErr error

	termOnce sync.Once
	termErr  error
}

// Launch runs command through the platform shell in its own process group.
// Output is streamed into the logger line by line. The helper keeps running
// after ctx is done; use Terminate to stop it.
func Launch(ctx context.Context, command string, opts Options) (*Handle, error) {
	if command == "" {
		return nil, core.ErrValidation(core.CodeMissingCommand, "empty helper command")
	}
	if err := ctx.Err(); err != nil {
		return nil, core.ErrExecution(core.CodeSpawnFailed, "launch cancelled").WithCause(err)
	}

	logger := logging.OrNop(opts.Logger).WithComponent("helper")

	// #nosec G204 -- the command line is supplied by the operator
	cmd := exec.Command(shell(), shellFlag(), command)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	configureProcAttr(cmd)

	stdout := newLineLogger(logger, "stdout")
	stderr := newLineLogger(logger, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, core.ErrExecution(core.CodeSpawnFailed, "starting helper").
			WithCause(err).
			WithDetail("command", logger.Sanitize(command))
	}

	h := &Handle{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		logger: logger.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}
	h.logger.Info("helper started", "command", command)

	go func() {
		err := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		h.exitErr = err
		close(h.done)
		if err != nil {
			h.logger.Debug("helper exited", "error", err)
		} else {
			h.logger.Debug("helper exited")
		}
	}()

	return h, nil
}

func shell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "/bin/sh"
}

func shellFlag() string {
	if runtime.GOOS == "windows" {
		return "/C"
	}
	return "-c"
}

// Pid returns the helper's process id.
func (h *Handle) Pid() int {
	return h.pid
}

// Done is closed once the helper has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the error from waiting on the helper. It is nil while the
// helper runs and after a clean exit.
func (h *Handle) ExitErr() error {
	select {
	case <-h.done:
		return h.exitErr
	default:
		return nil
	}
}

// Alive reports whether the helper is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	exists, err := process.PidExists(int32(h.pid)) // #nosec G115 -- pids fit in int32
	if err != nil {
		return false
	}
	return exists
}

// Terminate asks the helper's process group to stop and kills it if it is
// still running after grace. Only the first call acts; later calls return the
// first call's result.
func (h *Handle) Terminate(grace time.Duration) error {
	h.termOnce.Do(func() {
		h.termErr = h.terminate(grace)
	})
	return h.termErr
}

func (h *Handle) terminate(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.logger.Info("terminating helper", "grace", grace)
	if err := interruptGroup(h.cmd); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return core.ErrExecution(core.CodeTerminateFailed, "signalling helper").WithCause(err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	h.logger.Warn("helper still running after grace period, killing")
	if err := killGroup(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return core.ErrExecution(core.CodeTerminateFailed, "killing helper").WithCause(err)
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(reapTimeout):
		return core.ErrExecution(core.CodeTerminateFailed, "helper not reaped after kill")
	}
}
