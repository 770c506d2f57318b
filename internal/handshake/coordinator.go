// Package handshake drives the debugger-attach protocol: clear stale
// markers, start the helper process, then wait in turn for its socket path,
// a rendezvous peer and a pong marker, each bounded by the same poll policy.
//
// Connect never returns an error. A timeout or a failed rendezvous makes it
// return false. Setup faults are handled according to Settings.Mode.
package handshake

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/helper"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
	"github.com/hugo-lorenzo-mato/debugwait/internal/marker"
	"github.com/hugo-lorenzo-mato/debugwait/internal/poll"
	"github.com/hugo-lorenzo-mato/debugwait/internal/rendezvous"
)

// Process is the helper process owned by a coordinator.
type Process interface {
	Pid() int
	Alive() bool
	Terminate(grace time.Duration) error
}

// Launcher starts the helper process.
type Launcher func(ctx context.Context, command string, opts helper.Options) (Process, error)

func launchHelper(ctx context.Context, command string, opts helper.Options) (Process, error) {
	h, err := helper.Launch(ctx, command, opts)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Report describes the last Connect run.
type Report struct {
	ID        uuid.UUID
	State     core.State   // StateSucceeded or StateFailed once Connect returned
	Stage     core.State   // last stage entered
	Outcome   core.Outcome // rendezvous outcome, OutcomePending if not run
	Err       error        // fault or timeout that ended the run
	HelperPID int
	Duration  time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logging.OrNop(l)
	}
}

// WithPID overrides the process id written to the ping marker and sent to
// the rendezvous peer.
func WithPID(pid int) Option {
	return func(c *Coordinator) {
		c.pid = pid
	}
}

// WithLauncher replaces the function used to start the helper.
func WithLauncher(fn Launcher) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.launch = fn
		}
	}
}

// WithWatch enables or disables filesystem notifications for marker waits.
func WithWatch(enabled bool) Option {
	return func(c *Coordinator) {
		c.watch = enabled
	}
}

// Coordinator runs the handshake once and owns the helper process and
// rendezvous listener it creates.
type Coordinator struct {
	settings Settings
	logger   *logging.Logger
	pid      int
	launch   Launcher
	watch    bool
	store    *marker.Store

	connectOnce sync.Once
	result      bool

	mu       sync.Mutex
	proc     Process
	listener *rendezvous.Listener
	report   Report

	closeOnce sync.Once
	closeErr  error
}

// New creates a coordinator for settings.
func New(settings Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		settings: settings,
		logger:   logging.NewNop(),
		pid:      os.Getpid(),
		launch:   launchHelper,
		watch:    settings.Watch,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = marker.NewStore(settings.MarkerMode, c.logger)
	return c
}

// Connect runs the handshake and reports whether the caller should proceed.
// Only the first call runs; later calls return the same result.
func (c *Coordinator) Connect(ctx context.Context) bool {
	c.connectOnce.Do(func() {
		c.result = c.connect(ctx)
	})
	return c.result
}

func (c *Coordinator) connect(ctx context.Context) (ok bool) {
	id := uuid.New()
	start := time.Now()
	logger := c.logger.WithHandshake(id.String())

	c.mu.Lock()
	c.report = Report{ID: id, Stage: core.StateIdle}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during handshake", "panic", r, "stack", string(debug.Stack()))
			ok = c.fault(logger, core.ErrInternal(core.CodePanic, fmt.Sprintf("panic: %v", r)))
		}
		c.finish(ok, time.Since(start))
		logger.Info("handshake finished", "ok", ok, "duration", time.Since(start))
	}()

	if !c.settings.Enabled {
		logger.Debug("debug ping not requested")
		return true
	}
	logger.Info("starting handshake",
		"stages", c.settings.EnabledStages(),
		"policy", c.settings.Policy.String(),
		"mode", c.settings.Mode)

	if err := c.settings.Validate(); err != nil {
		return c.fault(logger, err)
	}

	passed, err := c.run(ctx, logger)
	if err != nil {
		return c.fault(logger, err)
	}
	return passed
}

// fault applies the mode's policy to a setup fault.
func (c *Coordinator) fault(logger *logging.Logger, err error) bool {
	c.setErr(err)
	if c.settings.Mode == ModeStrict {
		logger.Error("cannot start debugger", "error", err)
		return false
	}
	logger.Error("cannot start debugger, proceeding anyway", "error", err, "mode", ModeLegacy)
	return true
}

// run executes the enabled stages. A false result with a nil error is a
// handshake failure (timeout or rejected rendezvous); a non-nil error is a
// setup fault.
func (c *Coordinator) run(ctx context.Context, logger *logging.Logger) (bool, error) {
	s := c.settings

	stage := c.enter(logger, core.StateCleaningMarkers)
	for _, p := range []string{s.SocketPath, s.PingMarkerPath, s.PongMarkerPath} {
		if p != "" {
			stage.Debug("removing stale marker", "path", p)
			c.store.Clear(p)
		}
	}

	if s.LaunchCommand != "" {
		stage = c.enter(logger, core.StateLaunching)
		proc, err := c.launch(ctx, s.LaunchCommand, helper.Options{Logger: logger})
		if err != nil {
			return false, err
		}
		c.setProc(proc)
		stage.Info("helper started", "helper_pid", proc.Pid())
	}

	poller := poll.New(s.Policy)
	if c.watch {
		if w := c.startWatch(logger); w != nil {
			defer w.Close()
			poller = poller.WithWake(w.Wake())
		}
	}

	if s.SocketPath != "" {
		if ok := c.waitSocketPath(ctx, c.enter(logger, core.StateWaitingSocketPath), poller); !ok {
			return false, nil
		}
	} else {
		logger.Debug("socket path not used")
	}

	if s.RendezvousAddress != "" {
		ok, err := c.waitRendezvous(ctx, c.enter(logger, core.StateWaitingRendezvous))
		if err != nil || !ok {
			return false, err
		}
	}

	if s.PingMarkerPath != "" {
		stage = c.enter(logger, core.StateWritingPing)
		if err := c.store.Write(s.PingMarkerPath, strconv.Itoa(c.pid)); err != nil {
			return false, err
		}
		stage.Info("wrote ping", "path", s.PingMarkerPath)
	} else {
		logger.Debug("ping not requested")
	}

	if s.PongMarkerPath != "" {
		if ok := c.waitPong(ctx, c.enter(logger, core.StateWaitingPong), poller); !ok {
			return false, nil
		}
	} else {
		logger.Debug("pong not requested")
	}

	return true, nil
}

func (c *Coordinator) startWatch(logger *logging.Logger) *marker.Watcher {
	paths := []string{c.settings.SocketPath, c.settings.PongMarkerPath}
	if paths[0] == "" && paths[1] == "" {
		return nil
	}
	w, err := c.store.Watch(paths...)
	if err != nil {
		logger.Debug("filesystem watch unavailable, polling only", "error", err)
		return nil
	}
	return w
}

func (c *Coordinator) waitSocketPath(ctx context.Context, logger *logging.Logger, poller *poll.Poller) bool {
	path := c.settings.SocketPath
	proc := c.helperProcess()

	exited := false
	ok, attempts := poller.
		WithRetryHook(func(attempt int) {
			logger.Debug("waiting for socket", "path", path, "attempt", attempt)
		}).
		WaitFor(ctx, func() bool {
			if c.store.Exists(path) {
				return true
			}
			// Nobody else will create the socket once the helper is gone.
			if proc != nil && !proc.Alive() {
				exited = true
				return true
			}
			return false
		})
	if exited {
		c.setErr(core.ErrExecution(core.CodeHelperExited, "helper exited before creating "+path).
			WithDetail("helper_pid", proc.Pid()).WithDetail("attempts", attempts))
		logger.Warn("helper exited before creating debug socket", "path", path, "helper_pid", proc.Pid())
		return false
	}
	if !ok {
		c.setErr(c.waitErr(ctx, "debug socket "+path, attempts))
		logger.Warn("timed out waiting for debug socket", "path", path, "attempts", attempts)
		return false
	}
	if err := c.store.MakeAccessible(path); err != nil {
		logger.Warn("could not set permissions on debug socket", "path", path, "error", err)
	}
	logger.Info("socket ok", "path", path, "attempts", attempts)
	return true
}

func (c *Coordinator) waitRendezvous(ctx context.Context, logger *logging.Logger) (bool, error) {
	s := c.settings
	ln, err := rendezvous.Listen(s.RendezvousAddress, s.Policy, c.pid, logger)
	if err != nil {
		return false, err
	}
	c.setListener(ln)

	var g errgroup.Group
	g.Go(func() error {
		ln.Serve()
		return nil
	})

	ok, attempts := poll.New(s.Policy).
		WithWake(ln.Done()).
		WithRetryHook(func(attempt int) {
			logger.Debug("waiting for debug socket connect", "address", s.RendezvousAddress, "attempt", attempt)
		}).
		WaitFor(ctx, func() bool { return !ln.Running() })
	if !ok {
		logger.Warn("timed out waiting for ping socket", "address", s.RendezvousAddress, "attempts", attempts)
		ln.Shutdown()
		// The listener must not accept a late peer once failure is reported.
		_ = g.Wait()
		c.setOutcome(ln.Outcome())
		c.setErr(c.waitErr(ctx, "ping socket "+s.RendezvousAddress, attempts))
		return false, nil
	}
	_ = g.Wait()

	outcome := ln.Outcome()
	c.setOutcome(outcome)
	if outcome == core.OutcomeFailed {
		c.setErr(core.ErrIO(core.CodeRendezvousFailed, "could not connect to debug client"))
		logger.Warn("could not connect to debug client", "address", s.RendezvousAddress)
		return false, nil
	}
	logger.Info("rendezvous finished", "outcome", outcome.String())
	return true, nil
}

func (c *Coordinator) waitPong(ctx context.Context, logger *logging.Logger, poller *poll.Poller) bool {
	s := c.settings
	ok, attempts := poller.
		WithRetryHook(func(attempt int) {
			logger.Debug("waiting for pong", "path", s.PongMarkerPath, "attempt", attempt)
		}).
		WaitFor(ctx, func() bool { return c.store.Consume(s.PongMarkerPath) })

	// The pong waiter owns removal of the ping marker, whatever the result.
	if s.PingMarkerPath != "" {
		logger.Debug("removing ping marker", "path", s.PingMarkerPath)
		c.store.Clear(s.PingMarkerPath)
	}

	if !ok {
		c.setErr(c.waitErr(ctx, "pong marker "+s.PongMarkerPath, attempts))
		logger.Warn("timed out waiting for pong", "path", s.PongMarkerPath, "attempts", attempts)
		return false
	}
	logger.Info("got pong", "path", s.PongMarkerPath, "attempts", attempts)
	return true
}

func (c *Coordinator) waitErr(ctx context.Context, what string, attempts int) error {
	err := core.ErrTimeout("waiting for "+what).WithDetail("attempts", attempts)
	if ctx.Err() != nil {
		return err.WithCause(ctx.Err())
	}
	return err
}

// Report returns a snapshot of the last Connect run.
func (c *Coordinator) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Close shuts down a still-running rendezvous listener and terminates the
// helper process. Only the first call acts.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		ln, proc := c.listener, c.proc
		c.mu.Unlock()

		if ln != nil {
			ln.Shutdown()
		}
		if proc != nil {
			c.logger.Debug("closing helper", "helper_pid", proc.Pid(), "alive", proc.Alive())
			c.closeErr = proc.Terminate(c.settings.TerminateGrace)
		}
	})
	return c.closeErr
}

func (c *Coordinator) enter(logger *logging.Logger, stage core.State) *logging.Logger {
	c.mu.Lock()
	c.report.Stage = stage
	c.mu.Unlock()

	l := logger.WithStage(string(stage))
	l.Info("entering stage")
	return l
}

func (c *Coordinator) finish(ok bool, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Duration = elapsed
	if ok {
		c.report.State = core.StateSucceeded
	} else {
		c.report.State = core.StateFailed
	}
}

func (c *Coordinator) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Err = err
}

func (c *Coordinator) setOutcome(o core.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Outcome = o
}

func (c *Coordinator) setProc(p Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proc = p
	c.report.HelperPID = p.Pid()
}

func (c *Coordinator) helperProcess() Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc
}

func (c *Coordinator) setListener(ln *rendezvous.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = ln
}
