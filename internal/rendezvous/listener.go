// Package rendezvous implements the one-shot unix socket handshake used as an
// alternative (or complement) to marker files.
//
// The listener accepts a single connection, sends its process id as a line of
// decimal text and waits for any non-empty line in return. It runs on its own
// goroutine; the only way to stop it early is Shutdown, which closes the
// socket and so unblocks a pending Accept or Read.
package rendezvous

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/debugwait/internal/core"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
	"github.com/hugo-lorenzo-mato/debugwait/internal/poll"
)

// Listener is a single-use rendezvous socket.
type Listener struct {
	ln      net.Listener
	address string
	policy  poll.Policy
	pid     int
	logger  *logging.Logger

	running   atomic.Bool
	cancelled atomic.Bool
	outcome   atomic.Int32
	done      chan struct{}
	stop      chan struct{}

	mu        sync.Mutex
	conn      net.Conn
	stopOnce  sync.Once
	closeOnce sync.Once
	serveOnce sync.Once
}

// Listen binds a unix stream socket at address. A leading '@' selects the
// Linux abstract namespace. It fails if the address is already in use.
func Listen(address string, policy poll.Policy, pid int, logger *logging.Logger) (*Listener, error) {
	if address == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "empty rendezvous address")
	}
	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, core.ErrIO(core.CodeBindFailed, "binding "+address).WithCause(err)
	}

	l := &Listener{
		ln:      ln,
		address: address,
		policy:  policy,
		pid:     pid,
		logger:  logging.OrNop(logger).WithComponent("rendezvous"),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	// Running from bind time so a liveness poll started before Serve is
	// scheduled does not read a pending outcome.
	l.running.Store(true)
	return l, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() string {
	return l.address
}

// Running reports whether Serve has not finished yet.
func (l *Listener) Running() bool {
	return l.running.Load()
}

// Done is closed when Serve returns.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Outcome is the handshake result. It is OutcomePending until Serve returns.
func (l *Listener) Outcome() core.Outcome {
	return core.Outcome(l.outcome.Load())
}

// Serve runs the handshake and records its outcome. Only the first call does
// any work; later calls return the recorded outcome once it is available.
func (l *Listener) Serve() core.Outcome {
	l.serveOnce.Do(func() {
		outcome := l.serve()
		if l.cancelled.Load() {
			outcome = core.OutcomeFailed
		}
		l.outcome.Store(int32(outcome))
		l.running.Store(false)
		close(l.done)
		l.logger.Debug("rendezvous finished", "outcome", outcome.String())
	})
	<-l.done
	return l.Outcome()
}

// Shutdown cancels the handshake. It marks the outcome failed, then closes
// the listening socket and any accepted connection. Safe to call more than
// once and from any goroutine.
func (l *Listener) Shutdown() {
	l.cancelled.Store(true)
	l.stopOnce.Do(func() { close(l.stop) })
	l.closeListener()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
	}
}

func (l *Listener) closeListener() {
	l.closeOnce.Do(func() {
		_ = l.ln.Close()
	})
}

func (l *Listener) serve() core.Outcome {
	defer l.closeListener()

	conn, err := l.ln.Accept()
	if err != nil {
		l.logger.Warn("rendezvous accept failed", "address", l.address, "error", err)
		return core.OutcomeFailed
	}
	if !l.trackConn(conn) {
		_ = conn.Close()
		return core.OutcomeFailed
	}
	defer conn.Close()
	l.logger.Info("debug socket accepted", "address", l.address)

	if _, err := fmt.Fprintf(conn, "%d\n", l.pid); err != nil {
		l.logger.Warn("sending pid failed", "error", err)
		return core.OutcomeFailed
	}

	return l.awaitAck(conn)
}

// trackConn records the accepted connection so Shutdown can close it.
// Returns false if Shutdown already ran.
func (l *Listener) trackConn(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled.Load() {
		return false
	}
	l.conn = conn
	return true
}

// awaitAck reads lines until a non-empty one arrives. Each read is bounded by
// one interval; a read that times out counts as an empty read.
func (l *Listener) awaitAck(conn net.Conn) core.Outcome {
	reader := bufio.NewReader(conn)
	var pending strings.Builder
	maxAttempts := l.policy.MaxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_ = conn.SetReadDeadline(time.Now().Add(l.policy.Interval))
		chunk, err := reader.ReadString('\n')
		pending.WriteString(chunk)

		switch {
		case err == nil:
			line := strings.TrimRight(pending.String(), "\r\n")
			pending.Reset()
			l.logger.Debug("incoming socket data", "line", line, "attempt", attempt)
			if line != "" {
				l.logger.Info("got pid acknowledgment")
				return core.OutcomeSucceeded
			}
		case errors.Is(err, os.ErrDeadlineExceeded):
			// The deadline already spent this attempt's interval.
			continue
		case errors.Is(err, io.EOF):
			if strings.TrimSpace(pending.String()) != "" {
				l.logger.Info("got pid acknowledgment before close")
				return core.OutcomeSucceeded
			}
			l.logger.Warn("peer closed the debug socket without acknowledging")
			return core.OutcomeFailed
		default:
			l.logger.Warn("reading from debug socket failed", "error", err)
			return core.OutcomeFailed
		}

		if !l.pause() {
			return core.OutcomeFailed
		}
	}

	l.logger.Warn("no acknowledgment on debug socket", "attempts", maxAttempts)
	return core.OutcomeTimedOut
}

// pause sleeps one interval. Returns false if Shutdown interrupted it.
func (l *Listener) pause() bool {
	timer := time.NewTimer(l.policy.Interval)
	defer timer.Stop()
	select {
	case <-l.stop:
		return false
	case <-timer.C:
		return true
	}
}
