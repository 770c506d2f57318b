package rendezvous

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Peer is the connecting side of a rendezvous: it reads the listener's
// process id and answers with a line.
type Peer struct {
	conn net.Conn
	pid  int
}

// Dial connects to a rendezvous listener and reads its identifier line.
func Dial(ctx context.Context, address string) (*Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("reading identifier: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("parsing identifier %q: %w", line, err)
	}
	return &Peer{conn: conn, pid: pid}, nil
}

// PID returns the process id announced by the listener.
func (p *Peer) PID() int {
	return p.pid
}

// Ack sends line followed by a newline.
func (p *Peer) Ack(line string) error {
	_, err := fmt.Fprintf(p.conn, "%s\n", line)
	return err
}

// Close closes the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
