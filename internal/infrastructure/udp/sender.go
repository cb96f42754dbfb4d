package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/nerrad567/tswrite/internal/infrastructure/config"
)

// Sender writes batches to UDP listeners on a single host.
type Sender struct {
	host    string
	maxSize int
	dialer  net.Dialer

	mu     sync.Mutex
	conns  map[int]net.Conn
	closed bool
}

// New creates a Sender for cfg.Host. Sockets are opened lazily per port.
func New(cfg config.UDPConfig) (*Sender, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.MaxDatagramSize <= 0 {
		return nil, fmt.Errorf("%w: max datagram size must be positive", ErrSendFailed)
	}
	return &Sender{
		host:    cfg.Host,
		maxSize: cfg.MaxDatagramSize,
		conns:   make(map[int]net.Conn),
	}, nil
}

// Send packs lines into datagrams and writes them to port in order.
func (s *Sender) Send(ctx context.Context, port int, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	datagrams, err := pack(lines, s.maxSize)
	if err != nil {
		return &SendError{Port: port, Err: err}
	}

	conn, err := s.conn(ctx, port)
	if err != nil {
		return &SendError{Port: port, Err: err, retryable: !errors.Is(err, ErrClosed)}
	}

	// Zero deadline when ctx has none.
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return &SendError{Port: port, Err: err, retryable: true}
	}

	for _, d := range datagrams {
		if err := ctx.Err(); err != nil {
			return &SendError{Port: port, Err: err, retryable: true}
		}
		if _, err := conn.Write(d); err != nil {
			s.drop(port, conn)
			return &SendError{Port: port, Err: err, retryable: true}
		}
	}
	return nil
}

// Close closes every cached socket. Later sends fail with ErrClosed.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var firstErr error
	for port, c := range s.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.conns, port)
	}
	return firstErr
}

// conn returns the cached socket for port, dialing one if needed.
func (s *Sender) conn(ctx context.Context, port int) (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if c, ok := s.conns[port]; ok {
		return c, nil
	}

	c, err := s.dialer.DialContext(ctx, "udp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	s.conns[port] = c
	return c, nil
}

// drop forgets a socket after a write error so the next send redials.
func (s *Sender) drop(port int, c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns[port] == c {
		delete(s.conns, port)
	}
	_ = c.Close()
}

// pack groups newline-terminated lines into datagrams of at most limit bytes.
func pack(lines []string, limit int) ([][]byte, error) {
	var (
		out [][]byte
		cur []byte
	)
	for i, l := range lines {
		n := len(l) + 1
		if n > limit {
			return nil, fmt.Errorf("%w: line %d is %d bytes, limit %d", ErrDatagramTooLarge, i, n, limit)
		}
		if len(cur)+n > limit {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, l...)
		cur = append(cur, '\n')
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}
