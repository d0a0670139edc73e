package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var _ Evaluator = (*Channel)(nil)

// Conn is one end of a duplex message channel.
type Conn struct {
	In  <-chan Message
	Out chan<- Message
}

// Pipe returns the two ends of an unbuffered duplex channel.
func Pipe() (loop, worker Conn) {
	requests := make(chan Message)
	responses := make(chan Message)
	return Conn{In: responses, Out: requests}, Conn{In: requests, Out: responses}
}

// Channel evaluates by sending each point over a Conn and blocking for
// exactly one response.
type Channel struct {
	mu     sync.Mutex
	conn   Conn
	broken error
	closed bool
}

// NewChannel wraps the loop side of a Conn. The Channel owns conn.Out and
// closes it on Close.
func NewChannel(conn Conn) *Channel {
	return &Channel{conn: conn}
}

func (c *Channel) Evaluate(ctx context.Context, x []float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrStopped
	}
	if c.broken != nil {
		return 0, c.broken
	}

	req := Message{X: append([]float64(nil), x...)}
	select {
	case c.conn.Out <- req:
	case m, ok := <-c.conn.In:
		// The worker spoke out of turn; only the stop sentinel is legal.
		if !ok {
			c.broken = ErrChannelClosed
		} else if m.Stop {
			c.broken = ErrStopped
		} else {
			c.broken = ErrPoisoned
		}
		return 0, c.broken
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case m, ok := <-c.conn.In:
		if !ok {
			c.broken = ErrChannelClosed
			return 0, c.broken
		}
		y, err := response(m)
		if errors.Is(err, ErrStopped) || errors.Is(err, ErrMalformedResponse) {
			c.broken = err
		}
		return y, err
	case <-ctx.Done():
		c.broken = ErrPoisoned
		return 0, ctx.Err()
	}
}

// Close sends the stop sentinel if the worker is still listening and
// closes the request side.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.broken == nil {
		select {
		case c.conn.Out <- Message{Stop: true}:
		default:
		}
	}
	close(c.conn.Out)
	return nil
}

// Serve runs the worker side of a Conn until the stop sentinel arrives, the
// request side closes, or ctx is done. It closes conn.Out on return.
func Serve(ctx context.Context, conn Conn, fn func([]float64) (float64, error)) error {
	defer close(conn.Out)
	for {
		select {
		case req, ok := <-conn.In:
			if !ok || req.Stop {
				return nil
			}
			resp := handle(fn, req)
			select {
			case conn.Out <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			slog.Debug("Evaluator worker cancelled")
			return ctx.Err()
		}
	}
}
