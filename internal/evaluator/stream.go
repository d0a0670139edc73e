package evaluator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

var _ Evaluator = (*Stream)(nil)

// Stream speaks the channel protocol as JSON lines over a byte stream, one
// Message per line.
type Stream struct {
	mu     sync.Mutex
	enc    *json.Encoder
	dec    *json.Decoder
	broken error
	closed bool
}

// NewStream creates the loop side of a JSON-lines channel.
func NewStream(r io.Reader, w io.Writer) *Stream {
	return &Stream{
		enc: json.NewEncoder(w),
		dec: json.NewDecoder(bufio.NewReader(r)),
	}
}

type decoded struct {
	msg Message
	err error
}

func (s *Stream) Evaluate(ctx context.Context, x []float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStopped
	}
	if s.broken != nil {
		return 0, s.broken
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := s.enc.Encode(Message{X: x}); err != nil {
		s.broken = fmt.Errorf("%w: %v", ErrChannelClosed, err)
		return 0, s.broken
	}

	done := make(chan decoded, 1)
	go func() {
		var m Message
		err := s.dec.Decode(&m)
		done <- decoded{msg: m, err: err}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			if errors.Is(d.err, io.EOF) || errors.Is(d.err, io.ErrUnexpectedEOF) {
				s.broken = ErrChannelClosed
			} else {
				s.broken = fmt.Errorf("%w: %v", ErrChannelClosed, d.err)
			}
			return 0, s.broken
		}
		y, err := response(d.msg)
		if errors.Is(err, ErrStopped) || errors.Is(err, ErrMalformedResponse) {
			s.broken = err
		}
		return y, err
	case <-ctx.Done():
		// The decoder goroutine still owns the reader.
		s.broken = ErrPoisoned
		return 0, ctx.Err()
	}
}

// Close sends the stop sentinel.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.broken != nil {
		return nil
	}
	return s.enc.Encode(Message{Stop: true})
}

// ServeStream runs the worker side of a JSON-lines channel until the stop
// sentinel or end of input.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, fn func([]float64) (float64, error)) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	enc := json.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Message
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode request: %w", err)
		}
		if req.Stop {
			return nil
		}
		if err := enc.Encode(handle(fn, req)); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}
}
