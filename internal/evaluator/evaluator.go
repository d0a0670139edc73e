// Package evaluator connects the optimisation loop to the objective. The
// objective may run in-process or behind a strictly synchronous
// request/response channel (Go channels, a byte stream, or a subprocess).
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrChannelClosed is returned when the channel is severed before a
	// response arrives.
	ErrChannelClosed = errors.New("evaluator channel closed")

	// ErrStopped is returned when the peer sent the stop sentinel instead of
	// a result, or when evaluating after Close.
	ErrStopped = errors.New("evaluator stopped")

	// ErrPoisoned is returned after an abandoned request: a late response
	// could otherwise be paired with the wrong request.
	ErrPoisoned = errors.New("evaluator channel poisoned by abandoned request")

	// ErrNonFinite is returned for NaN or infinite objective values.
	ErrNonFinite = errors.New("objective returned a non-finite value")

	// ErrMalformedResponse is returned for a response carrying neither a
	// value, an error nor the stop sentinel. The channel is broken after it.
	ErrMalformedResponse = errors.New("malformed evaluator response")
)

// Evaluator computes the objective at x. Implementations fail with an error
// rather than a sentinel value.
type Evaluator interface {
	Evaluate(ctx context.Context, x []float64) (float64, error)
}

// Func adapts a plain function to Evaluator.
type Func func(x []float64) (float64, error)

func (f Func) Evaluate(ctx context.Context, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	y, err := f(x)
	if err != nil {
		return 0, err
	}
	return checkFinite(y)
}

// RemoteError is an error reported by the worker side of a channel.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote evaluation failed: " + e.Message
}

// Message is the unit exchanged on every channel transport. A request
// carries X, a response carries Y or Error, and Stop is the termination
// sentinel in either direction. Y is a pointer so that a missing value is
// distinguishable from zero.
type Message struct {
	X     []float64 `json:"x,omitempty"`
	Y     *float64  `json:"y,omitempty"`
	Error string    `json:"error,omitempty"`
	Stop  bool      `json:"stop,omitempty"`
}

func checkFinite(y float64) (float64, error) {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonFinite, y)
	}
	return y, nil
}

// response converts a received message to an evaluation result.
func response(m Message) (float64, error) {
	if m.Stop {
		return 0, ErrStopped
	}
	if m.Error != "" {
		return 0, &RemoteError{Message: m.Error}
	}
	if m.Y == nil {
		return 0, fmt.Errorf("%w: no value", ErrMalformedResponse)
	}
	return checkFinite(*m.Y)
}

// Value builds a response message carrying y.
func Value(y float64) Message {
	return Message{Y: &y}
}

// handle evaluates one request on the worker side.
func handle(fn func([]float64) (float64, error), req Message) Message {
	y, err := fn(req.X)
	if err == nil {
		y, err = checkFinite(y)
	}
	if err != nil {
		return Message{Error: err.Error()}
	}
	return Value(y)
}
