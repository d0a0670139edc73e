package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shifted(x []float64) (float64, error) {
	total := 5.0
	for _, v := range x {
		total += (v - 0.33) * (v - 0.33)
	}
	return total, nil
}

func failing(x []float64) (float64, error) {
	return 0, fmt.Errorf("sensor offline at %v", x)
}

func TestFunc(t *testing.T) {
	ctx := context.Background()

	y, err := Func(shifted).Evaluate(ctx, []float64{0.33, 0.33})
	require.NoError(t, err)
	assert.Equal(t, 5.0, y)

	_, err = Func(failing).Evaluate(ctx, []float64{1})
	assert.ErrorContains(t, err, "sensor offline")

	_, err = Func(func([]float64) (float64, error) { return math.NaN(), nil }).Evaluate(ctx, nil)
	assert.ErrorIs(t, err, ErrNonFinite)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Func(shifted).Evaluate(cancelled, []float64{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelRoundTrip(t *testing.T) {
	ctx := context.Background()
	loop, worker := Pipe()
	served := make(chan error, 1)
	go func() { served <- Serve(ctx, worker, shifted) }()

	ch := NewChannel(loop)
	for _, x := range [][]float64{{0.33}, {1.33}, {0.33, 0.33, 0.33}} {
		want, _ := shifted(x)
		got, err := ch.Evaluate(ctx, x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, ch.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Close")
	}

	_, err := ch.Evaluate(ctx, []float64{0})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestChannelRemoteError(t *testing.T) {
	ctx := context.Background()
	loop, worker := Pipe()
	go Serve(ctx, worker, failing)

	ch := NewChannel(loop)
	defer ch.Close()

	_, err := ch.Evaluate(ctx, []float64{0.5})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "sensor offline")

	// A remote failure does not break the protocol.
	_, err = ch.Evaluate(ctx, []float64{0.5})
	assert.ErrorAs(t, err, &remote)
}

func TestChannelSeveredBeforeResponse(t *testing.T) {
	ctx := context.Background()
	loop, worker := Pipe()

	// The worker takes the request and hangs up without answering.
	go func() {
		<-worker.In
		close(worker.Out)
	}()

	ch := NewChannel(loop)
	_, err := ch.Evaluate(ctx, []float64{0.1})
	assert.ErrorIs(t, err, ErrChannelClosed)

	_, err = ch.Evaluate(ctx, []float64{0.1})
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannelWorkerGone(t *testing.T) {
	loop, worker := Pipe()
	close(worker.Out)

	_, err := NewChannel(loop).Evaluate(context.Background(), []float64{0.1})
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannelWorkerStops(t *testing.T) {
	loop, worker := Pipe()
	go func() {
		<-worker.In
		worker.Out <- Message{Stop: true}
	}()

	ch := NewChannel(loop)
	_, err := ch.Evaluate(context.Background(), []float64{0.1})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestChannelCancelPoisons(t *testing.T) {
	loop, worker := Pipe()
	release := make(chan struct{})
	go func() {
		req := <-worker.In
		<-release
		y, _ := shifted(req.X)
		worker.Out <- Value(y)
	}()

	ch := NewChannel(loop)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ch.Evaluate(ctx, []float64{0.1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	_, err = ch.Evaluate(context.Background(), []float64{0.2})
	assert.ErrorIs(t, err, ErrPoisoned)
}

func TestStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	served := make(chan error, 1)
	go func() {
		err := ServeStream(ctx, reqR, respW, shifted)
		respW.Close()
		served <- err
	}()

	s := NewStream(respR, reqW)
	got, err := s.Evaluate(ctx, []float64{1.33})
	require.NoError(t, err)
	assert.Equal(t, 6.0, got)

	require.NoError(t, s.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream worker did not stop")
	}
}

func TestStreamSevered(t *testing.T) {
	ctx := context.Background()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		// Read one request, then hang up.
		buf := make([]byte, 256)
		_, _ = reqR.Read(buf)
		respW.Close()
	}()

	s := NewStream(respR, reqW)
	_, err := s.Evaluate(ctx, []float64{0.1})
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestStreamRemoteError(t *testing.T) {
	ctx := context.Background()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go ServeStream(ctx, reqR, respW, failing)

	s := NewStream(respR, reqW)
	_, err := s.Evaluate(ctx, []float64{0.1})
	var remote *RemoteError
	assert.ErrorAs(t, err, &remote)
}

// TestHelperProcess is not a real test; it is the worker body for
// TestProcess, re-executed from the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("BAYESOPT_WANT_HELPER_PROCESS") != "1" {
		return
	}
	err := ServeStream(context.Background(), os.Stdin, os.Stdout, shifted)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func TestProcess(t *testing.T) {
	t.Setenv("BAYESOPT_WANT_HELPER_PROCESS", "1")

	ctx := context.Background()
	p, err := StartProcess(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
	require.NoError(t, err)

	got, err := p.Evaluate(ctx, []float64{0.33, 1.33})
	require.NoError(t, err)
	assert.Equal(t, 6.0, got)

	assert.NoError(t, p.Close())
}

func TestResponseSentinel(t *testing.T) {
	_, err := response(Message{Stop: true})
	assert.True(t, errors.Is(err, ErrStopped))
	_, err = response(Value(math.Inf(1)))
	assert.ErrorIs(t, err, ErrNonFinite)
	y, err := response(Value(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, y)

	y, err = response(Value(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, y)
	_, err = response(Message{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStreamZeroValue(t *testing.T) {
	ctx := context.Background()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	zero := func([]float64) (float64, error) { return 0, nil }
	go ServeStream(ctx, reqR, respW, zero)

	s := NewStream(respR, reqW)
	y, err := s.Evaluate(ctx, []float64{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, y)
}

func TestStreamResponseWithoutValue(t *testing.T) {
	ctx := context.Background()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		dec := json.NewDecoder(reqR)
		var req Message
		if err := dec.Decode(&req); err != nil {
			return
		}
		fmt.Fprintln(respW, `{"result": 3.5}`)
	}()

	s := NewStream(respR, reqW)
	_, err := s.Evaluate(ctx, []float64{0.1})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = s.Evaluate(ctx, []float64{0.2})
	assert.ErrorIs(t, err, ErrMalformedResponse, "channel should stay broken")
}

func TestChannelResponseWithoutValue(t *testing.T) {
	loop, worker := Pipe()
	go func() {
		<-worker.In
		worker.Out <- Message{}
	}()

	ch := NewChannel(loop)
	_, err := ch.Evaluate(context.Background(), []float64{0.1})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = ch.Evaluate(context.Background(), []float64{0.2})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
