package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport runs a per-call script and counts connection attempts.
type scriptedTransport struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ctx context.Context, threadID string, h FrameHandler) error
}

func (t *scriptedTransport) Stream(ctx context.Context, threadID string, h FrameHandler) error {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()
	return t.fn(call, ctx, threadID, h)
}

func (t *scriptedTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// recordSink collects frames and signals when the runner gives up.
type recordSink struct {
	mu     sync.Mutex
	frames []string
	errs   []error
	gaveUp chan struct{}
}

func newRecordSink() *recordSink {
	return &recordSink{gaveUp: make(chan struct{})}
}

func (s *recordSink) HandleFrame(threadID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, string(data))
}

func (s *recordSink) HandleConnError(threadID string, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	close(s.gaveUp)
}

func (s *recordSink) snapshot() ([]string, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...), append([]error(nil), s.errs...)
}

func waitGiveUp(t *testing.T, s *recordSink) {
	t.Helper()
	select {
	case <-s.gaveUp:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not give up in time")
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := time.Second
	assert.Equal(t, 1*time.Second, backoffDelay(base, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 16*time.Second, backoffDelay(base, 4))
}

func TestRunnerGivesUpAfterMaxRetries(t *testing.T) {
	transport := &scriptedTransport{
		fn: func(call int, ctx context.Context, threadID string, h FrameHandler) error {
			return errors.New("connection refused")
		},
	}
	sink := newRecordSink()
	runner := NewRunner(transport, sink, Config{BaseDelay: time.Millisecond, MaxRetries: 3})

	runner.SetThread("t1")
	waitGiveUp(t, sink)
	runner.Stop()

	// Initial attempt plus MaxRetries retries, then exactly one terminal
	// error report.
	assert.Equal(t, 4, transport.callCount())
	_, errs := sink.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "connection refused")
}

func TestRunnerDeliversFrames(t *testing.T) {
	done := make(chan struct{})
	transport := &scriptedTransport{
		fn: func(call int, ctx context.Context, threadID string, h FrameHandler) error {
			h.Opened()
			h.Frame([]byte(`{"event":"thought"}`))
			h.Frame([]byte(`{"event":"complete"}`))
			close(done)
			return nil
		},
	}
	sink := newRecordSink()
	runner := NewRunner(transport, sink, DefaultConfig())

	runner.SetThread("t1")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transport was never invoked")
	}
	runner.Stop()

	frames, errs := sink.snapshot()
	assert.Equal(t, []string{`{"event":"thought"}`, `{"event":"complete"}`}, frames)
	// A normal remote close is not a connection failure.
	assert.Empty(t, errs)
	assert.Equal(t, 1, transport.callCount())
}

func TestRunnerResetsAttemptOnSuccessfulConnect(t *testing.T) {
	var sawCount int
	done := make(chan struct{})
	transport := &scriptedTransport{}
	sink := newRecordSink()
	var runner *Runner
	transport.fn = func(call int, ctx context.Context, threadID string, h FrameHandler) error {
		if call <= 2 {
			return errors.New("dial failed")
		}
		h.Opened()
		sawCount = runner.State().ReconnectCount
		h.Frame([]byte(`{"event":"connected"}`))
		close(done)
		return nil
	}
	runner = NewRunner(transport, sink, Config{BaseDelay: time.Millisecond, MaxRetries: 5})

	runner.SetThread("t1")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transport never reached a successful connect")
	}
	runner.Stop()

	assert.Equal(t, 0, sawCount)
	frames, errs := sink.snapshot()
	assert.Len(t, frames, 1)
	assert.Empty(t, errs)
}

func TestStopCancelsPendingRetry(t *testing.T) {
	attempted := make(chan struct{}, 1)
	transport := &scriptedTransport{
		fn: func(call int, ctx context.Context, threadID string, h FrameHandler) error {
			select {
			case attempted <- struct{}{}:
			default:
			}
			return errors.New("dial failed")
		},
	}
	sink := newRecordSink()
	// A retry delay far longer than the test; Stop must not wait it out.
	runner := NewRunner(transport, sink, Config{BaseDelay: time.Hour, MaxRetries: 5})

	runner.SetThread("t1")
	select {
	case <-attempted:
	case <-time.After(5 * time.Second):
		t.Fatal("transport was never invoked")
	}

	start := time.Now()
	runner.Stop()
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, 1, transport.callCount())
	_, errs := sink.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, ConnState{}, runner.State())
}

func TestSetThreadReplacesLiveConnection(t *testing.T) {
	var mu sync.Mutex
	var threads []string
	firstUp := make(chan struct{})
	transport := &scriptedTransport{
		fn: func(call int, ctx context.Context, threadID string, h FrameHandler) error {
			mu.Lock()
			threads = append(threads, threadID)
			mu.Unlock()
			if threadID == "t1" {
				close(firstUp)
				<-ctx.Done() // hold the connection until torn down
				return ctx.Err()
			}
			h.Opened()
			return nil
		},
	}
	sink := newRecordSink()
	runner := NewRunner(transport, sink, DefaultConfig())

	runner.SetThread("t1")
	select {
	case <-firstUp:
	case <-time.After(5 * time.Second):
		t.Fatal("first connection never established")
	}

	runner.SetThread("t2")
	runner.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, threads, 2)
	assert.Equal(t, []string{"t1", "t2"}, threads)
	_, errs := sink.snapshot()
	assert.Empty(t, errs)
}
