package stream

import (
	"context"
	"log"
	"sync"
	"time"
)

// ConnState is the observable state of the connection lifecycle. It is owned
// by the Runner and never persisted.
type ConnState struct {
	IsConnected    bool
	IsConnecting   bool
	ReconnectCount int
	LastEventTime  time.Time
	Err            error
}

// Sink receives frames and the terminal connection error from the Runner.
type Sink interface {
	HandleFrame(threadID string, data []byte)
	// HandleConnError is called once when the runner gives up after
	// exhausting its retries. What to do with it is the caller's decision.
	HandleConnError(threadID string, err error)
}

// Config holds the reconnect policy knobs.
type Config struct {
	BaseDelay  time.Duration // first retry delay, doubles per attempt
	MaxRetries int           // consecutive failures before giving up
}

// DefaultConfig matches the backend's recommended client behavior.
func DefaultConfig() Config {
	return Config{BaseDelay: time.Second, MaxRetries: 5}
}

// backoffDelay returns the retry delay for the given zero-based attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}

// Runner wraps a Transport with bounded-retry exponential backoff. At most
// one connection is live at a time: arming a new thread first tears down the
// old connection and any pending retry timer.
type Runner struct {
	transport Transport
	sink      Sink
	cfg       Config

	mu       sync.Mutex
	state    ConnState
	attempt  int
	threadID string
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	now func() time.Time
}

// NewRunner creates a runner over the given transport.
func NewRunner(transport Transport, sink Sink, cfg Config) *Runner {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Runner{
		transport: transport,
		sink:      sink,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetThread arms the runner for a thread, replacing any live connection.
// An empty thread id just disarms.
func (r *Runner) SetThread(threadID string) {
	r.Stop()
	if threadID == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.threadID = threadID
	r.cancel = cancel
	r.attempt = 0
	r.state = ConnState{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, threadID)
	}()
}

// Stop cancels any pending retry and closes the live connection. It does not
// return until the connection goroutine has exited, so no stray retry can
// mutate a session the caller has already moved away from.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.threadID = ""
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	r.state = ConnState{}
	r.attempt = 0
	r.mu.Unlock()
}

// State returns a copy of the current connection state.
func (r *Runner) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) loop(ctx context.Context, threadID string) {
	for {
		r.mu.Lock()
		r.state.IsConnecting = true
		r.state.IsConnected = false
		r.state.Err = nil
		r.mu.Unlock()

		err := r.transport.Stream(ctx, threadID, &runnerHandler{r: r, threadID: threadID})

		if ctx.Err() != nil {
			r.markClosed(nil)
			return
		}
		if err == nil {
			// Remote closed the stream normally; the terminal event has
			// already been delivered.
			r.markClosed(nil)
			return
		}

		log.Printf("WARN: stream for thread %s failed: %v", threadID, err)
		r.markClosed(err)

		r.mu.Lock()
		attempt := r.attempt
		r.mu.Unlock()

		if attempt >= r.cfg.MaxRetries {
			log.Printf("ERROR: giving up on thread %s after %d attempts", threadID, attempt)
			r.sink.HandleConnError(threadID, err)
			return
		}

		delay := backoffDelay(r.cfg.BaseDelay, attempt)

		r.mu.Lock()
		r.attempt++
		r.state.ReconnectCount = r.attempt
		r.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) markClosed(err error) {
	r.mu.Lock()
	r.state.IsConnected = false
	r.state.IsConnecting = false
	r.state.Err = err
	r.mu.Unlock()
}

// runnerHandler adapts transport notifications onto the runner.
type runnerHandler struct {
	r        *Runner
	threadID string
}

func (h *runnerHandler) Opened() {
	h.r.mu.Lock()
	h.r.attempt = 0
	h.r.state.IsConnected = true
	h.r.state.IsConnecting = false
	h.r.state.ReconnectCount = 0
	h.r.state.LastEventTime = h.r.now()
	h.r.state.Err = nil
	h.r.mu.Unlock()
}

func (h *runnerHandler) Frame(data []byte) {
	h.r.mu.Lock()
	h.r.state.LastEventTime = h.r.now()
	h.r.mu.Unlock()
	h.r.sink.HandleFrame(h.threadID, data)
}
