package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectHandler struct {
	opened int
	frames []string
}

func (c *collectHandler) Opened()           { c.opened++ }
func (c *collectHandler) Frame(data []byte) { c.frames = append(c.frames, string(data)) }

func TestParseSSESingleEvents(t *testing.T) {
	input := "data: {\"event\":\"connected\"}\n\ndata: {\"event\":\"thought\"}\n\n"
	h := &collectHandler{}

	err := parseSSE(strings.NewReader(input), h)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"event":"connected"}`, `{"event":"thought"}`}, h.frames)
}

func TestParseSSESkipsCommentsAndFields(t *testing.T) {
	input := ": keepalive\nevent: message\nid: 42\nretry: 3000\ndata: {\"event\":\"heartbeat\"}\n\n"
	h := &collectHandler{}

	err := parseSSE(strings.NewReader(input), h)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"event":"heartbeat"}`}, h.frames)
}

func TestParseSSEJoinsMultiLineData(t *testing.T) {
	input := "data: line one\ndata: line two\n\n"
	h := &collectHandler{}

	err := parseSSE(strings.NewReader(input), h)
	require.NoError(t, err)
	assert.Equal(t, []string{"line one\nline two"}, h.frames)
}

func TestParseSSEFlushesTrailingData(t *testing.T) {
	// A stream that ends without the final blank line still delivers the
	// buffered event.
	input := "data: {\"event\":\"complete\"}\n"
	h := &collectHandler{}

	err := parseSSE(strings.NewReader(input), h)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"event":"complete"}`}, h.frames)
}

func TestSSETransportStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/stream/thread_9", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"connected\"}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"complete\",\"data\":{\"summary\":\"done\"}}\n\n")
	}))
	defer srv.Close()

	h := &collectHandler{}
	transport := NewSSETransport(srv.URL, "secret")

	err := transport.Stream(context.Background(), "thread_9", h)
	require.NoError(t, err)
	assert.Equal(t, 1, h.opened)
	require.Len(t, h.frames, 2)
	assert.Contains(t, h.frames[1], `"summary":"done"`)
}

func TestSSETransportNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "thread not found", http.StatusNotFound)
	}))
	defer srv.Close()

	h := &collectHandler{}
	transport := NewSSETransport(srv.URL, "")

	err := transport.Stream(context.Background(), "missing", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Zero(t, h.opened)
}

func TestSSETransportCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"connected\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h := &collectHandler{}
	transport := NewSSETransport(srv.URL, "")

	done := make(chan error, 1)
	go func() { done <- transport.Stream(ctx, "thread_9", h) }()
	cancel()

	err := <-done
	// Cancellation surfaces as a read error; the runner treats it as a
	// deliberate stop because the context is already done.
	assert.Error(t, err)
}
