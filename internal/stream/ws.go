package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// WSTransport streams frames over a WebSocket connection to
// {base}/ws/{thread_id}. Each text message is one frame.
type WSTransport struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
}

// NewWSTransport creates a WebSocket transport for the given ws:// base URL.
func NewWSTransport(baseURL, token string) *WSTransport {
	return &WSTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		dialer:  websocket.DefaultDialer,
	}
}

// Stream dials the thread endpoint and delivers messages until the peer
// closes or ctx is cancelled.
func (t *WSTransport) Stream(ctx context.Context, threadID string, h FrameHandler) error {
	url := fmt.Sprintf("%s/ws/%s", t.baseURL, threadID)

	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, _, err := t.dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	h.Opened()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.Frame(data)
	}
}
