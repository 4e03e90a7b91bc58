// Package stream owns the streaming connection to a workflow thread: the
// transport implementations and the reconnect policy that wraps them.
package stream

import "context"

// FrameHandler receives transport-level notifications. Opened fires once per
// successful connect, before any frame; Frame delivers raw frame payloads in
// arrival order.
type FrameHandler interface {
	Opened()
	Frame(data []byte)
}

// Transport opens one streaming connection to a thread and blocks until the
// stream ends. A nil error means the remote closed the stream normally.
// Transports never retry; that is entirely the Runner's responsibility.
type Transport interface {
	Stream(ctx context.Context, threadID string, h FrameHandler) error
}
