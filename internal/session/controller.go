package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/api"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/protocol"
)

// ErrInputBlocked is returned when a send is attempted while the session is
// executing or waiting on an approval.
var ErrInputBlocked = errors.New("session is busy, input is disabled")

// Backend is the remote collaborator issuing execute and approval calls.
// *api.Client satisfies it.
type Backend interface {
	Execute(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error)
	Approve(ctx context.Context, approvalID string, modifications json.RawMessage, comment string) (*domain.ApprovalResponse, error)
	Reject(ctx context.Context, approvalID, comment string) (*domain.ApprovalResponse, error)
}

// ThreadRunner arms and disarms the streaming connection for a thread.
// *stream.Runner satisfies it.
type ThreadRunner interface {
	SetThread(threadID string)
	Stop()
}

// Controller ties the store, the backend client, and the stream runner
// together. It is the stream.Sink: inbound frames are normalized and applied
// through the store's single mutation path.
type Controller struct {
	store    *Store
	backend  Backend
	runner   ThreadRunner
	sellerNo int
}

// NewController creates a session controller.
func NewController(store *Store, backend Backend, runner ThreadRunner, sellerNo int) *Controller {
	return &Controller{
		store:    store,
		backend:  backend,
		runner:   runner,
		sellerNo: sellerNo,
	}
}

// Store exposes the underlying session store for read access.
func (c *Controller) Store() *Store {
	return c.store
}

// SetRunner wires the stream runner. The controller is the runner's sink, so
// the two reference each other; call this once during startup.
func (c *Controller) SetRunner(r ThreadRunner) {
	c.runner = r
}

// Send submits a user request. The user message is appended and the session
// flips to executing before the remote call; on success the returned thread
// id arms the stream connection, on failure the session lands in error.
func (c *Controller) Send(ctx context.Context, content string, images []string) error {
	if c.store.InputDisabled() {
		return ErrInputBlocked
	}

	c.store.AppendUserInput(content, images)

	req := &api.ExecuteRequest{Request: content}
	if len(images) > 0 || c.sellerNo != 0 {
		req.Context = &api.ExecuteContext{Images: images, SellerNo: c.sellerNo}
	}

	resp, err := c.backend.Execute(ctx, req)
	if err != nil {
		log.Printf("ERROR: execute failed: %v", err)
		c.store.ExecuteFailed("")
		return fmt.Errorf("failed to execute agent: %w", err)
	}
	if resp.Status != "accepted" {
		log.Printf("ERROR: execute rejected: %s", resp.Message)
		c.store.ExecuteFailed(resp.Message)
		return fmt.Errorf("execute rejected: %s", resp.Message)
	}

	c.store.BindThread(resp.ThreadID)
	if c.runner != nil {
		c.runner.SetThread(resp.ThreadID)
	}
	return nil
}

// Reset tears down the live connection and clears the session back to idle.
// The connection is fully closed before the store is touched, so no stray
// frame can land in the fresh session.
func (c *Controller) Reset() {
	if c.runner != nil {
		c.runner.Stop()
	}
	c.store.Reset()
}

// HandleFrame implements stream.Sink. Parse failures and unknown events are
// dropped with a diagnostic; they never crash the pipeline.
func (c *Controller) HandleFrame(threadID string, data []byte) {
	if bound := c.store.ThreadID(); bound != "" && bound != threadID {
		log.Printf("WARN: dropping frame for stale thread %s", threadID)
		return
	}

	ev, err := protocol.Normalize(data)
	if err != nil {
		if errors.Is(err, protocol.ErrIgnoredFrame) {
			return
		}
		log.Printf("WARN: dropping frame: %v", err)
		return
	}
	if ev.ThreadID == "" {
		ev.ThreadID = threadID
	}
	c.store.Apply(ev)
}

// HandleConnError implements stream.Sink: the reconnect policy has given up.
// The session itself stays usable; the failure is surfaced in the log as a
// recoverable error message.
func (c *Controller) HandleConnError(threadID string, err error) {
	log.Printf("ERROR: stream for thread %s gave up: %v", threadID, err)
	c.store.AddConnectionError(err)
}
