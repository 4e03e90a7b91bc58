// Package mockagent is a scripted agent backend for local development and
// tests. It serves the execute, stream, approval and image upload endpoints
// the chat client consumes, replaying scenario frames over SSE or WebSocket.
package mockagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// Server implements the scripted backend.
type Server struct {
	policy     *PolicyEngine
	frameDelay time.Duration
	gateWait   time.Duration

	mu        sync.Mutex
	threads   map[string]*thread
	approvals map[string]*thread

	upgrader websocket.Upgrader
}

// NewServer creates a mock backend. frameDelay spaces out scenario frames;
// zero is fine for tests.
func NewServer(policy *PolicyEngine, frameDelay time.Duration) *Server {
	return &Server{
		policy:     policy,
		frameDelay: frameDelay,
		gateWait:   60 * time.Second,
		threads:    make(map[string]*thread),
		approvals:  make(map[string]*thread),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers all backend routes on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/agents/execute", s.Execute)
	e.GET("/api/v1/agents/stream/:thread_id", s.StreamSSE)
	e.GET("/ws/:thread_id", s.StreamWS)
	e.POST("/api/v1/approvals/:approval_id/approve", s.Approve)
	e.POST("/api/v1/approvals/:approval_id/reject", s.Reject)
	e.POST("/api/v1/images/upload", s.UploadImage)
}

type executeRequest struct {
	Request string `json:"request"`
	Context *struct {
		Images   []string `json:"images"`
		SellerNo int      `json:"seller_no"`
	} `json:"context"`
}

// Execute accepts a request, consults the approval-gate policy and scripts a
// scenario for the assigned thread.
func (s *Server) Execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}
	if req.Request == "" {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "request is required")
	}

	imageCount := 0
	if req.Context != nil {
		imageCount = len(req.Context.Images)
	}

	decision := "auto"
	if s.policy != nil {
		var err error
		decision, err = s.policy.Evaluate(c.Request().Context(), req.Request, imageCount)
		if err != nil {
			log.Printf("ERROR: policy evaluation failed: %v", err)
			decision = "auto"
		}
	}

	th := buildThread(req.Request, decision == "require_approval")

	s.mu.Lock()
	s.threads[th.id] = th
	if th.gate != nil {
		s.approvals[th.gate.ApprovalID] = th
	}
	s.mu.Unlock()

	log.Printf("execute accepted: thread=%s gate=%v", th.id, th.gate != nil)
	return dataJSON(c, map[string]interface{}{
		"thread_id": th.id,
		"status":    "accepted",
	})
}

// StreamSSE replays the thread's scenario over Server-Sent Events.
func (s *Server) StreamSSE(c echo.Context) error {
	th := s.thread(c.Param("thread_id"))
	if th == nil {
		return errorJSON(c, http.StatusNotFound, "NOT_FOUND", "thread not found")
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	flusher, _ := c.Response().Writer.(http.Flusher)
	write := func(data []byte) error {
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	return s.play(c.Request().Context(), th, write)
}

// StreamWS replays the same scenario over a WebSocket, one frame per text
// message.
func (s *Server) StreamWS(c echo.Context) error {
	th := s.thread(c.Param("thread_id"))
	if th == nil {
		return errorJSON(c, http.StatusNotFound, "NOT_FOUND", "thread not found")
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ERROR: failed to upgrade websocket: %v", err)
		return err
	}
	defer ws.Close()

	write := func(data []byte) error {
		return ws.WriteMessage(websocket.TextMessage, data)
	}
	if err := s.play(c.Request().Context(), th, write); err != nil {
		log.Printf("WARN: websocket replay ended: %v", err)
	}
	ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

// play walks the scenario: pre-gate frames, then (if gated) the
// approval_required frame followed by a wait for the decision.
func (s *Server) play(ctx context.Context, th *thread, write func([]byte) error) error {
	for _, f := range th.frames {
		if err := s.emit(ctx, f, write); err != nil {
			return err
		}
	}
	if th.gate == nil {
		return nil
	}

	if err := s.emit(ctx, frame("approval_required", th.id, th.gate), write); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.gateWait):
		return s.emit(ctx, frame("error", th.id, domain.ErrorData{
			Code:        "APPROVAL_TIMEOUT",
			Message:     "approval was not decided in time",
			Recoverable: false,
		}), write)
	case decision := <-th.decision:
		if decision == domain.ApprovalStatusRejected {
			// Workflow halts; the stream just ends.
			return nil
		}
	}

	for _, f := range th.postFrames {
		if err := s.emit(ctx, f, write); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) emit(ctx context.Context, f []byte, write func([]byte) error) error {
	if s.frameDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.frameDelay):
		}
	}
	return write(f)
}

// Approve resolves a pending gate with APPROVED or MODIFIED.
func (s *Server) Approve(c echo.Context) error {
	var body struct {
		Decision      domain.ApprovalStatus `json:"decision"`
		Modifications json.RawMessage       `json:"modifications"`
		Comment       string                `json:"comment"`
	}
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}
	decision := body.Decision
	if decision == "" {
		decision = domain.ApprovalStatusApproved
	}
	return s.decide(c, decision, body.Modifications, body.Comment)
}

// Reject resolves a pending gate with REJECTED.
func (s *Server) Reject(c echo.Context) error {
	var body struct {
		Comment string `json:"comment"`
	}
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}
	return s.decide(c, domain.ApprovalStatusRejected, nil, body.Comment)
}

func (s *Server) decide(c echo.Context, decision domain.ApprovalStatus, modifications json.RawMessage, comment string) error {
	approvalID := c.Param("approval_id")

	s.mu.Lock()
	th, ok := s.approvals[approvalID]
	if ok && th.gate.Status != domain.ApprovalStatusPending {
		s.mu.Unlock()
		return errorJSON(c, http.StatusConflict, "ALREADY_DECIDED", "approval is not pending")
	}
	s.mu.Unlock()
	if !ok {
		return errorJSON(c, http.StatusNotFound, "NOT_FOUND", "approval not found")
	}

	select {
	case th.decision <- decision:
	default:
		return errorJSON(c, http.StatusConflict, "ALREADY_DECIDED", "approval is not pending")
	}

	s.mu.Lock()
	th.gate.Status = decision
	s.mu.Unlock()
	log.Printf("approval %s decided: %s", approvalID, decision)

	return dataJSON(c, domain.ApprovalResponse{
		ApprovalID:    approvalID,
		Decision:      decision,
		Modifications: modifications,
		Comment:       comment,
		RespondedAt:   time.Now().UTC(),
	})
}

// UploadImage accepts one multipart file and answers with a fabricated
// storage location.
func (s *Server) UploadImage(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "BAD_REQUEST", "file is required")
	}
	folder := c.FormValue("folder")
	if folder == "" {
		folder = "uploads"
	}

	src, err := file.Open()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "UPLOAD_FAILED", "failed to open file")
	}
	defer src.Close()
	size, _ := io.Copy(io.Discard, src)

	key := fmt.Sprintf("%s/%s_%s", folder, uuid.New().String()[:8], file.Filename)
	return dataJSON(c, map[string]interface{}{
		"key":          key,
		"url":          "http://localhost:9000/ai-commerce/" + key,
		"bucket":       "ai-commerce",
		"filename":     file.Filename,
		"content_type": file.Header.Get("Content-Type"),
		"size":         size,
	})
}

func (s *Server) thread(id string) *thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[id]
}

func dataJSON(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
