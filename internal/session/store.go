// Package session owns the single source of truth for a chat session: the
// status, the ordered message log, and the serialized mutation path that
// canonical events and user actions funnel through.
package session

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// snapshotTail bounds how many messages the persisted snapshot keeps.
const snapshotTail = 50

// Snapshotter mirrors the session to durable storage. Writes are best-effort
// whole-snapshot replacements.
type Snapshotter interface {
	Save(snap *domain.Snapshot) error
}

// Listener observes appended or mutated messages, e.g. for rendering.
type Listener func(msg domain.Message)

// Store holds the live session. Every mutation goes through its mutex; there
// is no other writer.
type Store struct {
	mu         sync.Mutex
	session    domain.Session
	resultSeen bool

	snapshots Snapshotter
	listener  Listener
	now       func() time.Time
}

// NewStore creates a store with a fresh idle session.
func NewStore(snapshots Snapshotter) *Store {
	s := &Store{
		snapshots: snapshots,
		now:       time.Now,
	}
	s.session = s.freshSession()
	return s
}

// SetListener registers a message observer. Must be called before the store
// receives traffic.
func (s *Store) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

func (s *Store) freshSession() domain.Session {
	now := s.now()
	return domain.Session{
		ID:        "session_" + uuid.New().String()[:8],
		Status:    domain.SessionStatusIdle,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Store) newMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}

// Rehydrate replaces the session with a persisted snapshot. Status is always
// forced back to idle: a stored "executing" with no live connection is
// meaningless and must not block input.
func (s *Store) Rehydrate(snap *domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap == nil || snap.SessionID == "" {
		return
	}
	s.session = s.freshSession()
	s.session.ID = snap.SessionID
	if len(snap.Messages) > 0 {
		s.session.Messages = append([]domain.Message{}, snap.Messages...)
	}
	s.resultSeen = false
}

// Reset clears everything back to a fresh idle session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = s.freshSession()
	s.resultSeen = false
	s.persist()
}

// Session returns a copy of the current session.
func (s *Store) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.session
	out.Messages = append([]domain.Message{}, s.session.Messages...)
	return out
}

// Status returns the current session status.
func (s *Store) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Status
}

// ThreadID returns the bound workflow thread, or "" when none is bound.
func (s *Store) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ThreadID
}

// InputDisabled reports whether new user input is currently blocked.
func (s *Store) InputDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Status.InputDisabled()
}

// SetStatus sets the session status.
func (s *Store) SetStatus(status domain.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatus(status)
	s.persist()
}

// AppendUserInput records the user's request and flips the session to
// executing ahead of the remote execute call.
func (s *Store) AppendUserInput(content string, images []string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		ID:        s.newMessageID(),
		Role:      domain.RoleUser,
		Type:      domain.MessageTypeUserInput,
		Timestamp: s.now(),
		Content:   content,
	}
	for i, url := range images {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:   fmt.Sprintf("attach_%d", i),
			Type: "image",
			Name: fmt.Sprintf("image_%d.jpg", i),
			URL:  url,
		})
	}
	s.append(msg)
	s.setStatus(domain.SessionStatusExecuting)
	s.persist()
	return msg
}

// BindThread records the backend-assigned thread and the progress info
// message. A new thread starts a new completion cycle.
func (s *Store) BindThread(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.ThreadID = threadID
	s.resultSeen = false
	s.append(domain.Message{
		ID:        s.newMessageID(),
		Role:      domain.RoleSystem,
		Type:      domain.MessageTypeInfo,
		Timestamp: s.now(),
		Content:   "AI 에이전트가 요청을 처리하고 있습니다...",
	})
	s.persist()
}

// ExecuteFailed records a failed execute call.
func (s *Store) ExecuteFailed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason == "" {
		reason = "에이전트 실행에 실패했습니다."
	}
	s.append(domain.Message{
		ID:          s.newMessageID(),
		Role:        domain.RoleSystem,
		Type:        domain.MessageTypeError,
		Timestamp:   s.now(),
		Code:        "EXECUTION_ERROR",
		Content:     reason,
		Recoverable: true,
	})
	s.setStatus(domain.SessionStatusError)
	s.persist()
}

// AddInfo appends an informational system message.
func (s *Store) AddInfo(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(domain.Message{
		ID:        s.newMessageID(),
		Role:      domain.RoleSystem,
		Type:      domain.MessageTypeInfo,
		Timestamp: s.now(),
		Content:   content,
	})
	s.persist()
}

// AddConnectionError records a terminal connectivity failure as a recoverable
// error message without changing the session status.
func (s *Store) AddConnectionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(domain.Message{
		ID:          s.newMessageID(),
		Role:        domain.RoleSystem,
		Type:        domain.MessageTypeError,
		Timestamp:   s.now(),
		Code:        "CONNECTION_ERROR",
		Content:     fmt.Sprintf("스트림 연결이 끊어졌습니다: %v", err),
		Recoverable: true,
	})
	s.persist()
}

// Apply is the single apply path for canonical events. One event is processed
// fully before the next; frame arrival order is transcript order.
func (s *Store) Apply(ev *domain.Event) {
	if ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case domain.EventConnected, domain.EventHeartbeat:
		// Liveness only.

	case domain.EventReasoning, domain.EventSubagentStarted,
		domain.EventSubagentCompleted, domain.EventStepStarted,
		domain.EventStepCompleted:
		log.Printf("stream event %s (no transcript effect)", ev.Type)

	case domain.EventThought:
		if ev.Thought == nil {
			return
		}
		s.append(domain.Message{
			ID:        s.newMessageID(),
			Role:      domain.RoleAssistant,
			Type:      domain.MessageTypeThought,
			Timestamp: s.now(),
			Agent:     ev.Thought.Agent,
			Thought:   ev.Thought.Thought,
			NextAgent: ev.Thought.NextAgent,
		})

	case domain.EventAgentStarted:
		if ev.Started == nil {
			return
		}
		s.append(domain.Message{
			ID:          s.newMessageID(),
			Role:        domain.RoleAssistant,
			Type:        domain.MessageTypeAgentStatus,
			Timestamp:   s.now(),
			Agent:       ev.Started.Agent,
			AgentStatus: domain.AgentRunStarted,
			Task:        ev.Started.Task,
		})

	case domain.EventAgentProgress:
		if ev.Progress == nil {
			return
		}
		s.upsertProgress(ev.Progress)

	case domain.EventAgentCompleted:
		if ev.Completed == nil {
			return
		}
		s.append(domain.Message{
			ID:          s.newMessageID(),
			Role:        domain.RoleAssistant,
			Type:        domain.MessageTypeAgentStatus,
			Timestamp:   s.now(),
			Agent:       ev.Completed.Agent,
			AgentStatus: domain.AgentRunCompleted,
			Result:      ev.Completed.Result,
			Confidence:  ev.Completed.Confidence,
			DurationMs:  ev.Completed.DurationMs,
		})

	case domain.EventAgentFailed:
		if ev.Failed == nil {
			return
		}
		s.append(domain.Message{
			ID:          s.newMessageID(),
			Role:        domain.RoleAssistant,
			Type:        domain.MessageTypeAgentStatus,
			Timestamp:   s.now(),
			Agent:       ev.Failed.Agent,
			AgentStatus: domain.AgentRunFailed,
		})
		if !ev.Failed.Recoverable {
			s.append(domain.Message{
				ID:          s.newMessageID(),
				Role:        domain.RoleSystem,
				Type:        domain.MessageTypeError,
				Timestamp:   s.now(),
				Code:        "AGENT_FAILED",
				Content:     ev.Failed.Error,
				Recoverable: false,
			})
			s.setStatus(domain.SessionStatusError)
		}

	case domain.EventApprovalRequired:
		if ev.Approval == nil {
			return
		}
		approval := *ev.Approval
		s.append(domain.Message{
			ID:        s.newMessageID(),
			Role:      domain.RoleAssistant,
			Type:      domain.MessageTypeApproval,
			Timestamp: s.now(),
			Approval:  &approval,
			Responded: false,
		})
		// The one mechanism that halts autonomous progress for human input.
		s.setStatus(domain.SessionStatusWaitingApproval)

	case domain.EventComplete:
		if s.resultSeen {
			// Both dialects can signal the same completion; the second one
			// is a no-op.
			log.Printf("duplicate completion for thread %s ignored", s.session.ThreadID)
			return
		}
		res := ev.Result
		if res == nil {
			res = &domain.ResultData{}
		}
		threadID := ev.ThreadID
		if threadID == "" {
			threadID = s.session.ThreadID
		}
		s.append(domain.Message{
			ID:          s.newMessageID(),
			Role:        domain.RoleAssistant,
			Type:        domain.MessageTypeResult,
			Timestamp:   s.now(),
			ThreadID:    threadID,
			Summary:     res.Summary,
			Details:     res.Details,
			TotalTimeMs: res.TotalTimeMs,
		})
		s.resultSeen = true
		s.setStatus(domain.SessionStatusCompleted)

	case domain.EventError:
		if ev.Err == nil {
			return
		}
		s.append(domain.Message{
			ID:          s.newMessageID(),
			Role:        domain.RoleSystem,
			Type:        domain.MessageTypeError,
			Timestamp:   s.now(),
			Code:        ev.Err.Code,
			Content:     ev.Err.Message,
			Recoverable: ev.Err.Recoverable,
		})
		if !ev.Err.Recoverable {
			s.setStatus(domain.SessionStatusError)
		}

	default:
		log.Printf("WARN: unhandled event type %s", ev.Type)
	}

	s.persist()
}

// ResolveApproval mutates the matching unresolved approval message in place.
// It reports whether a message was actually resolved; a stale id resolves
// nothing and the caller must not touch session status.
func (s *Store) ResolveApproval(approvalID string, decision domain.ApprovalStatus, modifications json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		m := &s.session.Messages[i]
		if m.Type != domain.MessageTypeApproval || m.Approval == nil {
			continue
		}
		if m.Approval.ApprovalID != approvalID || m.ApprovalResolved() {
			continue
		}
		m.Responded = true
		m.Response = &domain.ApprovalDecision{
			Decision:      decision,
			Modifications: modifications,
		}
		s.session.UpdatedAt = s.now()
		s.notify(*m)
		s.persist()
		return true
	}
	return false
}

// PendingApproval returns the most recent unresolved approval message, if any.
func (s *Store) PendingApproval() *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		m := s.session.Messages[i]
		if m.Type == domain.MessageTypeApproval && !m.ApprovalResolved() {
			out := m
			return &out
		}
	}
	return nil
}

// upsertProgress keeps one live progress message per (agent, step): a later
// event replaces the prior content in place, same id, same position.
func (s *Store) upsertProgress(p *domain.AgentProgressData) {
	for i := range s.session.Messages {
		m := &s.session.Messages[i]
		if m.Type == domain.MessageTypeProgress && m.Agent == p.Agent && m.Step == p.Step {
			m.Progress = p.Progress
			m.Content = p.Message
			m.Timestamp = s.now()
			s.session.UpdatedAt = s.now()
			s.notify(*m)
			return
		}
	}
	s.append(domain.Message{
		ID:        s.newMessageID(),
		Role:      domain.RoleAssistant,
		Type:      domain.MessageTypeProgress,
		Timestamp: s.now(),
		Agent:     p.Agent,
		Step:      p.Step,
		Progress:  p.Progress,
		Content:   p.Message,
	})
}

// append adds a message to the log; callers hold the lock.
func (s *Store) append(msg domain.Message) {
	s.session.Messages = append(s.session.Messages, msg)
	s.session.UpdatedAt = s.now()
	s.notify(msg)
}

func (s *Store) setStatus(status domain.SessionStatus) {
	s.session.Status = status
	s.session.UpdatedAt = s.now()
}

func (s *Store) notify(msg domain.Message) {
	if s.listener != nil {
		s.listener(msg)
	}
}

// persist mirrors the session tail to the snapshot store; callers hold the
// lock. Failures are logged and swallowed: the snapshot is best-effort.
func (s *Store) persist() {
	if s.snapshots == nil {
		return
	}
	msgs := s.session.Messages
	if len(msgs) > snapshotTail {
		msgs = msgs[len(msgs)-snapshotTail:]
	}
	snap := &domain.Snapshot{
		SessionID: s.session.ID,
		Messages:  append([]domain.Message{}, msgs...),
	}
	if err := s.snapshots.Save(snap); err != nil {
		log.Printf("WARN: failed to persist session snapshot: %v", err)
	}
}
