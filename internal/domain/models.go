// Package domain defines the core domain models for the chat session controller.
package domain

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the status of a chat session.
type SessionStatus string

const (
	SessionStatusIdle            SessionStatus = "idle"
	SessionStatusExecuting       SessionStatus = "executing"
	SessionStatusWaitingApproval SessionStatus = "waiting_approval"
	SessionStatusCompleted       SessionStatus = "completed"
	SessionStatusError           SessionStatus = "error"
)

// InputDisabled reports whether user input is blocked for the status.
// Input is blocked exactly while a workflow is running or waiting on a human.
func (s SessionStatus) InputDisabled() bool {
	return s == SessionStatusExecuting || s == SessionStatusWaitingApproval
}

// MessageRole represents who a message is attributed to.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageType is the variant tag of a transcript message.
type MessageType string

const (
	MessageTypeUserInput   MessageType = "user_input"
	MessageTypeThought     MessageType = "thought"
	MessageTypeAgentStatus MessageType = "agent_status"
	MessageTypeProgress    MessageType = "progress"
	MessageTypeApproval    MessageType = "approval"
	MessageTypeResult      MessageType = "result"
	MessageTypeError       MessageType = "error"
	MessageTypeInfo        MessageType = "info"
)

// AgentCode identifies a backend agent.
type AgentCode string

const (
	AgentSupervisor AgentCode = "SUPERVISOR"
	AgentMD         AgentCode = "MD"
	AgentCS         AgentCode = "CS"
	AgentDisplay    AgentCode = "DISPLAY"
	AgentPurchase   AgentCode = "PURCHASE"
	AgentLogistics  AgentCode = "LOGISTICS"
	AgentMarketing  AgentCode = "MARKETING"
)

// AgentRunStatus is the sub-status carried by an agent_status message.
type AgentRunStatus string

const (
	AgentRunStarted   AgentRunStatus = "started"
	AgentRunCompleted AgentRunStatus = "completed"
	AgentRunFailed    AgentRunStatus = "failed"
)

// Attachment is a file reference embedded in a user message.
type Attachment struct {
	ID   string `json:"id"`
	Type string `json:"type"` // image, file
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Message is one entry of the session transcript. It is a tagged union over
// the eight message variants: Type selects which optional fields are set.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`

	// user_input, info; also the display text of progress and error messages
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// thought
	Agent     AgentCode `json:"agent,omitempty"`
	Thought   string    `json:"thought,omitempty"`
	NextAgent AgentCode `json:"next_agent,omitempty"`

	// agent_status
	AgentStatus AgentRunStatus  `json:"status,omitempty"`
	Task        string          `json:"task,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Confidence  float64         `json:"confidence,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`

	// progress (also uses Agent, Content)
	Step     string  `json:"step,omitempty"`
	Progress float64 `json:"progress,omitempty"`

	// approval
	Approval  *ApprovalRequest  `json:"approval,omitempty"`
	Responded bool              `json:"responded,omitempty"`
	Response  *ApprovalDecision `json:"response,omitempty"`

	// result
	ThreadID    string          `json:"thread_id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	TotalTimeMs int64           `json:"total_time_ms,omitempty"`

	// error (also uses Content for the message text)
	Code        string `json:"code,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// ApprovalResolved reports whether an approval message no longer waits on a
// decision. Either the local round trip (Responded) or a non-pending status
// on the embedded request is terminal.
func (m *Message) ApprovalResolved() bool {
	if m.Type != MessageTypeApproval {
		return false
	}
	if m.Responded {
		return true
	}
	return m.Approval != nil && m.Approval.Status != ApprovalStatusPending
}

// Session is the single live conversation. Messages are the canonical
// transcript: insertion-ordered and never reordered.
type Session struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id,omitempty"`
	SellerNo  int           `json:"seller_no,omitempty"`
	Status    SessionStatus `json:"status"`
	Messages  []Message     `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Snapshot is the bounded persisted mirror of a session: identity plus the
// message tail. Status is deliberately absent; rehydration always starts idle.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}
