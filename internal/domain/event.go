package domain

import "encoding/json"

// EventType is the canonical event vocabulary after normalization. Both
// backend wire dialects map into this closed set.
type EventType string

const (
	EventConnected         EventType = "connected"
	EventThought           EventType = "thought"
	EventReasoning         EventType = "reasoning"
	EventAgentStarted      EventType = "agent_started"
	EventAgentProgress     EventType = "agent_progress"
	EventAgentCompleted    EventType = "agent_completed"
	EventAgentFailed       EventType = "agent_failed"
	EventSubagentStarted   EventType = "subagent_started"
	EventSubagentCompleted EventType = "subagent_completed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventApprovalRequired  EventType = "approval_required"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
	EventHeartbeat         EventType = "heartbeat"
)

// ThoughtData is the payload of a thought event.
type ThoughtData struct {
	Agent     AgentCode `json:"agent"`
	Thought   string    `json:"thought"`
	NextAgent AgentCode `json:"next_agent,omitempty"`
}

// AgentStartedData is the payload of an agent_started event.
type AgentStartedData struct {
	Agent AgentCode `json:"agent"`
	Task  string    `json:"task"`
}

// AgentProgressData is the payload of an agent_progress event.
type AgentProgressData struct {
	Agent    AgentCode `json:"agent"`
	Step     string    `json:"step"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message"`
}

// AgentCompletedData is the payload of an agent_completed event.
type AgentCompletedData struct {
	Agent      AgentCode       `json:"agent"`
	Result     json.RawMessage `json:"result,omitempty"`
	Confidence float64         `json:"confidence"`
	DurationMs int64           `json:"duration_ms"`
}

// AgentFailedData is the payload of an agent_failed event.
type AgentFailedData struct {
	Agent       AgentCode `json:"agent"`
	Error       string    `json:"error"`
	Recoverable bool      `json:"recoverable"`
}

// ResultData is the payload of a complete event, from either dialect.
type ResultData struct {
	Summary     string          `json:"summary"`
	Details     json.RawMessage `json:"details,omitempty"`
	TotalTimeMs int64           `json:"total_time_ms"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Event is one canonical occurrence produced by the normalizer. Type selects
// which payload pointer is set; events with no payload carry none.
type Event struct {
	Type     EventType
	ThreadID string

	Thought   *ThoughtData
	Started   *AgentStartedData
	Progress  *AgentProgressData
	Completed *AgentCompletedData
	Failed    *AgentFailedData
	Approval  *ApprovalRequest
	Result    *ResultData
	Err       *ErrorData
}
