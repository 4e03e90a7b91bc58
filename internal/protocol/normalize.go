// Package protocol parses raw stream frames and normalizes the two backend
// event dialects into the canonical event set.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// ErrUnknownEvent marks a frame with a discriminant outside the known
// vocabulary. Callers drop the frame and log it; it is never fatal.
var ErrUnknownEvent = errors.New("unknown event type")

// ErrIgnoredFrame marks a structurally valid frame that does not describe any
// canonical occurrence (dialect-B frames other than the completion shape).
var ErrIgnoredFrame = errors.New("frame carries no canonical event")

// fallbackSummary is used when a completion frame has no report text.
const fallbackSummary = "작업이 완료되었습니다."

// frame is the superset of both wire dialects.
//
// Dialect A carries an explicit "event" discriminant plus a "data" payload.
// Dialect B carries "phase"/"step" at the top level with a "result" object.
type frame struct {
	Event     string          `json:"event"`
	ThreadID  string          `json:"thread_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`

	Phase  string       `json:"phase"`
	Step   string       `json:"step"`
	Result *frameResult `json:"result"`
}

type frameResult struct {
	Report  string          `json:"report"`
	Summary json.RawMessage `json:"summary"`
}

// stepCompletedData is the dialect-B shape nested inside a dialect-A
// step_completed payload. The backend emits the final report either way.
type stepCompletedData struct {
	Step   string       `json:"step"`
	Phase  string       `json:"phase"`
	Result *frameResult `json:"result"`
}

// completeData is the payload of a dialect-A complete event. Older backends
// nest the dialect-B result object inside it.
type completeData struct {
	Summary     string          `json:"summary"`
	Details     json.RawMessage `json:"details"`
	TotalTimeMs int64           `json:"total_time_ms"`
	Result      *frameResult    `json:"result"`
}

// Normalize parses one raw frame into zero or one canonical event.
//
// Dispatch is discriminant-first: if the frame names an explicit event type it
// wins; only a frame without one falls back to the phase/step heuristic. This
// ordering is a compatibility shim for the two backend emission styles and
// must not change.
func Normalize(raw []byte) (*domain.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	if f.Event == "" {
		return normalizePhaseStep(&f)
	}

	ev := &domain.Event{Type: domain.EventType(f.Event), ThreadID: f.ThreadID}

	switch domain.EventType(f.Event) {
	case domain.EventConnected, domain.EventHeartbeat:
		return ev, nil

	case domain.EventReasoning, domain.EventSubagentStarted,
		domain.EventSubagentCompleted, domain.EventStepStarted:
		// Observed for liveness and diagnostics only; no transcript effect.
		return ev, nil

	case domain.EventThought:
		ev.Thought = &domain.ThoughtData{}
		return ev, decodeData(f.Data, ev.Thought)

	case domain.EventAgentStarted:
		ev.Started = &domain.AgentStartedData{}
		return ev, decodeData(f.Data, ev.Started)

	case domain.EventAgentProgress:
		ev.Progress = &domain.AgentProgressData{}
		return ev, decodeData(f.Data, ev.Progress)

	case domain.EventAgentCompleted:
		ev.Completed = &domain.AgentCompletedData{}
		return ev, decodeData(f.Data, ev.Completed)

	case domain.EventAgentFailed:
		ev.Failed = &domain.AgentFailedData{}
		return ev, decodeData(f.Data, ev.Failed)

	case domain.EventStepCompleted:
		return normalizeStepCompleted(ev, f.Data)

	case domain.EventApprovalRequired:
		ev.Approval = &domain.ApprovalRequest{}
		return ev, decodeData(f.Data, ev.Approval)

	case domain.EventComplete:
		return normalizeComplete(ev, f.Data)

	case domain.EventError:
		ev.Err = &domain.ErrorData{}
		return ev, decodeData(f.Data, ev.Err)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

// normalizePhaseStep handles dialect B: no discriminant, phase/step at the top
// level. Only the terminal report shape maps to a canonical event.
func normalizePhaseStep(f *frame) (*domain.Event, error) {
	if f.Phase == "COMPLETED" && f.Step == "report" {
		return &domain.Event{
			Type:     domain.EventComplete,
			ThreadID: f.ThreadID,
			Result:   resultFromReport(f.Result),
		}, nil
	}
	return nil, ErrIgnoredFrame
}

// normalizeStepCompleted promotes a step_completed event that carries the
// final report to a completion; any other step_completed stays informational.
func normalizeStepCompleted(ev *domain.Event, data json.RawMessage) (*domain.Event, error) {
	var sd stepCompletedData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sd); err != nil {
			return nil, fmt.Errorf("failed to parse step_completed data: %w", err)
		}
	}
	if sd.Step == "report" && sd.Phase == "COMPLETED" {
		ev.Type = domain.EventComplete
		ev.Result = resultFromReport(sd.Result)
	}
	return ev, nil
}

// normalizeComplete accepts both the flat summary/details payload and the
// nested result.report/result.summary payload older backends emit.
func normalizeComplete(ev *domain.Event, data json.RawMessage) (*domain.Event, error) {
	var cd completeData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cd); err != nil {
			return nil, fmt.Errorf("failed to parse complete data: %w", err)
		}
	}

	res := &domain.ResultData{
		Summary:     cd.Summary,
		Details:     cd.Details,
		TotalTimeMs: cd.TotalTimeMs,
	}
	if res.Summary == "" && cd.Result != nil {
		res.Summary = cd.Result.Report
	}
	if len(res.Details) == 0 && cd.Result != nil {
		res.Details = cd.Result.Summary
	}
	if res.Summary == "" {
		res.Summary = fallbackSummary
	}
	ev.Result = res
	return ev, nil
}

func resultFromReport(r *frameResult) *domain.ResultData {
	res := &domain.ResultData{Summary: fallbackSummary}
	if r != nil {
		if r.Report != "" {
			res.Summary = r.Report
		}
		res.Details = r.Summary
	}
	return res
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}
	return nil
}
