package mockagent

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// thread is one scripted workflow instance.
type thread struct {
	id         string
	frames     [][]byte // frames before the gate (or all of them)
	gate       *domain.ApprovalRequest
	postFrames [][]byte // frames after an approved gate

	decision chan domain.ApprovalStatus
}

// frame marshals one dialect-A wire frame.
func frame(event string, threadID string, data interface{}) []byte {
	payload := map[string]interface{}{
		"event":     event,
		"thread_id": threadID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		payload["data"] = data
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal frame: %v", err)
		return []byte("{}")
	}
	return b
}

// reportFrame marshals the dialect-B completion shape: no discriminant,
// phase/step at the top level. Kept deliberately so clients exercise both
// emission styles.
func reportFrame(threadID, report string, summary interface{}) []byte {
	payload := map[string]interface{}{
		"thread_id": threadID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"phase":     "COMPLETED",
		"step":      "report",
		"result": map[string]interface{}{
			"report":  report,
			"summary": summary,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal report frame: %v", err)
		return []byte("{}")
	}
	return b
}

// buildThread scripts the scenario for one request. withGate inserts an
// approval checkpoint before the final report.
func buildThread(request string, withGate bool) *thread {
	threadID := "thread_" + uuid.New().String()[:8]
	th := &thread{
		id:       threadID,
		decision: make(chan domain.ApprovalStatus, 1),
	}

	th.frames = [][]byte{
		frame("connected", threadID, nil),
		frame("thought", threadID, domain.ThoughtData{
			Agent:     domain.AgentSupervisor,
			Thought:   "요청을 분석하고 담당 에이전트를 결정합니다.",
			NextAgent: domain.AgentMD,
		}),
		frame("agent_started", threadID, domain.AgentStartedData{
			Agent: domain.AgentMD,
			Task:  request,
		}),
		frame("agent_progress", threadID, domain.AgentProgressData{
			Agent:    domain.AgentMD,
			Step:     "analyze",
			Progress: 30,
			Message:  "요청 내용을 분석하는 중...",
		}),
		frame("agent_progress", threadID, domain.AgentProgressData{
			Agent:    domain.AgentMD,
			Step:     "analyze",
			Progress: 80,
			Message:  "분석이 거의 완료되었습니다.",
		}),
		frame("agent_completed", threadID, domain.AgentCompletedData{
			Agent:      domain.AgentMD,
			Result:     json.RawMessage(`{"items":1}`),
			Confidence: 0.92,
			DurationMs: 1200,
		}),
	}

	finish := [][]byte{
		frame("step_completed", threadID, map[string]interface{}{"step": "analyze"}),
		reportFrame(threadID, "요청하신 작업을 완료했습니다.", map[string]interface{}{"items": 1}),
	}

	if withGate {
		th.gate = &domain.ApprovalRequest{
			ApprovalID: "appr_" + uuid.New().String()[:8],
			ThreadID:   threadID,
			Type:       domain.ApprovalTypePriceConfirmation,
			Agent:      domain.AgentMD,
			Data:       json.RawMessage(`{"proposed_price":12900}`),
			Status:     domain.ApprovalStatusPending,
			CreatedAt:  time.Now().UTC(),
		}
		th.postFrames = finish
	} else {
		th.frames = append(th.frames, finish...)
	}
	return th
}
