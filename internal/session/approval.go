package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
)

// Respond round-trips an approval decision to the backend and reconciles the
// response into the transcript. decision must be APPROVED, REJECTED or
// MODIFIED; MODIFIED requires a non-empty modifications payload.
//
// On success exactly one approval message is mutated in place and the session
// moves to executing (approved/modified) or idle (rejected). On remote
// failure the approval stays unresolved so the user can retry. A stale
// approval id leaves session state untouched.
func (c *Controller) Respond(ctx context.Context, approvalID string, decision domain.ApprovalStatus, modifications json.RawMessage) error {
	var (
		resp *domain.ApprovalResponse
		err  error
	)

	switch decision {
	case domain.ApprovalStatusApproved:
		resp, err = c.backend.Approve(ctx, approvalID, nil, "")
	case domain.ApprovalStatusModified:
		if len(modifications) == 0 {
			return fmt.Errorf("decision MODIFIED requires modifications")
		}
		resp, err = c.backend.Approve(ctx, approvalID, modifications, "")
	case domain.ApprovalStatusRejected:
		resp, err = c.backend.Reject(ctx, approvalID, "")
	default:
		return fmt.Errorf("invalid approval decision %q", decision)
	}

	if err != nil {
		log.Printf("ERROR: approval %s decision failed: %v", approvalID, err)
		c.store.AddInfo("승인 처리 중 오류가 발생했습니다.")
		return fmt.Errorf("failed to respond to approval: %w", err)
	}

	resolvedID := resp.ApprovalID
	if resolvedID == "" {
		resolvedID = approvalID
	}
	if !c.store.ResolveApproval(resolvedID, decision, modifications) {
		// Backend and client must not desync catastrophically on a stale id.
		log.Printf("WARN: no unresolved approval message for %s", resolvedID)
		return nil
	}

	switch decision {
	case domain.ApprovalStatusApproved:
		c.store.AddInfo("승인이 완료되었습니다.")
		c.store.SetStatus(domain.SessionStatusExecuting)
	case domain.ApprovalStatusModified:
		c.store.AddInfo("수정 사항이 반영되어 승인되었습니다.")
		c.store.SetStatus(domain.SessionStatusExecuting)
	case domain.ApprovalStatusRejected:
		c.store.AddInfo("승인이 거절되었습니다.")
		c.store.SetStatus(domain.SessionStatusIdle)
	}
	return nil
}
