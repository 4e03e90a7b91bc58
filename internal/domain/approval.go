package domain

import (
	"encoding/json"
	"time"
)

// ApprovalType categorizes what kind of human sign-off a gate asks for.
type ApprovalType string

const (
	ApprovalTypePriceConfirmation  ApprovalType = "PRICE_CONFIRMATION"
	ApprovalTypeProductApproval    ApprovalType = "PRODUCT_APPROVAL"
	ApprovalTypeCampaignApproval   ApprovalType = "CAMPAIGN_APPROVAL"
	ApprovalTypeCSResponseApproval ApprovalType = "CS_RESPONSE_APPROVAL"
	ApprovalTypeHighValueOrder     ApprovalType = "HIGH_VALUE_ORDER"
	ApprovalTypeGeneral            ApprovalType = "GENERAL"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
	ApprovalStatusModified ApprovalStatus = "MODIFIED"
)

// ApprovalRequest is a human-in-the-loop gate emitted by the backend. Data is
// an opaque payload whose shape depends on Type.
type ApprovalRequest struct {
	ApprovalID string          `json:"approval_id"`
	ThreadID   string          `json:"thread_id"`
	Type       ApprovalType    `json:"type"`
	Agent      AgentCode       `json:"agent"`
	Data       json.RawMessage `json:"data,omitempty"`
	Status     ApprovalStatus  `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// ApprovalDecision is the locally recorded outcome of an approval round trip.
type ApprovalDecision struct {
	Decision      ApprovalStatus  `json:"decision"`
	Modifications json.RawMessage `json:"modifications,omitempty"`
}

// ApprovalResponse is the backend's reply to an approve/reject call.
type ApprovalResponse struct {
	ApprovalID    string          `json:"approval_id"`
	Decision      ApprovalStatus  `json:"decision"`
	Modifications json.RawMessage `json:"modifications,omitempty"`
	Comment       string          `json:"comment,omitempty"`
	RespondedAt   time.Time       `json:"responded_at"`
}
