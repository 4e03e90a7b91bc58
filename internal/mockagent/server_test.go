package mockagent

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/api"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/session"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/stream"
)

// chatStack is the full client wired against a mock backend instance.
type chatStack struct {
	srv  *httptest.Server
	ctrl *session.Controller
}

func newChatStack(t *testing.T, transportKind string) *chatStack {
	t.Helper()

	policy, err := NewPolicyEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	e := echo.New()
	e.HideBanner = true
	NewServer(policy, 0).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL+"/api/v1", "")
	ctrl := session.NewController(session.NewStore(nil), client, nil, 0)

	var transport stream.Transport
	if transportKind == "ws" {
		transport = stream.NewWSTransport(strings.Replace(srv.URL, "http", "ws", 1), "")
	} else {
		transport = stream.NewSSETransport(srv.URL, "")
	}
	runner := stream.NewRunner(transport, ctrl, stream.Config{BaseDelay: 10 * time.Millisecond, MaxRetries: 2})
	ctrl.SetRunner(runner)
	t.Cleanup(runner.Stop)

	return &chatStack{srv: srv, ctrl: ctrl}
}

func (s *chatStack) waitStatus(t *testing.T, want domain.SessionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.ctrl.Store().Status() == want
	}, 5*time.Second, 10*time.Millisecond, "session never reached %s", want)
}

func TestPlainRequestRunsToCompletion(t *testing.T) {
	stack := newChatStack(t, "sse")

	require.NoError(t, stack.ctrl.Send(context.Background(), "신상품 등록해줘", nil))
	stack.waitStatus(t, domain.SessionStatusCompleted)

	sess := stack.ctrl.Store().Session()

	var progress, results int
	var result domain.Message
	for _, m := range sess.Messages {
		switch m.Type {
		case domain.MessageTypeProgress:
			progress++
		case domain.MessageTypeResult:
			results++
			result = m
		}
	}
	// The scenario sends two progress frames for the same step; the second
	// replaces the first in place.
	assert.Equal(t, 1, progress)
	require.Equal(t, 1, results)
	assert.Equal(t, "요청하신 작업을 완료했습니다.", result.Summary)
	assert.False(t, stack.ctrl.Store().InputDisabled())
}

func TestPriceRequestGatesOnApproval(t *testing.T) {
	stack := newChatStack(t, "sse")

	require.NoError(t, stack.ctrl.Send(context.Background(), "price change to 12900", nil))
	stack.waitStatus(t, domain.SessionStatusWaitingApproval)

	pending := stack.ctrl.Store().PendingApproval()
	require.NotNil(t, pending)
	require.NotNil(t, pending.Approval)
	assert.Equal(t, domain.ApprovalTypePriceConfirmation, pending.Approval.Type)
	assert.True(t, stack.ctrl.Store().InputDisabled())

	err := stack.ctrl.Respond(context.Background(), pending.Approval.ApprovalID, domain.ApprovalStatusApproved, nil)
	require.NoError(t, err)
	stack.waitStatus(t, domain.SessionStatusCompleted)

	// No pending approval remains and the final report arrived.
	assert.Nil(t, stack.ctrl.Store().PendingApproval())
	sess := stack.ctrl.Store().Session()
	last := sess.Messages[len(sess.Messages)-1]
	assert.Equal(t, domain.MessageTypeResult, last.Type)
}

func TestRejectedApprovalHaltsWorkflow(t *testing.T) {
	stack := newChatStack(t, "sse")

	require.NoError(t, stack.ctrl.Send(context.Background(), "가격 인하 진행", nil))
	stack.waitStatus(t, domain.SessionStatusWaitingApproval)

	pending := stack.ctrl.Store().PendingApproval()
	require.NotNil(t, pending)

	err := stack.ctrl.Respond(context.Background(), pending.Approval.ApprovalID, domain.ApprovalStatusRejected, nil)
	require.NoError(t, err)
	stack.waitStatus(t, domain.SessionStatusIdle)

	// The workflow halted: no result message ever arrives.
	for _, m := range stack.ctrl.Store().Session().Messages {
		assert.NotEqual(t, domain.MessageTypeResult, m.Type)
	}
}

func TestSecondDecisionConflicts(t *testing.T) {
	stack := newChatStack(t, "sse")

	require.NoError(t, stack.ctrl.Send(context.Background(), "update the price please", nil))
	stack.waitStatus(t, domain.SessionStatusWaitingApproval)

	pending := stack.ctrl.Store().PendingApproval()
	require.NotNil(t, pending)
	id := pending.Approval.ApprovalID

	require.NoError(t, stack.ctrl.Respond(context.Background(), id, domain.ApprovalStatusApproved, nil))
	stack.waitStatus(t, domain.SessionStatusCompleted)

	// The gate is spent; the backend refuses a second decision.
	client := api.NewClient(stack.srv.URL+"/api/v1", "")
	_, err := client.Reject(context.Background(), id, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALREADY_DECIDED")
}

func TestWorkflowOverWebSocket(t *testing.T) {
	stack := newChatStack(t, "ws")

	require.NoError(t, stack.ctrl.Send(context.Background(), "재고 확인해줘", nil))
	stack.waitStatus(t, domain.SessionStatusCompleted)

	sess := stack.ctrl.Store().Session()
	var sawThought, sawResult bool
	for _, m := range sess.Messages {
		switch m.Type {
		case domain.MessageTypeThought:
			sawThought = true
		case domain.MessageTypeResult:
			sawResult = true
		}
	}
	assert.True(t, sawThought)
	assert.True(t, sawResult)
}

func TestPolicyEngineDecisions(t *testing.T) {
	engine, err := NewPolicyEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	cases := []struct {
		name       string
		request    string
		imageCount int
		want       string
	}{
		{"plain request", "상품 목록 보여줘", 0, "auto"},
		{"price keyword", "lower the price", 0, "require_approval"},
		{"korean price keyword", "가격 조정해줘", 0, "require_approval"},
		{"bulk images", "이미지 등록", 4, "require_approval"},
		{"few images", "이미지 등록", 2, "auto"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(context.Background(), tc.request, tc.imageCount)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
