package mockagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// PolicyEngine decides whether an execute request gets an approval gate
// inserted into its scenario.
type PolicyEngine struct {
	query rego.PreparedEvalQuery
}

// NewPolicyEngine compiles the given rego policy.
func NewPolicyEngine(ctx context.Context, policyContent string) (*PolicyEngine, error) {
	r := rego.New(
		rego.Query("data.approval_gate.decision"),
		rego.Module("approval_gate.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &PolicyEngine{query: query}, nil
}

// Evaluate returns "auto" or "require_approval" for the request.
func (e *PolicyEngine) Evaluate(ctx context.Context, request string, imageCount int) (string, error) {
	input := map[string]interface{}{
		"request":     strings.ToLower(request),
		"image_count": imageCount,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "auto", nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "auto", nil
}

// DefaultPolicy gates price-sensitive and bulk requests behind an approval.
const DefaultPolicy = `
package approval_gate

default decision = "auto"

decision = "require_approval" {
	contains(input.request, "price")
}

decision = "require_approval" {
	contains(input.request, "가격")
}

decision = "require_approval" {
	input.image_count > 3
}
`
