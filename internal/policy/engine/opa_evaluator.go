// Package engine evaluates organization role requirements with OPA Rego.
package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"orgauth/backend/internal/membership/domain"
)

const rolePolicyQuery = "data.orgauth.rbac.allow"

// DefaultRolePolicy allows a role equal to the required one; admin is a superset of member.
const DefaultRolePolicy = `package orgauth.rbac

default allow := false

allow if {
	input.held == "admin"
}

allow if {
	input.held == input.required
	input.held in {"admin", "member"}
}
`

// OPAEvaluator evaluates the role policy with a query prepared once at construction.
// It implements rbac.RoleEvaluator.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultRolePolicy when empty) and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRolePolicy
	}
	q, err := rego.New(
		rego.Query(rolePolicyQuery),
		rego.Module("rbac.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare role policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// Allows reports whether a member holding held may perform an operation requiring required.
// An undefined result denies.
func (e *OPAEvaluator) Allows(ctx context.Context, held, required domain.Role) (bool, error) {
	input := map[string]interface{}{
		"held":     string(held),
		"required": string(required),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval role policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck evaluates a known-good input and fails if the engine cannot answer it.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.Allows(ctx, domain.RoleAdmin, domain.RoleMember)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("role policy denied admin for member requirement")
	}
	return nil
}
