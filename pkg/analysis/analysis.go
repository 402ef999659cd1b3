// Package analysis implements policy analysis (spec §4.7): given a
// policy node, a subject, and a required permission mask, it evaluates
// ACL access and the node's effective constraints for a class, and
// exposes the combined isAccessAllowed/verifyAccessAllowed decision.
// Grounded on the teacher's pdp.PolicyDecisionPoint shape (a decision
// struct over a request, evaluated by composing smaller engines) with
// the pluggable-backend abstraction dropped in favor of direct
// evaluation against pkg/acl and pkg/constraint.
package analysis

import (
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/jitaccess/broker/pkg/jitbroker"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
)

// messenger is implemented by constraints that can surface a
// human-readable reason when unsatisfied (currently only
// *constraint.Expression).
type messenger interface {
	Message() string
}

// Request carries the fixed inputs to an analysis: the policy node
// (typically a *policy.JitGroup), the resolved subject, the node's
// address (for constraint Context), and the permission mask required
// for the operation being analyzed (e.g. acl.Join for a join attempt).
type Request struct {
	Node         policy.Node
	Subject      acl.Subject
	SubjectEmail string
	GroupID      principal.ID
	Environment  string
	System       string
	Group        string
	Required     acl.Permission
}

// Analysis is a re-runnable evaluation: ApplyConstraints materializes
// the input list for a class, callers bind values via each Check's Set,
// then Execute evaluates the bound checks against the request.
type Analysis struct {
	req    Request
	checks []constraint.Check
}

// New starts an analysis for req.
func New(req Request) *Analysis {
	return &Analysis{req: req}
}

// ApplyConstraints computes the node's effective constraints for class
// and returns a fresh Check per constraint, ready for input binding via
// Check.Set. Calling this again replaces the bound checks (the analysis
// is re-runnable, per spec §4.7).
func (a *Analysis) ApplyConstraints(class constraint.Class) []constraint.Check {
	effective := policy.EffectiveConstraints(a.req.Node, class)
	checks := make([]constraint.Check, len(effective))
	for i, c := range effective {
		checks[i] = c.CreateCheck()
	}
	a.checks = checks
	return checks
}

// Result is the outcome of Execute: ACL + constraint evaluation over
// the bound checks, per spec §4.7.
type Result struct {
	ActiveMembership       *principal.Principal
	AccessByACL            bool
	SatisfiedConstraints   []constraint.Constraint
	UnsatisfiedConstraints []constraint.Constraint
	FailedConstraints      map[constraint.Constraint]*jitbroker.Diagnostic
	ChosenExpiry           *time.Duration
}

// IsAccessAllowed reports whether the subject may proceed: access is
// granted by ACL, and (ignoreConstraints or every constraint is
// satisfied with none failed).
func (r *Result) IsAccessAllowed(ignoreConstraints bool) bool {
	if !r.AccessByACL {
		return false
	}
	if ignoreConstraints {
		return true
	}
	return len(r.UnsatisfiedConstraints) == 0 && len(r.FailedConstraints) == 0
}

// VerifyAccessAllowed returns a *jitbroker.Error describing why access
// is not allowed, or nil if IsAccessAllowed(ignoreConstraints) is true.
func (r *Result) VerifyAccessAllowed(ignoreConstraints bool) error {
	if !r.AccessByACL {
		if r.ActiveMembership != nil {
			return jitbroker.AccessDenied("already a member; access is available until the existing membership expires", true)
		}
		return jitbroker.AccessDenied("not authorized", false)
	}
	if ignoreConstraints {
		return nil
	}
	if len(r.UnsatisfiedConstraints) == 1 && len(r.FailedConstraints) == 0 {
		c := r.UnsatisfiedConstraints[0]
		if m, ok := c.(messenger); ok && m.Message() != "" {
			return jitbroker.ConstraintUnsatisfied(c.Name(), m.Message())
		}
	}
	if len(r.FailedConstraints) > 0 {
		diags := make([]jitbroker.Diagnostic, 0, len(r.FailedConstraints))
		for c, d := range r.FailedConstraints {
			diags = append(diags, jitbroker.Diagnostic{ConstraintName: c.Name(), Message: d.Message})
		}
		return jitbroker.ConstraintFailed(diags)
	}
	if len(r.UnsatisfiedConstraints) > 0 {
		return jitbroker.AccessDenied("one or more constraints are unsatisfied", false)
	}
	return nil
}

// Execute evaluates ACL access and the bound checks against at, using
// activePrincipals (the subject's current principal set, so active JIT
// membership in the target group can be detected).
func (a *Analysis) Execute(at time.Time, activePrincipals []principal.Principal) *Result {
	result := &Result{
		FailedConstraints: map[constraint.Constraint]*jitbroker.Diagnostic{},
	}

	for _, p := range activePrincipals {
		if p.ID == a.req.GroupID && p.ActiveAt(at) {
			active := p
			result.ActiveMembership = &active
			break
		}
	}

	result.AccessByACL = acl.IsAllowedAt(policy.EffectiveACL(a.req.Node), a.req.Subject, a.req.Required, at)

	ctx := constraint.Context{
		SubjectEmail: a.req.SubjectEmail,
		Principals:   principalStrings(activePrincipals),
		Environment:  a.req.Environment,
		System:       a.req.System,
		Group:        a.req.Group,
	}

	for _, chk := range a.checks {
		outcome, diag := chk.Evaluate(ctx)
		switch {
		case outcome == constraint.Satisfied:
			result.SatisfiedConstraints = append(result.SatisfiedConstraints, chk.Constraint())
			if d, ok := constraint.ExtractExpiry(chk); ok {
				result.ChosenExpiry = &d
			}
		case diag != nil:
			result.FailedConstraints[chk.Constraint()] = diag
		default:
			result.UnsatisfiedConstraints = append(result.UnsatisfiedConstraints, chk.Constraint())
		}
	}

	return result
}

func principalStrings(principals []principal.Principal) []string {
	out := make([]string, len(principals))
	for i, p := range principals {
		out[i] = p.ID.String()
	}
	return out
}
