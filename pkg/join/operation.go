// Package join implements the Join/Approve state machine and proposal
// tokens (spec §4.9): Created -> Input-bound -> Committed for
// self-approved joins, or Created -> Input-bound -> Proposed ->
// Committed when a peer must approve. Grounded on
// escalation.Manager's lifecycle shape (map of intents, mutex-guarded,
// clock injection, Approve/Deny/CheckTimeouts) adapted from
// "escalation intents awaiting human judgment" to "join proposals
// awaiting peer approval" — this package models a single operation's
// lifecycle rather than a manager over many, since spec.md scopes one
// operation per request rather than a long-lived intent registry.
package join

import (
	"context"
	"sync"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/analysis"
	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/jitaccess/broker/pkg/jitbroker"
	"github.com/jitaccess/broker/pkg/observability"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"github.com/jitaccess/broker/pkg/provision"
	"github.com/jitaccess/broker/pkg/replayset"
	"go.opentelemetry.io/otel/attribute"
)

// track starts an instrumented span via tracker, or is a no-op if
// tracker is nil — callers built without WithTracker stay unaffected.
func track(ctx context.Context, tracker observability.Tracker, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if tracker == nil {
		return ctx, func(error) {}
	}
	return tracker.TrackOperation(ctx, name, attrs...)
}

// State is the Join operation's lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateInputBound
	StateProposed
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInputBound:
		return "input-bound"
	case StateProposed:
		return "proposed"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// principalsSubject adapts a principal slice to acl.Subject.
type principalsSubject []principal.Principal

func (p principalsSubject) Principals() []principal.Principal { return p }

// Outcome is the result of executing a Join operation.
type Outcome struct {
	State      State
	Membership provision.MembershipRef // set iff State == StateCommitted
	Token      SignedToken             // set iff State == StateProposed
}

// JoinOperation drives one subject's attempt to join one JIT group.
// Not safe for concurrent use by multiple goroutines against the same
// operation — per spec §5, a request's execution is straight-line.
type JoinOperation struct {
	node        *policy.JitGroup
	groupID     principal.ID
	user        principal.ID
	signer      Signer
	provisioner provision.Port
	tokenTTL    time.Duration
	tracker     observability.Tracker

	state    State
	analysis *analysis.Analysis
	checks   []constraint.Check
}

// NewJoinOperation starts a Join against node for user, identified by
// groupID in the policy tree's (env, system, name) space.
func NewJoinOperation(node *policy.JitGroup, groupID, user principal.ID, subjectEmail string,
	subject acl.Subject, signer Signer, provisioner provision.Port, tokenTTL time.Duration) *JoinOperation {
	req := analysis.Request{
		Node: node, Subject: subject, SubjectEmail: subjectEmail, GroupID: groupID,
		Environment: node.EnvironmentName(), System: node.SystemName(), Group: node.Name(),
		Required: acl.Join,
	}
	return &JoinOperation{
		node: node, groupID: groupID, user: user,
		signer: signer, provisioner: provisioner, tokenTTL: tokenTTL,
		state: StateCreated, analysis: analysis.New(req),
	}
}

// WithTracker attaches an observability.Tracker so Execute's port calls
// (provisioner, signer) are instrumented with spans and RED metrics.
func (op *JoinOperation) WithTracker(tracker observability.Tracker) *JoinOperation {
	op.tracker = tracker
	return op
}

// State reports the operation's current lifecycle stage.
func (op *JoinOperation) State() State { return op.state }

// BindInputs materializes the Join-class constraint checks and sets
// each named input, transitioning to Input-bound. A name that matches
// no check's declared inputs is rejected with an InvalidArgument error,
// as is any value a check's Set refuses.
func (op *JoinOperation) BindInputs(values map[string]string) ([]constraint.Check, error) {
	op.checks = op.analysis.ApplyConstraints(constraint.ClassJoin)
	for name, value := range values {
		set := false
		for _, chk := range op.checks {
			for _, in := range chk.Inputs() {
				if in.Variable.Name == name {
					if err := chk.Set(name, value); err != nil {
						return nil, jitbroker.InvalidArgument(name, err.Error())
					}
					set = true
				}
			}
		}
		if !set {
			return nil, jitbroker.InvalidArgument(name, "no declared constraint input with this name")
		}
	}
	op.state = StateInputBound
	return op.checks, nil
}

// Execute evaluates the bound checks and either commits directly
// (subject holds ApproveSelf), emits a proposal for peer approval, or
// fails accessDenied if neither applies. justification is forwarded to
// the provisioning port for a direct commit.
func (op *JoinOperation) Execute(ctx context.Context, now time.Time, principals []principal.Principal, justification string) (Outcome, error) {
	result := op.analysis.Execute(now, principals)
	if err := result.VerifyAccessAllowed(false); err != nil {
		return Outcome{}, err
	}

	effectiveACL := policy.EffectiveACL(op.node)
	subject := principalsSubject(principals)

	if acl.IsAllowedAt(effectiveACL, subject, acl.ApproveSelf, now) {
		expiry := now
		if result.ChosenExpiry != nil {
			expiry = now.Add(*result.ChosenExpiry)
		}
		provCtx, finish := track(ctx, op.tracker, "join.provision",
			append(observability.GroupOperation(op.node.EnvironmentName(), op.node.SystemName(), op.node.Name()),
				observability.DecisionOperation("join", "allow")...)...)
		ref, err := op.provisioner.Provision(provCtx, op.user, op.groupID, expiry, justification)
		finish(err)
		if err != nil {
			return Outcome{}, err
		}
		op.state = StateCommitted
		return Outcome{State: StateCommitted, Membership: ref}, nil
	}

	recipients := acl.AllowedPrincipals(effectiveACL, acl.ApproveOthers)
	if len(recipients) == 0 {
		return Outcome{}, jitbroker.AccessDenied("no one is authorized to approve this group", false)
	}

	inputs := make(map[string]string, len(op.checks))
	for _, chk := range op.checks {
		for _, in := range chk.Inputs() {
			if in.IsSet() {
				inputs[in.Variable.Name] = in.Get()
			}
		}
	}

	_, finish := track(ctx, op.tracker, "join.sign",
		append(observability.GroupOperation(op.node.EnvironmentName(), op.node.SystemName(), op.node.Name()),
			observability.DecisionOperation("join", "proposed")...)...)
	token, err := op.signer.Sign(op.user, op.groupID, recipients, inputs, op.tokenTTL)
	finish(err)
	if err != nil {
		return Outcome{}, jitbroker.UpstreamIO(err)
	}
	op.state = StateProposed
	return Outcome{State: StateProposed, Token: token}, nil
}

// commitments is a bounded cache of committed membership refs by jti,
// giving Approve its idempotence: a replayed token returns the same
// outcome without a second provisioning call, rather than an error.
// Entries self-expire at the originating token's own expiry, purged
// opportunistically on Remember (a pragmatic bound, not a ticking
// background sweep — this cache only ever holds entries already
// admitted by the replay set, so it is bounded by the same horizon).
type commitments struct {
	mu      sync.Mutex
	entries map[string]commitmentEntry
	now     func() time.Time
}

type commitmentEntry struct {
	ref       provision.MembershipRef
	expiresAt time.Time
}

func newCommitments() *commitments {
	return &commitments{entries: make(map[string]commitmentEntry), now: time.Now}
}

func (c *commitments) remember(jti string, ref provision.MembershipRef, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[jti] = commitmentEntry{ref: ref, expiresAt: expiresAt}
}

func (c *commitments) lookup(jti string) (provision.MembershipRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[jti]
	return e.ref, ok
}

// ApproveOperation verifies a proposal token and, on success, commits
// the original requester's join. It is safe to invoke repeatedly with
// the same token: only the first call that wins the replay-set race
// performs a provisioning call, per spec §4.9's idempotence guarantee.
type ApproveOperation struct {
	signer      Signer
	replay      replayset.Set
	provisioner provision.Port
	commitments *commitments
	tracker     observability.Tracker
}

// NewApproveOperation wires an Approve flow over signer, replay and
// provisioner. commitments is created fresh per ApproveOperation in
// NewApproveOperation convenience constructors that don't share one
// explicitly; callers serving many approvals should construct one
// ApproveOperation (and its commitments cache) up front and reuse it.
func NewApproveOperation(signer Signer, replay replayset.Set, provisioner provision.Port) *ApproveOperation {
	return &ApproveOperation{signer: signer, replay: replay, provisioner: provisioner, commitments: newCommitments()}
}

// WithTracker attaches an observability.Tracker so Approve's port calls
// (signer, replay set, provisioner) are instrumented with spans and RED
// metrics.
func (a *ApproveOperation) WithTracker(tracker observability.Tracker) *ApproveOperation {
	a.tracker = tracker
	return a
}

// RequesterAnalysis is supplied by the caller after re-resolving the
// original requester's current Subject and the target group's current
// policy node, so Approve recomputes access as if that requester were
// joining now — this defends against the requester's rights having
// changed since the token was issued.
type RequesterAnalysis struct {
	Node    *policy.JitGroup
	GroupID principal.ID
	Subject acl.Subject
	Email   string
}

// Approve verifies token, checks that approver is among its recipients
// and holds ApproveOthers on the target group, recomputes the
// requester's analysis with the token's bound inputs, and commits.
func (a *ApproveOperation) Approve(ctx context.Context, token string, approver acl.Subject,
	now time.Time, requesterPrincipals []principal.Principal, ra RequesterAnalysis) (provision.MembershipRef, error) {
	_, verifyFinish := track(ctx, a.tracker, "approve.verify")
	payload, err := a.signer.Verify(token)
	verifyFinish(err)
	if err != nil {
		return provision.MembershipRef{}, jitbroker.AccessDenied("invalid or expired proposal token", false)
	}
	if now.After(payload.Expiry) {
		return provision.MembershipRef{}, jitbroker.AccessDenied("proposal token has expired", false)
	}

	if ref, ok := a.commitments.lookup(payload.JTI); ok {
		return ref, nil
	}

	if !isRecipient(payload.Recipients, approver) {
		return provision.MembershipRef{}, jitbroker.AccessDenied("not authorized to approve this proposal", false)
	}
	effectiveACL := policy.EffectiveACL(ra.Node)
	if !acl.IsAllowedAt(effectiveACL, approver, acl.ApproveOthers, now) {
		return provision.MembershipRef{}, jitbroker.AccessDenied("not authorized to approve this proposal", false)
	}

	req := analysis.Request{
		Node: ra.Node, Subject: ra.Subject, SubjectEmail: ra.Email, GroupID: ra.GroupID,
		Environment: ra.Node.EnvironmentName(), System: ra.Node.SystemName(), Group: ra.Node.Name(),
		Required: acl.Join,
	}
	reAnalysis := analysis.New(req)
	checks := reAnalysis.ApplyConstraints(constraint.ClassJoin)
	for _, chk := range checks {
		for _, in := range chk.Inputs() {
			if raw, ok := payload.Inputs[in.Variable.Name]; ok {
				if err := chk.Set(in.Variable.Name, raw); err != nil {
					return provision.MembershipRef{}, jitbroker.ConstraintFailed([]jitbroker.Diagnostic{
						{ConstraintName: chk.Constraint().Name(), Message: err.Error()},
					})
				}
			}
		}
	}
	result := reAnalysis.Execute(now, requesterPrincipals)
	if err := result.VerifyAccessAllowed(false); err != nil {
		return provision.MembershipRef{}, err
	}

	// The replay write is the commit point: only burn the one-time jti
	// once the approver and the re-analyzed access have both been
	// verified, so a leaked token cannot be used to lock out the
	// legitimate approver by exhausting the replay slot first.
	replayCtx, replayFinish := track(ctx, a.tracker, "approve.replay_mark", observability.ProposalOperation(payload.JTI)...)
	fresh, err := a.replay.MarkIfAbsent(replayCtx, payload.JTI, time.Until(payload.Expiry))
	replayFinish(err)
	if err != nil {
		return provision.MembershipRef{}, jitbroker.UpstreamIO(err)
	}
	if !fresh {
		if ref, ok := a.commitments.lookup(payload.JTI); ok {
			return ref, nil
		}
		return provision.MembershipRef{}, jitbroker.AccessDenied("proposal token already processed", false)
	}

	expiry := payload.Expiry
	if result.ChosenExpiry != nil {
		candidate := now.Add(*result.ChosenExpiry)
		if candidate.Before(expiry) {
			expiry = candidate
		}
	}

	provCtx, provFinish := track(ctx, a.tracker, "approve.provision", observability.DecisionOperation("approve", "allow")...)
	ref, err := a.provisioner.Provision(provCtx, payload.User, payload.Group, expiry, "")
	provFinish(err)
	if err != nil {
		return provision.MembershipRef{}, err
	}
	a.commitments.remember(payload.JTI, ref, payload.Expiry)
	return ref, nil
}

func isRecipient(recipients []principal.ID, approver acl.Subject) bool {
	for _, p := range approver.Principals() {
		for _, r := range recipients {
			if p.ID == r {
				return true
			}
		}
	}
	return false
}
