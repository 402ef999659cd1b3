// Package catalog implements the user-facing policy projection (spec
// §4.8): lists and looks up environments/systems/groups visible to a
// subject, gated by View access at every boundary so hidden nodes
// resolve to absent rather than forbidden (preventing name
// enumeration). Grounded on the "resolve visibility first" rule spec.md
// states explicitly, and on the teacher's read-mostly RWMutex-guarded
// accessor style used throughout pkg/policyloader.
package catalog

import (
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/join"
	"github.com/jitaccess/broker/pkg/observability"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"github.com/jitaccess/broker/pkg/provision"
	"github.com/jitaccess/broker/pkg/replayset"
)

// Catalog projects a policy.Tree through a subject's View access, and
// hosts the join()/approve(token) factories §4.8 attaches to each
// visible group. signer/provisioner/replay/tokenTTL are optional: a
// Catalog built with New alone still serves listing and visibility
// queries, it just can't construct operations until wired with
// WithOperations.
type Catalog struct {
	store *policy.Store

	signer      join.Signer
	provisioner provision.Port
	replay      replayset.Set
	tokenTTL    time.Duration
	wired       bool
	tracker     observability.Tracker

	approveOp *join.ApproveOperation
}

// WithTracker attaches an observability.Tracker so every JoinOperation
// and ApproveOperation the catalog constructs is instrumented.
func (c *Catalog) WithTracker(tracker observability.Tracker) *Catalog {
	c.tracker = tracker
	if c.approveOp != nil {
		c.approveOp.WithTracker(tracker)
	}
	return c
}

// New returns a Catalog reading the current snapshot from store.
func New(store *policy.Store) *Catalog {
	return &Catalog{store: store}
}

// WithOperations wires the collaborators needed by GroupContext.Join and
// GroupContext.Approve: a token signer, the provisioning port, the
// replay set guarding proposal tokens, and the proposal TTL. signer may
// be nil for a deployment where every group grants ApproveSelf and no
// proposal is ever signed. Mirrors the teacher's WithClock builder
// shape — mutates in place and returns c for chaining.
func (c *Catalog) WithOperations(signer join.Signer, provisioner provision.Port, replay replayset.Set, tokenTTL time.Duration) *Catalog {
	c.signer = signer
	c.provisioner = provisioner
	c.replay = replay
	c.tokenTTL = tokenTTL
	c.wired = true
	c.approveOp = join.NewApproveOperation(signer, replay, provisioner).WithTracker(c.tracker)
	return c
}

// EnvironmentView is the catalog's read-only projection of an Environment.
type EnvironmentView struct {
	Name        string
	Description string
}

// SystemView is the catalog's read-only projection of a System.
type SystemView struct {
	Name        string
	Description string
}

// GroupView is the catalog's read-only projection of a JitGroup,
// including the subject-relative booleans callers need for the join/
// approve affordances.
type GroupView struct {
	Name        string
	Description string
	CanJoin     bool
	CanApprove  bool
}

// ListEnvironments returns every environment whose effective ACL grants
// View to subject, in tree order.
func (c *Catalog) ListEnvironments(subject acl.Subject) []EnvironmentView {
	var out []EnvironmentView
	for _, e := range c.store.Current().Environments() {
		if !policy.IsAllowedByACL(e, subject, acl.View) {
			continue
		}
		out = append(out, EnvironmentView{Name: e.Name(), Description: e.Description()})
	}
	return out
}

// Environment returns the named environment's node if subject may view
// it, or ok=false if it does not exist or is not visible — the two
// cases are indistinguishable to the caller by design.
func (c *Catalog) Environment(subject acl.Subject, name string) (*policy.Environment, bool) {
	e, exists := c.store.Current().Environment(name)
	if !exists || !policy.IsAllowedByACL(e, subject, acl.View) {
		return nil, false
	}
	return e, true
}

// System descends from a visible environment to a visible system.
func (c *Catalog) System(subject acl.Subject, envName, sysName string) (*policy.System, bool) {
	e, ok := c.Environment(subject, envName)
	if !ok {
		return nil, false
	}
	s, exists := e.System(sysName)
	if !exists || !policy.IsAllowedByACL(s, subject, acl.View) {
		return nil, false
	}
	return s, true
}

// Group descends from a visible system to a visible group.
func (c *Catalog) Group(subject acl.Subject, envName, sysName, grpName string) (*policy.JitGroup, bool) {
	s, ok := c.System(subject, envName, sysName)
	if !ok {
		return nil, false
	}
	g, exists := s.Group(grpName)
	if !exists || !policy.IsAllowedByACL(g, subject, acl.View) {
		return nil, false
	}
	return g, true
}

// Systems lists the visible systems under a visible environment.
func (c *Catalog) Systems(subject acl.Subject, envName string) []SystemView {
	e, ok := c.Environment(subject, envName)
	if !ok {
		return nil
	}
	var out []SystemView
	for _, s := range e.Systems() {
		if !policy.IsAllowedByACL(s, subject, acl.View) {
			continue
		}
		out = append(out, SystemView{Name: s.Name(), Description: s.Description()})
	}
	return out
}

// Groups lists the visible groups under a visible system, annotated
// with the subject's canJoin/canApprove affordances.
func (c *Catalog) Groups(subject acl.Subject, envName, sysName string) []GroupView {
	s, ok := c.System(subject, envName, sysName)
	if !ok {
		return nil
	}
	var out []GroupView
	for _, g := range s.Groups() {
		if !policy.IsAllowedByACL(g, subject, acl.View) {
			continue
		}
		out = append(out, GroupView{
			Name:        g.Name(),
			Description: g.Description(),
			CanJoin:     CanJoin(g, subject),
			CanApprove:  CanApprove(g, subject),
		})
	}
	return out
}

// GroupContext wraps a visible JitGroup with the subject and identity
// context needed to construct Join/Approve operations against it, per
// §4.8's "for each group: canJoin, canApprove, join() -> JoinOperation,
// approve(token) -> ApproveOperation".
type GroupContext struct {
	catalog      *Catalog
	node         *policy.JitGroup
	groupID      principal.ID
	subject      acl.Subject
	user         principal.ID
	subjectEmail string
}

// GroupContext resolves a visible group and binds it to the acting
// user, returning ok=false under the same absent-not-forbidden rule as
// Group.
func (c *Catalog) GroupContext(subject acl.Subject, envName, sysName, grpName string, user principal.ID, subjectEmail string) (*GroupContext, bool) {
	g, ok := c.Group(subject, envName, sysName, grpName)
	if !ok {
		return nil, false
	}
	return &GroupContext{
		catalog: c, node: g, groupID: principal.JitGroup(envName, sysName, grpName),
		subject: subject, user: user, subjectEmail: subjectEmail,
	}, true
}

// CanJoin reports whether the context's subject holds Join on the group.
func (gc *GroupContext) CanJoin() bool { return CanJoin(gc.node, gc.subject) }

// CanApprove reports whether the context's subject holds ApproveSelf or
// ApproveOthers on the group.
func (gc *GroupContext) CanApprove() bool { return CanApprove(gc.node, gc.subject) }

// Join constructs a JoinOperation binding gc's subject and user to gc's
// group, ready for BindInputs/Execute. Panics if the owning Catalog was
// never wired with WithOperations — a startup wiring error, not a
// runtime one.
func (gc *GroupContext) Join() *join.JoinOperation {
	if !gc.catalog.wired {
		panic("catalog: Join called before WithOperations wired the catalog")
	}
	return join.NewJoinOperation(gc.node, gc.groupID, gc.user, gc.subjectEmail, gc.subject,
		gc.catalog.signer, gc.catalog.provisioner, gc.catalog.tokenTTL).WithTracker(gc.catalog.tracker)
}

// Approve returns the ApproveOperation used to redeem a proposal token
// against the catalog's tree. The operation itself is group-agnostic
// (the target group is recovered from the token's payload at approve
// time) and is shared catalog-wide so its commitments cache sees every
// approval, but it is exposed per-group per §4.8's operation listing.
func (gc *GroupContext) Approve() *join.ApproveOperation {
	if !gc.catalog.wired {
		panic("catalog: Approve called before WithOperations wired the catalog")
	}
	return gc.catalog.approveOp
}

// CanJoin reports whether subject holds Join on g's effective ACL.
func CanJoin(g *policy.JitGroup, subject acl.Subject) bool {
	return policy.IsAllowedByACL(g, subject, acl.Join)
}

// CanApprove reports whether subject holds ApproveSelf or ApproveOthers
// on g's effective ACL.
func CanApprove(g *policy.JitGroup, subject acl.Subject) bool {
	return policy.IsAllowedByACL(g, subject, acl.ApproveSelf) || policy.IsAllowedByACL(g, subject, acl.ApproveOthers)
}
