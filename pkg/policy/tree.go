// Package policy implements the hierarchical Environment -> System ->
// JitGroup policy tree: ACL and constraint inheritance, construction
// invariants, and deterministic hashing of a snapshot.
package policy

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/canonicalize"
	"github.com/jitaccess/broker/pkg/constraint"
)

// NameRegex is the shared node-name constraint (lowercase at ingest, max
// 24 chars), shared with pkg/principal's JIT-group component regex.
var NameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,23}$`)

// Metadata is attached to the environment root and inherited by every
// descendant via the parent chain.
type Metadata struct {
	Source       string
	LastModified time.Time
	Version      string
	DefaultName  string
}

// Node is the common capability set shared by Environment, System and
// JitGroup: "has an access-controlled container" and "has constraints",
// per the discriminated-union design (spec §9).
type Node interface {
	Name() string
	Description() string
	OwnACL() acl.ACL
	OwnConstraints(class constraint.Class) []constraint.Constraint
	ParentNode() Node
	Metadata() Metadata
}

// EffectiveACL returns parent.EffectiveACL() ++ n.OwnACL(), recursively,
// per spec §3: "A child's effective ACL is parent.effectiveACL ++
// child.acl".
func EffectiveACL(n Node) acl.ACL {
	parent := n.ParentNode()
	if parent == nil {
		return n.OwnACL()
	}
	return acl.Concat(EffectiveACL(parent), n.OwnACL())
}

// EffectiveConstraints returns the parent's effective constraints for
// class, with any constraint sharing a name with one of n's own
// constraints overridden in place, and n's remaining constraints
// appended, per spec §3.
func EffectiveConstraints(n Node, class constraint.Class) []constraint.Constraint {
	var base []constraint.Constraint
	if parent := n.ParentNode(); parent != nil {
		base = EffectiveConstraints(parent, class)
	}
	own := n.OwnConstraints(class)

	result := make([]constraint.Constraint, len(base))
	copy(result, base)
	for _, c := range own {
		replaced := false
		for i, b := range result {
			if b.Name() == c.Name() {
				result[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			result = append(result, c)
		}
	}
	return result
}

// IsAllowedByACL evaluates n's effective ACL against subject for required,
// per spec §4.4.
func IsAllowedByACL(n Node, subject acl.Subject, required acl.Permission) bool {
	return acl.IsAllowed(EffectiveACL(n), subject, required)
}

type constraintSet map[constraint.Class][]constraint.Constraint

func (cs constraintSet) own(class constraint.Class) []constraint.Constraint {
	if cs == nil {
		return nil
	}
	return cs[class]
}

// Environment is the root policy node.
type Environment struct {
	mu          sync.RWMutex
	name        string
	description string
	acl         acl.ACL
	constraints constraintSet
	metadata    Metadata
	systems     map[string]*System
	order       []string
}

// NewEnvironment constructs a detached Environment, the policy tree's root.
func NewEnvironment(name, description string, a acl.ACL, constraints map[constraint.Class][]constraint.Constraint, md Metadata) *Environment {
	return &Environment{
		name: name, description: description, acl: a,
		constraints: constraintSet(constraints), metadata: md,
		systems: make(map[string]*System),
	}
}

func (e *Environment) Name() string                                        { return e.name }
func (e *Environment) Description() string                                 { return e.description }
func (e *Environment) OwnACL() acl.ACL                                      { return e.acl }
func (e *Environment) OwnConstraints(c constraint.Class) []constraint.Constraint { return e.constraints.own(c) }
func (e *Environment) ParentNode() Node                                    { return nil }
func (e *Environment) Metadata() Metadata                                  { return e.metadata }

// Add wires s as a child system. It fails if s already has a parent or
// its name collides with an existing sibling.
func (e *Environment) Add(s *System) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.parent != nil {
		return fmt.Errorf("policy: system %q already has a parent", s.name)
	}
	if _, exists := e.systems[s.name]; exists {
		return fmt.Errorf("policy: duplicate system name %q", s.name)
	}
	s.parent = e
	e.systems[s.name] = s
	e.order = append(e.order, s.name)
	return nil
}

// System looks up a direct child by name.
func (e *Environment) System(name string) (*System, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.systems[name]
	return s, ok
}

// Systems returns direct children in insertion order.
func (e *Environment) Systems() []*System {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*System, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.systems[name])
	}
	return out
}

// System is a policy node nested under an Environment.
type System struct {
	mu          sync.RWMutex
	name        string
	description string
	acl         acl.ACL
	constraints constraintSet
	parent      *Environment
	groups      map[string]*JitGroup
	order       []string
}

// NewSystem constructs a detached System; call Environment.Add to attach it.
func NewSystem(name, description string, a acl.ACL, constraints map[constraint.Class][]constraint.Constraint) *System {
	return &System{
		name: name, description: description, acl: a,
		constraints: constraintSet(constraints),
		groups:      make(map[string]*JitGroup),
	}
}

func (s *System) Name() string                                        { return s.name }
func (s *System) Description() string                                 { return s.description }
func (s *System) OwnACL() acl.ACL                                      { return s.acl }
func (s *System) OwnConstraints(c constraint.Class) []constraint.Constraint { return s.constraints.own(c) }
func (s *System) ParentNode() Node {
	if s.parent == nil {
		return nil
	}
	return s.parent
}
func (s *System) Metadata() Metadata {
	if s.parent == nil {
		return Metadata{}
	}
	return s.parent.Metadata()
}

// Add wires g as a child group.
func (s *System) Add(g *JitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.parent != nil {
		return fmt.Errorf("policy: group %q already has a parent", g.name)
	}
	if _, exists := s.groups[g.name]; exists {
		return fmt.Errorf("policy: duplicate group name %q", g.name)
	}
	g.parent = s
	s.groups[g.name] = g
	s.order = append(s.order, g.name)
	return nil
}

// Group looks up a direct child by name.
func (s *System) Group(name string) (*JitGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	return g, ok
}

// Groups returns direct children in insertion order.
func (s *System) Groups() []*JitGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*JitGroup, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.groups[name])
	}
	return out
}

// JitGroup is a leaf policy node carrying the privilege list that is
// materialized into a time-bound directory group membership on commit.
type JitGroup struct {
	name        string
	description string
	acl         acl.ACL
	constraints constraintSet
	parent      *System
	privileges  []Privilege
}

// NewJitGroup constructs a detached JitGroup; call System.Add to attach it.
func NewJitGroup(name, description string, a acl.ACL, constraints map[constraint.Class][]constraint.Constraint, privileges []Privilege) *JitGroup {
	return &JitGroup{
		name: name, description: description, acl: a,
		constraints: constraintSet(constraints), privileges: privileges,
	}
}

func (g *JitGroup) Name() string                                        { return g.name }
func (g *JitGroup) Description() string                                 { return g.description }
func (g *JitGroup) OwnACL() acl.ACL                                      { return g.acl }
func (g *JitGroup) OwnConstraints(c constraint.Class) []constraint.Constraint { return g.constraints.own(c) }
func (g *JitGroup) ParentNode() Node {
	if g.parent == nil {
		return nil
	}
	return g.parent
}
func (g *JitGroup) Metadata() Metadata {
	if g.parent == nil {
		return Metadata{}
	}
	return g.parent.Metadata()
}

// Environment returns the root environment name this group descends from.
func (g *JitGroup) EnvironmentName() string {
	if g.parent == nil || g.parent.parent == nil {
		return ""
	}
	return g.parent.parent.name
}

// SystemName returns this group's immediate parent system name.
func (g *JitGroup) SystemName() string {
	if g.parent == nil {
		return ""
	}
	return g.parent.name
}

// Privileges returns the group's ordered privilege list.
func (g *JitGroup) Privileges() []Privilege {
	out := make([]Privilege, len(g.privileges))
	copy(out, g.privileges)
	return out
}

// Tree is the full collection of loaded environments, keyed by name.
type Tree struct {
	mu           sync.RWMutex
	environments map[string]*Environment
	order        []string
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{environments: make(map[string]*Environment)}
}

// AddEnvironment registers e, failing on a duplicate top-level name.
func (t *Tree) AddEnvironment(e *Environment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.environments[e.name]; exists {
		return fmt.Errorf("policy: duplicate environment name %q", e.name)
	}
	t.environments[e.name] = e
	t.order = append(t.order, e.name)
	return nil
}

// Environment looks up a top-level environment by name.
func (t *Tree) Environment(name string) (*Environment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.environments[name]
	return e, ok
}

// Environments returns all environments in insertion order.
func (t *Tree) Environments() []*Environment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Environment, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.environments[name])
	}
	return out
}

// Hash returns a deterministic content hash of the tree's structural
// snapshot (names, descriptions, ACL entries, privileges) via RFC 8785
// canonical JSON. Constraints and environment metadata are not part of
// the snapshot, so two trees that differ only in those hash equally.
func (t *Tree) Hash() (string, error) {
	snap := make(map[string]interface{})
	for _, e := range t.Environments() {
		snap[e.name] = snapshotEnvironment(e)
	}
	return canonicalize.CanonicalHash(snap)
}

func snapshotEnvironment(e *Environment) map[string]interface{} {
	systems := make(map[string]interface{})
	for _, s := range e.Systems() {
		systems[s.name] = snapshotSystem(s)
	}
	return map[string]interface{}{
		"description": e.description,
		"acl":         snapshotACL(e.acl),
		"systems":     systems,
	}
}

func snapshotSystem(s *System) map[string]interface{} {
	groups := make(map[string]interface{})
	for _, g := range s.Groups() {
		groups[g.name] = snapshotGroup(g)
	}
	return map[string]interface{}{
		"description": s.description,
		"acl":         snapshotACL(s.acl),
		"groups":      groups,
	}
}

func snapshotGroup(g *JitGroup) map[string]interface{} {
	privs := make([]interface{}, len(g.privileges))
	for i, p := range g.privileges {
		privs[i] = map[string]interface{}{
			"resource": p.ResourceID.String(), "role": p.Role.String(),
			"description": p.Description, "condition": p.Condition,
		}
	}
	return map[string]interface{}{
		"description": g.description,
		"acl":         snapshotACL(g.acl),
		"privileges":  privs,
	}
}

func snapshotACL(a acl.ACL) []interface{} {
	entries := a.Entries()
	out := make([]interface{}, len(entries))
	for i, e := range entries {
		effect := "allow"
		if e.Effect == acl.Deny {
			effect = "deny"
		}
		out[i] = map[string]interface{}{
			"effect":    effect,
			"principal": e.Principal.String(),
			"mask":      uint32(e.Mask),
		}
	}
	return out
}
