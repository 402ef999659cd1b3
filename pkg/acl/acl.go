// Package acl implements the ordered allow/deny bitmask access-control
// list: evaluation against a subject's principal set, with deny
// dominating allow across entries.
package acl

import (
	"sort"
	"sync"
	"time"

	"github.com/jitaccess/broker/pkg/principal"
)

// Permission is a named bit in the 32-bit permission mask.
type Permission uint32

const (
	View Permission = 1 << iota
	Join
	ApproveSelf
	ApproveOthers
	Export
)

// Effect tags an ACL entry as granting or revoking its mask.
type Effect int

const (
	Allow Effect = iota
	Deny
)

// Entry is one ordered ACL element.
type Entry struct {
	Effect    Effect
	Principal principal.ID
	Mask      Permission
}

// ACL is an ordered, immutable sequence of entries.
type ACL struct {
	entries []Entry
}

// Entries returns the ordered entries backing the ACL. The returned
// slice must not be mutated by callers.
func (a ACL) Entries() []Entry { return a.entries }

// Builder accumulates entries before producing an immutable ACL.
type Builder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Allow appends an allow entry.
func (b *Builder) Allow(p principal.ID, mask Permission) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Effect: Allow, Principal: p, Mask: mask})
	return b
}

// Deny appends a deny entry.
func (b *Builder) Deny(p principal.ID, mask Permission) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Effect: Deny, Principal: p, Mask: mask})
	return b
}

// Build produces an immutable ACL from the accumulated entries, in
// insertion order.
func (b *Builder) Build() ACL {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return ACL{entries: out}
}

// New builds an ACL directly from an ordered entry slice, e.g. for
// computing an effective ACL via concatenation (parent ++ child).
func New(entries ...Entry) ACL {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return ACL{entries: out}
}

// Concat returns parent's entries followed by child's, preserving order,
// for computing a child's effective ACL per the policy tree's
// parent-then-child inheritance rule.
func Concat(parent, child ACL) ACL {
	out := make([]Entry, 0, len(parent.entries)+len(child.entries))
	out = append(out, parent.entries...)
	out = append(out, child.entries...)
	return ACL{entries: out}
}

// matches reports whether entry e's principal applies to subject
// principal sp, active at instant at.
func matches(ref principal.ID, sp principal.Principal, at time.Time) bool {
	if ref == principal.Class(principal.ClassAllAuthenticated) {
		// Matches every user-backed subject regardless of groups; "user-backed"
		// means the subject carries at least the user principal itself, which
		// the caller always supplies, so any user principal satisfies this.
		return sp.ID.Kind() == principal.KindUser && sp.ActiveAt(at)
	}
	return ref == sp.ID && sp.ActiveAt(at)
}

// effectiveMask accumulates allow/deny bits across entries for the given
// principal set, evaluated at instant at. Expired principals contribute
// nothing (matches returns false for them via ActiveAt).
func (a ACL) effectiveMask(principals []principal.Principal, at time.Time) Permission {
	var allowBits, denyBits Permission
	for _, e := range a.entries {
		for _, sp := range principals {
			if !matches(e.Principal, sp, at) {
				continue
			}
			switch e.Effect {
			case Allow:
				allowBits |= e.Mask
			case Deny:
				denyBits |= e.Mask
			}
		}
	}
	return allowBits &^ denyBits
}

// Subject is the minimal view the ACL engine needs of a requester: its
// principal set evaluated at a fixed instant.
type Subject interface {
	Principals() []principal.Principal
}

// IsAllowed reports whether subject's effective mask covers required, at
// the current instant.
func IsAllowed(a ACL, s Subject, required Permission) bool {
	return IsAllowedAt(a, s, required, time.Now())
}

// IsAllowedAt is IsAllowed with an explicit evaluation instant, used by
// tests and by re-evaluation-at-approval-time (§4.9).
func IsAllowedAt(a ACL, s Subject, required Permission, at time.Time) bool {
	effective := a.effectiveMask(s.Principals(), at)
	return effective&required == required
}

// AllowedPrincipals returns the set of principals referenced by allow
// entries whose combined allow-bits, minus any deny-bits that apply to
// that same principal across the ACL, cover required. Order is the
// canonical lexicographic order of the principal's string form.
func AllowedPrincipals(a ACL, required Permission) []principal.ID {
	type accum struct {
		allow, deny Permission
	}
	byPrincipal := map[principal.ID]*accum{}
	order := []principal.ID{}
	for _, e := range a.entries {
		acc, ok := byPrincipal[e.Principal]
		if !ok {
			acc = &accum{}
			byPrincipal[e.Principal] = acc
			order = append(order, e.Principal)
		}
		switch e.Effect {
		case Allow:
			acc.allow |= e.Mask
		case Deny:
			acc.deny |= e.Mask
		}
	}

	var out []principal.ID
	for _, id := range order {
		acc := byPrincipal[id]
		effective := acc.allow &^ acc.deny
		if effective&required == required {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
