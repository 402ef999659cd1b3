package acl_test

import (
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/principal"
	"github.com/stretchr/testify/assert"
)

type fakeSubject struct {
	principals []principal.Principal
}

func (f fakeSubject) Principals() []principal.Principal { return f.principals }

func subjectOf(ids ...principal.ID) fakeSubject {
	ps := make([]principal.Principal, len(ids))
	for i, id := range ids {
		ps[i] = principal.Principal{ID: id}
	}
	return fakeSubject{principals: ps}
}

func TestDenyDominatesAllow(t *testing.T) {
	eve := principal.MustParse("user:eve@example.com")
	a := acl.NewBuilder().Deny(eve, acl.Join).Allow(eve, acl.Join).Build()
	assert.False(t, acl.IsAllowed(a, subjectOf(eve), acl.Join))
}

func TestAllowGranted(t *testing.T) {
	alice := principal.MustParse("user:alice@example.com")
	a := acl.NewBuilder().Allow(alice, acl.Join|acl.ApproveSelf).Build()
	assert.True(t, acl.IsAllowed(a, subjectOf(alice), acl.Join))
	assert.True(t, acl.IsAllowed(a, subjectOf(alice), acl.Join|acl.ApproveSelf))
}

func TestUnionDistributesOverAnd(t *testing.T) {
	alice := principal.MustParse("user:alice@example.com")
	a := acl.NewBuilder().Allow(alice, acl.Join).Build()
	combined := acl.IsAllowed(a, subjectOf(alice), acl.Join|acl.ApproveSelf)
	separate := acl.IsAllowed(a, subjectOf(alice), acl.Join) && acl.IsAllowed(a, subjectOf(alice), acl.ApproveSelf)
	assert.Equal(t, separate, combined)
	assert.False(t, combined)
}

func TestExpiredPrincipalContributesNothing(t *testing.T) {
	now := time.Now()
	jit := principal.JitGroup("env", "sys", "g-admin")
	a := acl.NewBuilder().Allow(jit, acl.Join).Build()
	subj := fakeSubject{principals: []principal.Principal{
		{ID: jit, Validity: principal.Validity{NotAfter: now.Add(-10 * time.Second)}},
	}}
	assert.False(t, acl.IsAllowedAt(a, subj, acl.Join, now))
}

func TestClassMatchesAnyUser(t *testing.T) {
	alice := principal.MustParse("user:alice@example.com")
	all := principal.Class(principal.ClassAllAuthenticated)
	a := acl.NewBuilder().Allow(all, acl.View).Build()
	assert.True(t, acl.IsAllowed(a, subjectOf(alice), acl.View))
}

func TestAllowedPrincipals(t *testing.T) {
	alice := principal.MustParse("user:alice@example.com")
	approvers := principal.MustParse("group:approvers@example.com")
	a := acl.NewBuilder().
		Allow(alice, acl.Join).
		Allow(approvers, acl.ApproveOthers).
		Build()

	ids := acl.AllowedPrincipals(a, acl.ApproveOthers)
	assert.Equal(t, []principal.ID{approvers}, ids)
}

func TestConcatPreservesParentFirst(t *testing.T) {
	alice := principal.MustParse("user:alice@example.com")
	bob := principal.MustParse("user:bob@example.com")
	parent := acl.NewBuilder().Allow(alice, acl.View).Build()
	child := acl.NewBuilder().Allow(bob, acl.Join).Build()
	eff := acl.Concat(parent, child)
	entries := eff.Entries()
	assert.Equal(t, alice, entries[0].Principal)
	assert.Equal(t, bob, entries[1].Principal)
}

func TestS4DenyShadowsAllowAccessDenied(t *testing.T) {
	eve := principal.MustParse("user:eve@example.com")
	a := acl.New(
		acl.Entry{Effect: acl.Deny, Principal: eve, Mask: acl.Join},
		acl.Entry{Effect: acl.Allow, Principal: eve, Mask: acl.Join},
	)
	assert.False(t, acl.IsAllowed(a, subjectOf(eve), acl.Join))
}
