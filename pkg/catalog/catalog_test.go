package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/join"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"github.com/jitaccess/broker/pkg/provision"
	"github.com/jitaccess/broker/pkg/replayset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	calls int
}

func (p *fakeProvisioner) Provision(_ context.Context, user, group principal.ID, expiry time.Time, _ string) (provision.MembershipRef, error) {
	p.calls++
	return provision.MembershipRef{ID: user.String() + "/" + group.String()}, nil
}

type testSubject struct {
	principals []principal.Principal
}

func (s testSubject) Principals() []principal.Principal { return s.principals }

func buildStore(t *testing.T, envACL acl.ACL) *policy.Store {
	t.Helper()
	env := policy.NewEnvironment("prod", "production", envACL, nil, policy.Metadata{})
	sys := policy.NewSystem("billing", "billing system", acl.ACL{}, nil)
	require.NoError(t, env.Add(sys))
	grp := policy.NewJitGroup("admins", "billing admins", acl.ACL{}, nil, nil)
	require.NoError(t, sys.Add(grp))

	tree := policy.NewTree()
	require.NoError(t, tree.AddEnvironment(env))

	store := policy.NewStore()
	store.Replace(tree)
	return store
}

func TestListEnvironmentsOnlyShowsVisible(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View})
	store := buildStore(t, viewACL)
	cat := New(store)

	sub := testSubject{principals: []principal.Principal{{ID: user}}}
	envs := cat.ListEnvironments(sub)
	require.Len(t, envs, 1)
	assert.Equal(t, "prod", envs[0].Name)

	other := testSubject{principals: []principal.Principal{{ID: principal.User("mallory", "example.com")}}}
	assert.Empty(t, cat.ListEnvironments(other))
}

func TestHiddenEnvironmentIsAbsentNotForbidden(t *testing.T) {
	store := buildStore(t, acl.ACL{})
	cat := New(store)
	sub := testSubject{principals: []principal.Principal{{ID: principal.User("mallory", "example.com")}}}

	_, ok := cat.Environment(sub, "prod")
	assert.False(t, ok)

	_, ok = cat.Environment(sub, "nonexistent")
	assert.False(t, ok)
}

func TestGroupDescendsThroughVisibility(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View})
	store := buildStore(t, viewACL)
	cat := New(store)
	sub := testSubject{principals: []principal.Principal{{ID: user}}}

	g, ok := cat.Group(sub, "prod", "billing", "admins")
	require.True(t, ok)
	assert.Equal(t, "admins", g.Name())

	_, ok = cat.Group(sub, "prod", "billing", "nonexistent")
	assert.False(t, ok)
}

func TestCanJoinAndCanApprove(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View | acl.Join})
	store := buildStore(t, viewACL)
	cat := New(store)
	sub := testSubject{principals: []principal.Principal{{ID: user}}}

	g, ok := cat.Group(sub, "prod", "billing", "admins")
	require.True(t, ok)
	assert.True(t, CanJoin(g, sub))
	assert.False(t, CanApprove(g, sub))
}

func TestGroupContextHiddenGroupIsAbsent(t *testing.T) {
	store := buildStore(t, acl.ACL{})
	cat := New(store)
	mallory := testSubject{principals: []principal.Principal{{ID: principal.User("mallory", "example.com")}}}

	_, ok := cat.GroupContext(mallory, "prod", "billing", "admins", principal.User("mallory", "example.com"), "mallory@example.com")
	assert.False(t, ok)
}

func TestGroupContextJoinCommitsDirectlyWhenApproveSelf(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View | acl.Join | acl.ApproveSelf})
	store := buildStore(t, viewACL)
	cat := New(store)
	prov := &fakeProvisioner{}
	cat.WithOperations(nil, prov, replayset.NewInMemory(time.Minute), time.Hour)

	sub := testSubject{principals: []principal.Principal{{ID: user}}}
	gc, ok := cat.GroupContext(sub, "prod", "billing", "admins", user, "alice@example.com")
	require.True(t, ok)
	assert.True(t, gc.CanJoin())
	assert.True(t, gc.CanApprove())

	op := gc.Join()
	_, err := op.BindInputs(nil)
	require.NoError(t, err)
	outcome, err := op.Execute(context.Background(), time.Now(), sub.principals, "need it")
	require.NoError(t, err)
	assert.Equal(t, join.StateCommitted, outcome.State)
	assert.Equal(t, 1, prov.calls)
}

func TestGroupContextApproveReturnsSharedOperation(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View | acl.Join})
	store := buildStore(t, viewACL)
	cat := New(store)
	cat.WithOperations(nil, &fakeProvisioner{}, replayset.NewInMemory(time.Minute), time.Hour)

	sub := testSubject{principals: []principal.Principal{{ID: user}}}
	gc, ok := cat.GroupContext(sub, "prod", "billing", "admins", user, "alice@example.com")
	require.True(t, ok)
	assert.Same(t, cat.approveOp, gc.Approve())
}

func TestGroupContextJoinPanicsWithoutWiring(t *testing.T) {
	user := principal.User("alice", "example.com")
	viewACL := acl.New(acl.Entry{Effect: acl.Allow, Principal: user, Mask: acl.View | acl.Join})
	store := buildStore(t, viewACL)
	cat := New(store)

	sub := testSubject{principals: []principal.Principal{{ID: user}}}
	gc, ok := cat.GroupContext(sub, "prod", "billing", "admins", user, "alice@example.com")
	require.True(t, ok)
	assert.Panics(t, func() { gc.Join() })
}
