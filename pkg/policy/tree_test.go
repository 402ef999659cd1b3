package policy_test

import (
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) (*policy.Environment, *policy.System, *policy.JitGroup) {
	t.Helper()
	alice := principal.MustParse("user:alice@example.com")

	env := policy.NewEnvironment("env-1", "", acl.New(acl.Entry{Effect: acl.Allow, Principal: principal.Class(principal.ClassAllAuthenticated), Mask: acl.View}), nil, policy.Metadata{Source: "test"})
	sys := policy.NewSystem("sys-1", "", acl.ACL{}, nil)
	require.NoError(t, env.Add(sys))

	expiry := constraint.NewExpiry("expiry", "Duration", time.Hour, time.Hour)
	grp := policy.NewJitGroup("g-1", "",
		acl.New(acl.Entry{Effect: acl.Allow, Principal: alice, Mask: acl.Join | acl.ApproveSelf}),
		map[constraint.Class][]constraint.Constraint{constraint.ClassJoin: {expiry}},
		[]policy.Privilege{{ResourceID: principal.MustParseResourceID("projects/p1"), Role: principal.MustParseRoleID("roles/viewer")}},
	)
	require.NoError(t, sys.Add(grp))
	return env, sys, grp
}

func TestEffectiveACLIsParentThenChild(t *testing.T) {
	env, _, grp := buildTree(t)
	eff := policy.EffectiveACL(grp)
	entries := eff.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, principal.Class(principal.ClassAllAuthenticated), entries[0].Principal)
	assert.Equal(t, "user:alice@example.com", entries[1].Principal.String())
	_ = env
}

func TestEffectiveConstraintsInheritAndOverride(t *testing.T) {
	env, sys, grp := buildTree(t)
	_ = env
	eff := policy.EffectiveConstraints(grp, constraint.ClassJoin)
	require.Len(t, eff, 1)
	assert.Equal(t, "expiry", eff[0].Name())

	// Child overrides parent constraint of the same name.
	childExpiry := constraint.NewExpiry("expiry", "Duration", 2*time.Hour, 2*time.Hour)
	sys2 := policy.NewSystem("sys-2", "", acl.ACL{}, map[constraint.Class][]constraint.Constraint{constraint.ClassJoin: {constraint.NewExpiry("expiry", "Duration", time.Hour, time.Hour)}})
	require.NoError(t, env.Add(sys2))
	grp2 := policy.NewJitGroup("g-2", "", acl.ACL{}, map[constraint.Class][]constraint.Constraint{constraint.ClassJoin: {childExpiry}}, nil)
	require.NoError(t, sys2.Add(grp2))

	eff2 := policy.EffectiveConstraints(grp2, constraint.ClassJoin)
	require.Len(t, eff2, 1)
	d, ok := eff2[0].(*constraint.Expiry)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, d.Min())
	_ = sys
}

func TestAddRejectsAlreadyParented(t *testing.T) {
	env, _, grp := buildTree(t)
	sys2 := policy.NewSystem("sys-2", "", acl.ACL{}, nil)
	require.NoError(t, env.Add(sys2))
	assert.Error(t, sys2.Add(grp))
}

func TestAddRejectsDuplicateSiblingName(t *testing.T) {
	env, _, _ := buildTree(t)
	dup := policy.NewSystem("sys-1", "", acl.ACL{}, nil)
	assert.Error(t, env.Add(dup))
}

func TestMetadataInheritedFromRoot(t *testing.T) {
	_, sys, grp := buildTree(t)
	assert.Equal(t, "test", sys.Metadata().Source)
	assert.Equal(t, "test", grp.Metadata().Source)
}

func TestTreeHashStableAndSensitiveToChange(t *testing.T) {
	env, _, _ := buildTree(t)
	tree := policy.NewTree()
	require.NoError(t, tree.AddEnvironment(env))

	h1, err := tree.Hash()
	require.NoError(t, err)
	h2, err := tree.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	env2, _, _ := buildTree(t)
	tree2 := policy.NewTree()
	// Mutate description to produce a different snapshot.
	env3 := policy.NewEnvironment("env-1", "changed", acl.ACL{}, nil, policy.Metadata{})
	require.NoError(t, tree2.AddEnvironment(env3))
	h3, err := tree2.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
	_ = env2
}

func TestStoreReplaceInvokesOnReload(t *testing.T) {
	store := policy.NewStore()
	var seen *policy.Tree
	store.OnReload(func(t *policy.Tree) { seen = t })

	next := policy.NewTree()
	store.Replace(next)
	assert.Same(t, next, seen)
	assert.Same(t, next, store.Current())
}
