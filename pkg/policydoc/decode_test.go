package policydoc

import (
	"strings"
	"testing"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `
schemaVersion: 1
environment:
  name: prod
  description: production environment
  access:
    - principal: class:allAuthenticated
      allow: VIEW
  systems:
    - name: billing
      description: billing system
      groups:
        - name: admins
          description: billing admins
          access:
            - principal: group:approvers@example.com
              allow: JOIN, APPROVE_OTHERS
          constraints:
            join:
              - type: expiry
                name: expiry
                displayName: Duration
                expiryMinDuration: PT1H
                expiryMaxDuration: PT8H
          privileges:
            iamRoleBindings:
              - resource: projects/billing-prod
                role: roles/billing.admin
                description: full billing admin
`

func TestDecodeValidDocument(t *testing.T) {
	env, diags, err := Decode([]byte(validDocument))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.NotNil(t, env)

	assert.Equal(t, "prod", env.Name())
	sys, ok := env.System("billing")
	require.True(t, ok)
	grp, ok := sys.Group("admins")
	require.True(t, ok)
	assert.Len(t, grp.Privileges(), 1)
	assert.Equal(t, "projects/billing-prod", grp.Privileges()[0].ResourceID.String())
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	env, diags, err := Decode([]byte(validDocument))
	require.NoError(t, err)
	require.Empty(t, diags)

	out, err := Encode(env)
	require.NoError(t, err)

	env2, diags2, err := Decode(out)
	require.NoError(t, err)
	require.Empty(t, diags2)
	require.NotNil(t, env2)

	hash1, err := treeHash(env)
	require.NoError(t, err)
	hash2, err := treeHash(env2)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
}

// treeHash wraps env in a one-environment tree to reuse policy.Tree's
// deterministic snapshot hashing for the round-trip equality check.
func treeHash(env *policy.Environment) (string, error) {
	tree := policy.NewTree()
	if err := tree.AddEnvironment(env); err != nil {
		return "", err
	}
	return tree.Hash()
}

func TestDecodeRejectsUnknownProperty(t *testing.T) {
	doc := strings.Replace(validDocument, "description: production environment", "description: production environment\n  bogusField: true", 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeFileUnknownProperty, diags[0].Code)
}

func TestDecodeRejectsBadSchemaVersion(t *testing.T) {
	doc := strings.Replace(validDocument, "schemaVersion: 1", "schemaVersion: 2", 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeFileInvalidVersion, diags[0].Code)
}

func TestDecodeRejectsMissingEnvironment(t *testing.T) {
	env, diags, err := Decode([]byte("schemaVersion: 1\n"))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeEnvironmentMissing, diags[0].Code)
}

func TestDecodeRejectsInvalidName(t *testing.T) {
	for _, name := range []string{"-a", "a_b", strings.Repeat("a", 25), "has space"} {
		doc := strings.Replace(validDocument, "name: prod", "name: "+name, 1)
		env, diags, err := Decode([]byte(doc))
		require.NoError(t, err)
		assert.Nil(t, env, "name %q should be rejected", name)
		require.NotEmpty(t, diags)
	}
}

func TestDecodeAcceptsValidNameBoundaries(t *testing.T) {
	for _, name := range []string{"a", "a-b", strings.Repeat("a", 24)} {
		doc := strings.Replace(validDocument, "name: prod", "name: "+name, 1)
		env, diags, err := Decode([]byte(doc))
		require.NoError(t, err)
		require.Empty(t, diags, "name %q should be accepted", name)
		require.NotNil(t, env)
		assert.Equal(t, name, env.Name())
	}
}

func TestDecodeRejectsExpiryMinGreaterThanMax(t *testing.T) {
	doc := strings.Replace(validDocument, "expiryMinDuration: PT1H", "expiryMinDuration: PT9H", 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeConstraintInvalidExpiry, diags[0].Code)
}

func TestDecodeRejectsExpiryInApprove(t *testing.T) {
	doc := strings.Replace(validDocument, "constraints:\n            join:", "constraints:\n            approve:", 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeConstraintInvalidExpiry, diags[0].Code)
}

func TestDecodeRejectsSecondExpiryInJoin(t *testing.T) {
	doc := strings.Replace(validDocument, `expiryMaxDuration: PT8H`, `expiryMaxDuration: PT8H
              - type: expiry
                name: expiry2
                expiryMinDuration: PT1H
                expiryMaxDuration: PT2H`, 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeConstraintInvalidExpiry, diags[0].Code)
}

func TestDecodeRejectsMutuallyExclusiveAllowDeny(t *testing.T) {
	doc := strings.Replace(validDocument, "allow: JOIN, APPROVE_OTHERS", "allow: JOIN\n              deny: EXPORT", 1)
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeACLInvalidPermission, diags[0].Code)
}

func TestDecodeDefaultsMissingEnvironmentAccess(t *testing.T) {
	doc := `
schemaVersion: 1
environment:
  name: prod
`
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.NotNil(t, env)

	entries := env.OwnACL().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, acl.Allow, entries[0].Effect)
	assert.Equal(t, acl.View, entries[0].Mask)
	assert.Equal(t, "class:allauthenticated", entries[0].Principal.String())
}

func TestEncodeOmitsDefaultAccess(t *testing.T) {
	doc := `
schemaVersion: 1
environment:
  name: prod
`
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Empty(t, diags)

	out, err := Encode(env)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "allAuthenticated")
}
