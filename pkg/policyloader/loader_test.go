package policyloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jitaccess/broker/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prodDocument = `
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
`

const stagingDocument = `
schemaVersion: 1
environment:
  name: staging
  description: staging environment
  access:
    - principal: class:allAuthenticated
      allow: VIEW
`

func TestLoaderLoadsSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(prodDocument), 0o600))

	store := policy.NewStore()
	loader := NewLoader(path, store)
	require.NoError(t, loader.Load())

	env, ok := store.Current().Environment("prod")
	require.True(t, ok)
	assert.Equal(t, "prod", env.Name())
}

func TestLoaderAssemblesMultipleEnvironmentsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte(prodDocument), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yml"), []byte(stagingDocument), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0o600))

	store := policy.NewStore()
	loader := NewLoader(dir, store)
	require.NoError(t, loader.Load())

	tree := store.Current()
	_, ok := tree.Environment("prod")
	assert.True(t, ok)
	_, ok = tree.Environment("staging")
	assert.True(t, ok)
	assert.Len(t, tree.Environments(), 2)
}

func TestLoaderRejectsInvalidDocumentWithoutTouchingStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemaVersion: 1\n"), 0o600))

	store := policy.NewStore()
	loader := NewLoader(path, store)
	err := loader.Load()
	require.Error(t, err)

	assert.Empty(t, store.Current().Environments())
}

func TestLoaderInvokesStoreOnReloadHooks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(prodDocument), 0o600))

	store := policy.NewStore()
	var called bool
	store.OnReload(func(*policy.Tree) { called = true })

	loader := NewLoader(path, store)
	require.NoError(t, loader.Load())
	assert.True(t, called)
}
