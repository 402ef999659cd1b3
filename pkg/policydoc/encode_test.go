package policydoc

import (
	"testing"

	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const expressionDocument = `
schemaVersion: 1
environment:
  name: prod
  systems:
    - name: billing
      groups:
        - name: admins
          access:
            - principal: group:approvers@example.com
              allow: JOIN
          constraints:
            approve:
              - type: expression
                name: business-hours
                displayName: Business hours only
                expression: "input.hour >= 9 && input.hour <= 17"
                variables:
                  - type: int
                    name: hour
                    displayName: Hour of day
                    min: 0
                    max: 23
`

func TestDecodeEncodeRoundTripExpression(t *testing.T) {
	env, diags, err := Decode([]byte(expressionDocument))
	require.NoError(t, err)
	require.Empty(t, diags)
	require.NotNil(t, env)

	out, err := Encode(env)
	require.NoError(t, err)

	env2, diags2, err := Decode(out)
	require.NoError(t, err)
	require.Empty(t, diags2)
	require.NotNil(t, env2)

	h1, err := treeHash(env)
	require.NoError(t, err)
	h2, err := treeHash(env2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	sys2, ok := env2.System("billing")
	require.True(t, ok)
	grp2, ok := sys2.Group("admins")
	require.True(t, ok)
	approve := grp2.OwnConstraints(constraint.ClassApprove)
	require.Len(t, approve, 1)
	expr, ok := approve[0].(*constraint.Expression)
	require.True(t, ok)
	assert.Equal(t, "input.hour >= 9 && input.hour <= 17", expr.Source())
}

func TestDecodeRejectsForbiddenExpressionCall(t *testing.T) {
	doc := `
schemaVersion: 1
environment:
  name: prod
  systems:
    - name: billing
      groups:
        - name: admins
          constraints:
            approve:
              - type: expression
                name: no-now
                expression: "now() > input.hour"
                variables:
                  - type: int
                    name: hour
`
	env, diags, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, env)
	require.NotEmpty(t, diags)
	assert.Equal(t, CodeConstraintInvalidExpression, diags[0].Code)
}
