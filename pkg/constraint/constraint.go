// Package constraint implements the typed-variable predicate model: the
// Expiry sentinel kind and CEL-based Expression checks, evaluated over a
// fixed {subject, group, input} context.
package constraint

import (
	"github.com/jitaccess/broker/pkg/jitbroker"
)

// Class distinguishes the Join-class from the Approve-class constraint
// lists attached to a policy node, since the two have different
// invariants (at most one Expiry in Join, none in Approve).
type Class int

const (
	ClassJoin Class = iota
	ClassApprove
)

// Kind tags a constraint's variant.
type Kind int

const (
	KindExpiry Kind = iota
	KindExpression
)

// VarKind tags a declared expression variable's type.
type VarKind int

const (
	VarString VarKind = iota
	VarInt
	VarBool
)

// Variable describes one user-supplied input to an Expression
// constraint. Min/Max are length bounds for VarString, value bounds for
// VarInt, and unused for VarBool.
type Variable struct {
	Name        string
	DisplayName string
	Kind        VarKind
	Min, Max    int
}

// Constraint is the common surface of both kinds.
type Constraint interface {
	Name() string
	DisplayName() string
	Kind() Kind
	CreateCheck() Check
}

// Context is the fixed evaluation context published to Expression
// constraints: subject{email, principals}, group{environment, system, name}.
type Context struct {
	SubjectEmail    string
	Principals      []string
	Environment     string
	System          string
	Group           string
}

// Outcome is the evaluate() result when no error occurred.
type Outcome int

const (
	Satisfied Outcome = iota
	Unsatisfied
)

// Check is a bound, evaluatable instance of a Constraint: its declared
// inputs plus the evaluate method.
type Check interface {
	Constraint() Constraint
	Inputs() []*Input
	// Set assigns the named input's raw (trimmed) textual value,
	// validating it against the declared variable's type and range.
	Set(name, value string) error
	// Evaluate runs the check against ctx. A non-nil diagnostic means
	// Failed (missing input, expression error); outcome distinguishes
	// Satisfied from Unsatisfied otherwise.
	Evaluate(ctx Context) (Outcome, *jitbroker.Diagnostic)
}

// Input is one bound, typed value for a Check.
type Input struct {
	Variable Variable
	raw      string
	isSet    bool
}

// Get returns the canonical textual form of the input's current value.
func (in *Input) Get() string { return in.raw }

// IsSet reports whether a value has been bound.
func (in *Input) IsSet() bool { return in.isSet }
