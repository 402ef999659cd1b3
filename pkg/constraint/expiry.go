package constraint

import (
	"fmt"
	"time"

	"github.com/jitaccess/broker/pkg/jitbroker"
)

// durationVariable is the single declared input every Expiry check
// exposes, named "expiry".
var durationVariable = Variable{Name: "expiry", DisplayName: "Duration", Kind: VarString}

// Expiry is the sentinel constraint kind contributing the chosen grant
// duration to a Join operation. When Min == Max the duration is fixed
// and no user input is required.
type Expiry struct {
	name        string
	displayName string
	min, max    time.Duration
}

// NewExpiry constructs an Expiry constraint. min must be <= max; the
// codec validates this at parse time (CONSTRAINT_INVALID_EXPIRY).
func NewExpiry(name, displayName string, min, max time.Duration) *Expiry {
	return &Expiry{name: name, displayName: displayName, min: min, max: max}
}

func (e *Expiry) Name() string        { return e.name }
func (e *Expiry) DisplayName() string { return e.displayName }
func (e *Expiry) Kind() Kind          { return KindExpiry }
func (e *Expiry) Min() time.Duration  { return e.min }
func (e *Expiry) Max() time.Duration  { return e.max }
func (e *Expiry) Fixed() bool         { return e.min == e.max }

func (e *Expiry) CreateCheck() Check {
	return &expiryCheck{constraint: e, input: &Input{Variable: durationVariable}}
}

type expiryCheck struct {
	constraint *Expiry
	input      *Input
}

func (c *expiryCheck) Constraint() Constraint { return c.constraint }
func (c *expiryCheck) Inputs() []*Input        { return []*Input{c.input} }

func (c *expiryCheck) Set(name, value string) error {
	if name != durationVariable.Name {
		return fmt.Errorf("constraint: expiry check has no input %q", name)
	}
	d, err := ParseISO8601Duration(value)
	if err != nil {
		return err
	}
	if d < c.constraint.min || d > c.constraint.max {
		return fmt.Errorf("constraint: expiry %s out of range [%s, %s]", value,
			FormatISO8601Duration(c.constraint.min), FormatISO8601Duration(c.constraint.max))
	}
	c.input.raw = FormatISO8601Duration(d)
	c.input.isSet = true
	return nil
}

// Evaluate is trivially satisfied once the input is present, or when the
// duration is fixed (no input required).
func (c *expiryCheck) Evaluate(_ Context) (Outcome, *jitbroker.Diagnostic) {
	if c.constraint.Fixed() && !c.input.isSet {
		c.input.raw = FormatISO8601Duration(c.constraint.min)
		c.input.isSet = true
	}
	if !c.input.isSet {
		return Unsatisfied, &jitbroker.Diagnostic{
			ConstraintName: c.constraint.name,
			Message:        "required expiry input missing",
		}
	}
	return Satisfied, nil
}

// ExtractExpiry returns the chosen duration from a bound, evaluated
// expiry check, and whether one was available.
func ExtractExpiry(c Check) (time.Duration, bool) {
	ec, ok := c.(*expiryCheck)
	if !ok || !ec.input.isSet {
		return 0, false
	}
	d, err := ParseISO8601Duration(ec.input.raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
