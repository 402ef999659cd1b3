package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/jitaccess/broker/pkg/jitbroker"
)

// Expression is a named, optionally-parameterized boolean predicate
// evaluated over the published {subject, group, input} context.
type Expression struct {
	name        string
	displayName string
	message     string
	source      string
	variables   []Variable

	env     *cel.Env
	program cel.Program
}

// NewExpression compiles source against an env declaring subject, group
// and input as string-keyed maps, and validates it against the
// deterministic-expression rules. message, if non-empty, is surfaced as
// the constraintUnsatisfied reason when evaluation returns false.
func NewExpression(name, displayName, message, source string, variables []Variable) (*Expression, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("group", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("constraint: building CEL env: %w", err)
	}

	issues, err := validateSource(env, source)
	if err != nil {
		return nil, fmt.Errorf("constraint: parsing expression %q: %w", name, err)
	}
	if err := issuesError(issues); err != nil {
		return nil, err
	}

	ast, iss := env.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("constraint: compiling expression %q: %w", name, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("constraint: building program for %q: %w", name, err)
	}

	return &Expression{
		name: name, displayName: displayName, message: message,
		source: source, variables: variables, env: env, program: prg,
	}, nil
}

func (e *Expression) Name() string        { return e.name }
func (e *Expression) DisplayName() string { return e.displayName }
func (e *Expression) Kind() Kind          { return KindExpression }
func (e *Expression) Message() string     { return e.message }
func (e *Expression) Source() string      { return e.source }
func (e *Expression) Variables() []Variable {
	out := make([]Variable, len(e.variables))
	copy(out, e.variables)
	return out
}

func (e *Expression) CreateCheck() Check {
	inputs := make([]*Input, len(e.variables))
	for i, v := range e.variables {
		inputs[i] = &Input{Variable: v}
	}
	return &expressionCheck{constraint: e, inputs: inputs}
}

type expressionCheck struct {
	constraint *Expression
	inputs     []*Input
}

func (c *expressionCheck) Constraint() Constraint { return c.constraint }
func (c *expressionCheck) Inputs() []*Input        { return c.inputs }

func (c *expressionCheck) Set(name, value string) error {
	for _, in := range c.inputs {
		if in.Variable.Name != name {
			continue
		}
		trimmed := strings.TrimSpace(value)
		if err := validateTyped(in.Variable, trimmed); err != nil {
			return err
		}
		in.raw = trimmed
		in.isSet = true
		return nil
	}
	return fmt.Errorf("constraint: %s has no input %q", c.constraint.name, name)
}

func validateTyped(v Variable, value string) error {
	switch v.Kind {
	case VarString:
		if len(value) < v.Min || (v.Max > 0 && len(value) > v.Max) {
			return fmt.Errorf("constraint: input %q length out of range [%d,%d]", v.Name, v.Min, v.Max)
		}
	case VarInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("constraint: input %q is not an integer: %w", v.Name, err)
		}
		if n < v.Min || (v.Max > 0 && n > v.Max) {
			return fmt.Errorf("constraint: input %q value out of range [%d,%d]", v.Name, v.Min, v.Max)
		}
	case VarBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("constraint: input %q is not a boolean: %w", v.Name, err)
		}
	}
	return nil
}

func typedValue(v Variable, raw string) interface{} {
	switch v.Kind {
	case VarInt:
		n, _ := strconv.Atoi(raw)
		return n
	case VarBool:
		b, _ := strconv.ParseBool(raw)
		return b
	default:
		return raw
	}
}

func (c *expressionCheck) Evaluate(ctx Context) (Outcome, *jitbroker.Diagnostic) {
	for _, in := range c.inputs {
		if !in.isSet {
			return Unsatisfied, &jitbroker.Diagnostic{
				ConstraintName: c.constraint.name,
				Message:        fmt.Sprintf("required input %q missing", in.Variable.Name),
			}
		}
	}

	inputMap := make(map[string]interface{}, len(c.inputs))
	for _, in := range c.inputs {
		inputMap[in.Variable.Name] = typedValue(in.Variable, in.raw)
	}

	vars := map[string]interface{}{
		"subject": map[string]interface{}{
			"email":      ctx.SubjectEmail,
			"principals": ctx.Principals,
		},
		"group": map[string]interface{}{
			"environment": ctx.Environment,
			"system":      ctx.System,
			"name":        ctx.Group,
		},
		"input": inputMap,
	}

	val, _, err := c.constraint.program.Eval(vars)
	if err != nil {
		return Unsatisfied, &jitbroker.Diagnostic{
			ConstraintName: c.constraint.name,
			Message:        fmt.Sprintf("expression evaluation error: %v", err),
		}
	}

	b, ok := val.Value().(bool)
	if !ok {
		return Unsatisfied, &jitbroker.Diagnostic{
			ConstraintName: c.constraint.name,
			Message:        "expression did not evaluate to a boolean",
		}
	}
	if b {
		return Satisfied, nil
	}
	return Unsatisfied, nil
}
