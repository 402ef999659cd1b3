package constraint

import (
	"fmt"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// issue is one reason an expression was rejected by validate.
type issue struct {
	Message string
}

// validateSource rejects expression constructs that would make
// evaluation non-deterministic across replays: floating point literals,
// now(), and map iteration via keys()/values(). Grounded on the
// teacher's CEL AST-walking validator, which enforces the same rules
// for its own deterministic-policy CEL dialect.
func validateSource(env *cel.Env, source string) ([]issue, error) {
	ast, issues := env.Parse(source)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	var out []issue
	walkExpr(ast.Expr(), &out)
	return out, nil
}

func walkExpr(e *exprpb.Expr, out *[]issue) {
	if e == nil {
		return
	}
	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			*out = append(*out, issue{Message: "floating point literals are forbidden"})
		}
	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			*out = append(*out, issue{Message: "now() is forbidden"})
		case "keys", "values":
			*out = append(*out, issue{Message: "map iteration (keys/values) is forbidden"})
		}
		if call.Target != nil {
			walkExpr(call.Target, out)
		}
		for _, arg := range call.Args {
			walkExpr(arg, out)
		}
	case *exprpb.Expr_SelectExpr:
		walkExpr(k.SelectExpr.Operand, out)
	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walkExpr(el, out)
		}
	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if entry.GetMapKey() != nil {
				walkExpr(entry.GetMapKey(), out)
			}
			walkExpr(entry.Value, out)
		}
	case *exprpb.Expr_ComprehensionExpr:
		c := k.ComprehensionExpr
		walkExpr(c.IterRange, out)
		walkExpr(c.AccuInit, out)
		walkExpr(c.LoopCondition, out)
		walkExpr(c.LoopStep, out)
		walkExpr(c.Result, out)
	}
}

func issuesError(issues []issue) error {
	if len(issues) == 0 {
		return nil
	}
	msg := issues[0].Message
	for _, i := range issues[1:] {
		msg += "; " + i.Message
	}
	return fmt.Errorf("constraint: expression rejected: %s", msg)
}
