package policydoc

import (
	"strings"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"gopkg.in/yaml.v3"
)

// Encode reproduces the textual document for env, the toDocument
// operation of spec §4.5, so parse(emit(tree)) is structurally equal to
// tree (testable property 6). Absent optional sections (constraints,
// metadata, privileges) and the default environment access entry are
// omitted; other fields, including empty strings and empty lists, are
// written even when they hold their default value.
func Encode(env *policy.Environment) ([]byte, error) {
	doc := document{
		SchemaVersion: intPtr(1),
		Environment:   encodeEnvironment(env),
	}
	return yaml.Marshal(doc)
}

func intPtr(n int) *int { return &n }

func encodeEnvironment(env *policy.Environment) *environmentDoc {
	d := &environmentDoc{
		Name:        env.Name(),
		Description: env.Description(),
		Access:      encodeAccessOmitDefault(env.OwnACL()),
		Constraints: encodeConstraints(env.OwnConstraints(constraint.ClassJoin), env.OwnConstraints(constraint.ClassApprove)),
	}
	if md := env.Metadata(); md.Version != "" || md.DefaultName != "" {
		d.Metadata = &metadataDoc{Version: md.Version, DefaultName: md.DefaultName}
	}
	for _, s := range env.Systems() {
		d.Systems = append(d.Systems, encodeSystem(s))
	}
	return d
}

// encodeAccessOmitDefault omits the synthetic {allAuthenticated: VIEW}
// default entry Decode injects when an environment document has no
// access list, so that emit(parse(doc)) reproduces the original absence.
func encodeAccessOmitDefault(a acl.ACL) []accessDoc {
	entries := a.Entries()
	if len(entries) == 1 &&
		entries[0].Effect == acl.Allow &&
		entries[0].Mask == acl.View &&
		entries[0].Principal == principal.Class(principal.ClassAllAuthenticated) {
		return nil
	}
	return encodeAccess(a)
}

func encodeAccess(a acl.ACL) []accessDoc {
	entries := a.Entries()
	if len(entries) == 0 {
		return nil
	}
	out := make([]accessDoc, len(entries))
	for i, e := range entries {
		d := accessDoc{Principal: e.Principal.String()}
		if e.Effect == acl.Deny {
			d.Deny = formatPermissionList(e.Mask)
		} else {
			d.Allow = formatPermissionList(e.Mask)
		}
		out[i] = d
	}
	return out
}

var permissionOrder = []struct {
	name string
	bit  acl.Permission
}{
	{"VIEW", acl.View},
	{"JOIN", acl.Join},
	{"APPROVE_SELF", acl.ApproveSelf},
	{"APPROVE_OTHERS", acl.ApproveOthers},
	{"EXPORT", acl.Export},
}

func formatPermissionList(mask acl.Permission) string {
	var names []string
	for _, p := range permissionOrder {
		if mask&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	return strings.Join(names, ", ")
}

func encodeConstraints(join, approve []constraint.Constraint) *constraintsDoc {
	if len(join) == 0 && len(approve) == 0 {
		return nil
	}
	d := &constraintsDoc{}
	for _, c := range join {
		d.Join = append(d.Join, encodeConstraint(c))
	}
	for _, c := range approve {
		d.Approve = append(d.Approve, encodeConstraint(c))
	}
	return d
}

func encodeConstraint(c constraint.Constraint) constraintDoc {
	switch v := c.(type) {
	case *constraint.Expiry:
		return constraintDoc{
			Type:              "expiry",
			Name:              v.Name(),
			DisplayName:       v.DisplayName(),
			ExpiryMinDuration: constraint.FormatISO8601Duration(v.Min()),
			ExpiryMaxDuration: constraint.FormatISO8601Duration(v.Max()),
		}
	case *constraint.Expression:
		cd := constraintDoc{
			Type:        "expression",
			Name:        v.Name(),
			DisplayName: v.DisplayName(),
			Expression:  v.Source(),
		}
		for _, variable := range v.Variables() {
			cd.Variables = append(cd.Variables, encodeVariable(variable))
		}
		return cd
	default:
		// Emitting a constraint kind outside the supported tags is a
		// programmer error, per spec §4.5.
		panic("policydoc: unknown constraint kind")
	}
}

func encodeVariable(v constraint.Variable) variableDoc {
	var kindName string
	switch v.Kind {
	case constraint.VarString:
		kindName = "string"
	case constraint.VarInt:
		kindName = "int"
	case constraint.VarBool:
		kindName = "bool"
	default:
		panic("policydoc: unknown variable kind")
	}
	return variableDoc{Type: kindName, Name: v.Name, DisplayName: v.DisplayName, Min: v.Min, Max: v.Max}
}

func encodeSystem(s *policy.System) systemDoc {
	d := systemDoc{
		Name:        s.Name(),
		Description: s.Description(),
		Access:      encodeAccess(s.OwnACL()),
		Constraints: encodeConstraints(s.OwnConstraints(constraint.ClassJoin), s.OwnConstraints(constraint.ClassApprove)),
	}
	for _, g := range s.Groups() {
		d.Groups = append(d.Groups, encodeGroup(g))
	}
	return d
}

func encodeGroup(g *policy.JitGroup) groupDoc {
	d := groupDoc{
		Name:        g.Name(),
		Description: g.Description(),
		Access:      encodeAccess(g.OwnACL()),
		Constraints: encodeConstraints(g.OwnConstraints(constraint.ClassJoin), g.OwnConstraints(constraint.ClassApprove)),
	}
	privileges := g.Privileges()
	if len(privileges) > 0 {
		bindings := make([]bindingDoc, len(privileges))
		for i, p := range privileges {
			bindings[i] = bindingDoc{Resource: p.ResourceID.String(), Role: p.Role.String(), Description: p.Description, Condition: p.Condition}
		}
		d.Privileges = &privilegesDoc{IamRoleBindings: bindings}
	}
	return d
}
