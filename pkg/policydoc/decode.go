package policydoc

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jitaccess/broker/pkg/acl"
	"github.com/jitaccess/broker/pkg/constraint"
	"github.com/jitaccess/broker/pkg/policy"
	"github.com/jitaccess/broker/pkg/principal"
	"gopkg.in/yaml.v3"
)

var permissionNames = map[string]acl.Permission{
	"VIEW":           acl.View,
	"JOIN":           acl.Join,
	"APPROVE_SELF":   acl.ApproveSelf,
	"APPROVE_OTHERS": acl.ApproveOthers,
	"EXPORT":         acl.Export,
}

// Decode parses a textual policy document into a fully-linked
// policy.Environment plus a diagnostics collection. On any error
// diagnostic the returned environment is nil, per spec §4.5 ("On any
// error the codec returns no policy").
func Decode(data []byte) (*policy.Environment, Diagnostics, error) {
	var diags Diagnostics

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		diags.addError("$", CodeFileInvalidSyntax, err.Error())
		return nil, diags, nil
	}
	if generic != nil {
		if err := validateShape(jsonable(generic)); err != nil {
			diags.addError("$", CodeFileInvalidSyntax, err.Error())
			return nil, diags, nil
		}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "unknown field") {
			diags.addError("$", CodeFileUnknownProperty, err.Error())
		} else {
			diags.addError("$", CodeFileInvalidSyntax, err.Error())
		}
		return nil, diags, nil
	}

	if doc.SchemaVersion == nil || *doc.SchemaVersion != 1 {
		diags.addError("schemaVersion", CodeFileInvalidVersion, "schemaVersion must be 1")
		return nil, diags, nil
	}
	if doc.Environment == nil {
		diags.addError("environment", CodeEnvironmentMissing, "environment is required")
		return nil, diags, nil
	}

	env := decodeEnvironment(*doc.Environment, &diags)
	if diags.HasErrors() {
		return nil, diags, nil
	}
	return env, diags, nil
}

// jsonable converts a yaml.Unmarshal-produced generic value into the
// shape encoding/json.Unmarshal would have produced (numbers as
// float64), since the jsonschema validator's type checks assume that
// representation.
func jsonable(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = jsonable(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = jsonable(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}

func decodeEnvironment(d environmentDoc, diags *Diagnostics) *policy.Environment {
	name := resolveName(d.Name, d.Metadata, "environment", diags)
	if name == "" {
		return nil
	}

	entries, ok := decodeAccess(d.Access, "environment.access", diags)
	if !ok {
		return nil
	}
	var a acl.ACL
	if len(d.Access) == 0 {
		// Missing access on the environment defaults to VIEW for
		// class:allAuthenticated, per spec §4.5.
		a = acl.New(acl.Entry{Effect: acl.Allow, Principal: principal.Class(principal.ClassAllAuthenticated), Mask: acl.View})
	} else {
		a = acl.New(entries...)
	}

	constraints, ok := decodeConstraints(d.Constraints, "environment.constraints", diags)
	if !ok {
		return nil
	}

	md := policy.Metadata{Source: "policydoc"}
	if d.Metadata != nil {
		md.Version = d.Metadata.Version
		md.DefaultName = d.Metadata.DefaultName
	}

	env := policy.NewEnvironment(name, d.Description, a, constraints, md)

	for i, sd := range d.Systems {
		sys := decodeSystem(sd, fmt.Sprintf("environment.systems[%d]", i), diags)
		if sys == nil {
			continue
		}
		if err := env.Add(sys); err != nil {
			diags.addError(fmt.Sprintf("environment.systems[%d]", i), CodeSystemInvalid, err.Error())
		}
	}
	return env
}

func decodeSystem(d systemDoc, scope string, diags *Diagnostics) *policy.System {
	if !policy.NameRegex.MatchString(strings.ToLower(d.Name)) {
		diags.addError(scope+".name", CodeSystemInvalid, fmt.Sprintf("invalid system name %q", d.Name))
		return nil
	}
	entries, ok := decodeAccess(d.Access, scope+".access", diags)
	if !ok {
		return nil
	}
	constraints, ok := decodeConstraints(d.Constraints, scope+".constraints", diags)
	if !ok {
		return nil
	}
	sys := policy.NewSystem(strings.ToLower(d.Name), d.Description, acl.New(entries...), constraints)
	for i, gd := range d.Groups {
		grp := decodeGroup(gd, fmt.Sprintf("%s.groups[%d]", scope, i), diags)
		if grp == nil {
			continue
		}
		if err := sys.Add(grp); err != nil {
			diags.addError(fmt.Sprintf("%s.groups[%d]", scope, i), CodeGroupInvalid, err.Error())
		}
	}
	return sys
}

func decodeGroup(d groupDoc, scope string, diags *Diagnostics) *policy.JitGroup {
	if !policy.NameRegex.MatchString(strings.ToLower(d.Name)) {
		diags.addError(scope+".name", CodeGroupInvalid, fmt.Sprintf("invalid group name %q", d.Name))
		return nil
	}
	entries, ok := decodeAccess(d.Access, scope+".access", diags)
	if !ok {
		return nil
	}
	constraints, ok := decodeConstraints(d.Constraints, scope+".constraints", diags)
	if !ok {
		return nil
	}
	privileges := decodePrivileges(d.Privileges, scope+".privileges", diags)

	return policy.NewJitGroup(strings.ToLower(d.Name), d.Description, acl.New(entries...), constraints, privileges)
}

func decodeAccess(docs []accessDoc, scope string, diags *Diagnostics) ([]acl.Entry, bool) {
	out := make([]acl.Entry, 0, len(docs))
	ok := true
	for i, a := range docs {
		entryScope := fmt.Sprintf("%s[%d]", scope, i)
		id, parsed := principal.Parse(a.Principal)
		if !parsed {
			diags.addError(entryScope+".principal", CodeACLInvalidPrincipal, fmt.Sprintf("invalid principal %q", a.Principal))
			ok = false
			continue
		}
		if a.Allow != "" && a.Deny != "" {
			diags.addError(entryScope, CodeACLInvalidPermission, "allow and deny are mutually exclusive")
			ok = false
			continue
		}
		permList := a.Allow
		effect := acl.Allow
		if a.Deny != "" {
			permList = a.Deny
			effect = acl.Deny
		}
		mask, permErr := parsePermissionList(permList)
		if permErr != nil {
			diags.addError(entryScope, CodeACLInvalidPermission, permErr.Error())
			ok = false
			continue
		}
		out = append(out, acl.Entry{Effect: effect, Principal: id, Mask: mask})
	}
	return out, ok
}

func parsePermissionList(s string) (acl.Permission, error) {
	var mask acl.Permission
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("permission list is empty")
	}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		bit, ok := permissionNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown permission %q", part)
		}
		mask |= bit
	}
	return mask, nil
}

func decodeConstraints(d *constraintsDoc, scope string, diags *Diagnostics) (map[constraint.Class][]constraint.Constraint, bool) {
	out := map[constraint.Class][]constraint.Constraint{}
	if d == nil {
		return out, true
	}
	ok := true
	join, joinOK := decodeConstraintList(d.Join, constraint.ClassJoin, scope+".join", diags)
	ok = ok && joinOK
	approve, approveOK := decodeConstraintList(d.Approve, constraint.ClassApprove, scope+".approve", diags)
	ok = ok && approveOK
	if len(join) > 0 {
		out[constraint.ClassJoin] = join
	}
	if len(approve) > 0 {
		out[constraint.ClassApprove] = approve
	}
	return out, ok
}

func decodeConstraintList(docs []constraintDoc, class constraint.Class, scope string, diags *Diagnostics) ([]constraint.Constraint, bool) {
	out := make([]constraint.Constraint, 0, len(docs))
	ok := true
	expiryCount := 0
	for i, cd := range docs {
		entryScope := fmt.Sprintf("%s[%d]", scope, i)
		switch strings.ToLower(cd.Type) {
		case "expiry":
			expiryCount++
			if class == constraint.ClassApprove {
				diags.addError(entryScope, CodeConstraintInvalidExpiry, "approve constraints may not include an expiry")
				ok = false
				continue
			}
			if expiryCount > 1 {
				diags.addError(entryScope, CodeConstraintInvalidExpiry, "join constraints may contain at most one expiry")
				ok = false
				continue
			}
			min, minErr := parseISO8601(cd.ExpiryMinDuration)
			max, maxErr := parseISO8601(cd.ExpiryMaxDuration)
			if minErr != nil || maxErr != nil || min > max {
				diags.addError(entryScope, CodeConstraintInvalidExpiry, "invalid or inverted expiry bounds")
				ok = false
				continue
			}
			name := cd.Name
			if name == "" {
				name = "expiry"
			}
			out = append(out, constraint.NewExpiry(name, cd.DisplayName, min, max))
		case "expression":
			if cd.Name == "" {
				diags.addError(entryScope+".name", CodeConstraintInvalidType, "expression constraints require a name")
				ok = false
				continue
			}
			vars, varsOK := decodeVariables(cd.Variables, entryScope+".variables", diags)
			if !varsOK {
				ok = false
				continue
			}
			expr, err := constraint.NewExpression(cd.Name, cd.DisplayName, "", cd.Expression, vars)
			if err != nil {
				diags.addError(entryScope+".expression", CodeConstraintInvalidExpression, err.Error())
				ok = false
				continue
			}
			out = append(out, expr)
		default:
			diags.addError(entryScope+".type", CodeConstraintInvalidType, fmt.Sprintf("unknown constraint type %q", cd.Type))
			ok = false
		}
	}
	return out, ok
}

func decodeVariables(docs []variableDoc, scope string, diags *Diagnostics) ([]constraint.Variable, bool) {
	out := make([]constraint.Variable, 0, len(docs))
	ok := true
	for i, vd := range docs {
		entryScope := fmt.Sprintf("%s[%d]", scope, i)
		var kind constraint.VarKind
		switch strings.ToLower(vd.Type) {
		case "string":
			kind = constraint.VarString
		case "int", "integer":
			kind = constraint.VarInt
		case "bool", "boolean":
			kind = constraint.VarBool
		default:
			diags.addError(entryScope+".type", CodeConstraintInvalidVariableDecl, fmt.Sprintf("unknown variable type %q", vd.Type))
			ok = false
			continue
		}
		if vd.Name == "" {
			diags.addError(entryScope+".name", CodeConstraintInvalidVariableDecl, "variable name is required")
			ok = false
			continue
		}
		out = append(out, constraint.Variable{
			Name: vd.Name, DisplayName: vd.DisplayName, Kind: kind, Min: vd.Min, Max: vd.Max,
		})
	}
	return out, ok
}

func decodePrivileges(d *privilegesDoc, scope string, diags *Diagnostics) []policy.Privilege {
	if d == nil {
		return nil
	}
	out := make([]policy.Privilege, 0, len(d.IamRoleBindings))
	seen := map[string]bool{}
	for i, b := range d.IamRoleBindings {
		entryScope := fmt.Sprintf("%s.iamRoleBindings[%d]", scope, i)
		if b.Project != "" && b.Resource != "" {
			diags.addError(entryScope, CodePrivilegeInvalidResourceID, "project and resource are mutually exclusive")
			continue
		}
		rawResourceID := b.Resource
		if b.Project != "" {
			rawResourceID = "projects/" + b.Project
		}
		resourceID, ok := principal.ParseResourceID(rawResourceID)
		if !ok {
			diags.addError(entryScope, CodePrivilegeInvalidResourceID, fmt.Sprintf("invalid resource id %q", rawResourceID))
			continue
		}
		role, ok := principal.ParseRoleID(b.Role)
		if !ok {
			diags.addError(entryScope+".role", CodePrivilegeInvalidRole, fmt.Sprintf("invalid role %q", b.Role))
			continue
		}
		key := resourceID.String() + "|" + role.String()
		if seen[key] {
			diags.addError(entryScope, CodePrivilegeDuplicateResourceID, fmt.Sprintf("duplicate binding for %s", key))
			continue
		}
		seen[key] = true
		out = append(out, policy.Privilege{
			ResourceID: resourceID, Role: role, Description: b.Description, Condition: b.Condition,
		})
	}
	return out
}

func resolveName(name string, md *metadataDoc, scope string, diags *Diagnostics) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" && md != nil {
		name = strings.ToLower(strings.TrimSpace(md.DefaultName))
	}
	if name == "" || !policy.NameRegex.MatchString(name) {
		diags.addError(scope+".name", CodeEnvironmentInvalid, fmt.Sprintf("invalid or missing name %q", name))
		return ""
	}
	return name
}

func parseISO8601(s string) (time.Duration, error) {
	return constraint.ParseISO8601Duration(s)
}
