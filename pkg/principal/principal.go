// Package principal implements the typed identifiers that appear in
// access-control lists and subjects: users, directory groups, JIT groups,
// well-known classes, resources and roles.
package principal

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags the variant of an ID.
type Kind int

const (
	// KindUser is an end-user identified by email-shaped local part + domain.
	KindUser Kind = iota
	// KindGroup is an external directory group.
	KindGroup
	// KindJitGroup is an internal (env, system, name) triple.
	KindJitGroup
	// KindClass is a well-known class such as "allAuthenticated".
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindGroup:
		return "group"
	case KindJitGroup:
		return "jit-group"
	case KindClass:
		return "class"
	default:
		return "unknown"
	}
}

// ClassAllAuthenticated is the well-known class granted to every
// user-backed subject regardless of group membership.
const ClassAllAuthenticated = "allAuthenticated"

// NameRegex is the shared name constraint for environment, system and
// group names (policy.Tree node names), lowercase at ingest, max 24 chars.
var NameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,23}$`)

// ID is a canonical principal reference, comparable by value.
type ID struct {
	kind   Kind
	local  string // user/group local part, class id, or jit-group name
	domain string // user/group domain, empty for class/jit-group
	env    string // jit-group only
	system string // jit-group only
}

// User constructs a user ID from a pre-validated local part and domain.
func User(local, domain string) ID {
	return ID{kind: KindUser, local: strings.ToLower(local), domain: strings.ToLower(domain)}
}

// Group constructs a directory-group ID from a pre-validated local part and domain.
func Group(local, domain string) ID {
	return ID{kind: KindGroup, local: strings.ToLower(local), domain: strings.ToLower(domain)}
}

// Class constructs a well-known class ID.
func Class(name string) ID {
	return ID{kind: KindClass, local: strings.ToLower(name)}
}

// JitGroup constructs a JIT-group ID from pre-validated parts, asserting
// the shared name regex on all three components.
func JitGroup(env, system, name string) ID {
	env, system, name = strings.ToLower(env), strings.ToLower(system), strings.ToLower(name)
	for _, part := range []string{env, system, name} {
		if !NameRegex.MatchString(part) {
			panic(fmt.Sprintf("principal: invalid jit-group component %q", part))
		}
	}
	return ID{kind: KindJitGroup, env: env, system: system, local: name}
}

// Kind reports the ID's variant.
func (id ID) Kind() Kind { return id.kind }

// Local returns the local part (user/group local, class name, or
// jit-group leaf name).
func (id ID) Local() string { return id.local }

// Domain returns the domain for user/group IDs, empty otherwise.
func (id ID) Domain() string { return id.domain }

// Env returns the environment name for JIT-group IDs, empty otherwise.
func (id ID) Env() string { return id.env }

// System returns the system name for JIT-group IDs, empty otherwise.
func (id ID) System() string { return id.system }

// IsZero reports whether id is the zero value (no kind assigned).
func (id ID) IsZero() bool { return id == ID{} }

// String renders the canonical, lowercase form of id.
//
//	user:alice@example.com
//	group:approvers@example.com
//	class:allauthenticated
//	jit-group:env-1.sys-1.g-1
func (id ID) String() string {
	switch id.kind {
	case KindUser:
		return "user:" + id.local + "@" + id.domain
	case KindGroup:
		return "group:" + id.local + "@" + id.domain
	case KindClass:
		return "class:" + id.local
	case KindJitGroup:
		return "jit-group:" + id.env + "." + id.system + "." + id.local
	default:
		return ""
	}
}

// Less implements the canonical lexicographic ordering over String().
func (id ID) Less(other ID) bool { return id.String() < other.String() }

// Parse parses the canonical form of an ID. It never errors; malformed
// input yields the zero ID with ok=false, per spec (parse returns absent,
// never throws).
func Parse(s string) (id ID, ok bool) {
	kind, rest, found := strings.Cut(s, ":")
	if !found {
		return ID{}, false
	}
	switch kind {
	case "user":
		local, domain, ok2 := strings.Cut(rest, "@")
		if !ok2 || local == "" || domain == "" {
			return ID{}, false
		}
		return User(local, domain), true
	case "group":
		local, domain, ok2 := strings.Cut(rest, "@")
		if !ok2 || local == "" || domain == "" {
			return ID{}, false
		}
		return Group(local, domain), true
	case "class":
		if rest == "" {
			return ID{}, false
		}
		return Class(rest), true
	case "jit-group":
		parts := strings.Split(rest, ".")
		if len(parts) != 3 {
			return ID{}, false
		}
		for _, p := range parts {
			if !NameRegex.MatchString(strings.ToLower(p)) {
				return ID{}, false
			}
		}
		return JitGroup(parts[0], parts[1], parts[2]), true
	default:
		return ID{}, false
	}
}

// MustParse parses s and panics on failure; intended for tests and
// trusted literal construction.
func MustParse(s string) ID {
	id, ok := Parse(s)
	if !ok {
		panic(fmt.Sprintf("principal: cannot parse %q", s))
	}
	return id
}

// JitGroupString returns the canonical jit-group string form
// env.system.name, without the jit-group: scheme prefix, as used by
// membership identifiers emitted to the directory.
func (id ID) JitGroupString() string {
	if id.kind != KindJitGroup {
		return ""
	}
	return id.env + "." + id.system + "." + id.local
}

// resourceScopes are the cloud-resource scopes a privilege's
// ResourceID may name, per the IAM role-binding shape C1 parses.
var resourceScopes = map[string]bool{
	"projects":      true,
	"folders":       true,
	"organizations": true,
}

// ResourceID is a typed cloud-resource reference, canonical form
// "<scope>/<id>" with scope one of projects/folders/organizations.
// Distinct from ID: resources never appear in an ACL principalRef,
// only in a JitGroup's privilege bindings.
type ResourceID struct {
	scope string
	id    string
}

// ParseResourceID parses a canonical resource reference. It never
// errors; malformed input yields the zero ResourceID with ok=false.
func ParseResourceID(s string) (ResourceID, bool) {
	scope, id, found := strings.Cut(s, "/")
	if !found || id == "" || !resourceScopes[scope] {
		return ResourceID{}, false
	}
	return ResourceID{scope: scope, id: id}, true
}

// MustParseResourceID parses s and panics on failure; intended for
// tests and trusted literal construction.
func MustParseResourceID(s string) ResourceID {
	r, ok := ParseResourceID(s)
	if !ok {
		panic(fmt.Sprintf("principal: cannot parse resource id %q", s))
	}
	return r
}

// IsZero reports whether r is the zero value.
func (r ResourceID) IsZero() bool { return r.scope == "" }

// String renders the canonical "<scope>/<id>" form, or "" for the zero
// value, round-tripping with ParseResourceID.
func (r ResourceID) String() string {
	if r.IsZero() {
		return ""
	}
	return r.scope + "/" + r.id
}

// RoleID is a typed IAM role reference, canonical form "roles/<name>".
type RoleID struct {
	name string
}

// ParseRoleID parses a canonical role reference. It never errors;
// malformed input yields the zero RoleID with ok=false.
func ParseRoleID(s string) (RoleID, bool) {
	rest, ok := strings.CutPrefix(s, "roles/")
	if !ok || rest == "" {
		return RoleID{}, false
	}
	return RoleID{name: rest}, true
}

// MustParseRoleID parses s and panics on failure; intended for tests
// and trusted literal construction.
func MustParseRoleID(s string) RoleID {
	r, ok := ParseRoleID(s)
	if !ok {
		panic(fmt.Sprintf("principal: cannot parse role id %q", s))
	}
	return r
}

// IsZero reports whether r is the zero value.
func (r RoleID) IsZero() bool { return r.name == "" }

// String renders the canonical "roles/<name>" form, or "" for the zero
// value, round-tripping with ParseRoleID.
func (r RoleID) String() string {
	if r.IsZero() {
		return ""
	}
	return "roles/" + r.name
}
