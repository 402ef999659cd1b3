// Package policydoc implements the textual policy document format:
// strict YAML decoding into a linked policy.Tree with structured
// diagnostics, and emission (Encode) for the round-trip property.
package policydoc

import "fmt"

// Severity tags a Diagnostic as blocking (Error) or informational (Warning).
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// The closed set of diagnostic codes, per spec §4.5.
const (
	CodeFileInvalidSyntax               = "FILE_INVALID_SYNTAX"
	CodeFileUnknownProperty             = "FILE_UNKNOWN_PROPERTY"
	CodeFileInvalidVersion              = "FILE_INVALID_VERSION"
	CodeEnvironmentMissing              = "ENVIRONMENT_MISSING"
	CodeEnvironmentInvalid              = "ENVIRONMENT_INVALID"
	CodeSystemInvalid                   = "SYSTEM_INVALID"
	CodeGroupInvalid                    = "GROUP_INVALID"
	CodeACLInvalidPrincipal             = "ACL_INVALID_PRINCIPAL"
	CodeACLInvalidPermission            = "ACL_INVALID_PERMISSION"
	CodeConstraintInvalidType           = "CONSTRAINT_INVALID_TYPE"
	CodeConstraintInvalidExpiry         = "CONSTRAINT_INVALID_EXPIRY"
	CodeConstraintInvalidExpression     = "CONSTRAINT_INVALID_EXPRESSION"
	CodeConstraintInvalidVariableDecl   = "CONSTRAINT_INVALID_VARIABLE_DECLARATION"
	CodePrivilegeInvalidResourceID      = "PRIVILEGE_INVALID_RESOURCE_ID"
	CodePrivilegeDuplicateResourceID    = "PRIVILEGE_DUPLICATE_RESOURCE_ID"
	CodePrivilegeInvalidRole            = "PRIVILEGE_INVALID_ROLE"
)

// Diagnostic is one codec issue: a blocking error or a non-blocking warning.
type Diagnostic struct {
	Severity Severity
	Scope    string // dotted path, e.g. "environment.systems[0].groups[1].access[0]"
	Code     string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s] %s: %s", d.Severity, d.Code, d.Scope, d.Message)
}

// Diagnostics is an ordered collection of issues.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic is blocking.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (ds *Diagnostics) addError(scope, code, message string) {
	*ds = append(*ds, Diagnostic{Severity: Error, Scope: scope, Code: code, Message: message})
}

func (ds *Diagnostics) addWarning(scope, code, message string) {
	*ds = append(*ds, Diagnostic{Severity: Warning, Scope: scope, Code: code, Message: message})
}
