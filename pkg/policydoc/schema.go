package policydoc

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema is a structural pre-validation of the decoded document,
// run before semantic linking, catching shape errors (wrong value types,
// out-of-enum constraint/variable "type" fields) with a single compiled
// schema rather than hand-written type assertions throughout the
// decoder. Grounded on the teacher's pkg/firewall use of
// santhosh-tekuri/jsonschema for JSON-Schema-gated tool parameters.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "schemaVersion": {"type": "integer"},
    "environment": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"},
        "access": {"type": "array", "items": {"$ref": "#/$defs/access"}},
        "constraints": {"$ref": "#/$defs/constraints"},
        "metadata": {"type": "object"},
        "systems": {"type": "array", "items": {"$ref": "#/$defs/system"}}
      }
    }
  },
  "$defs": {
    "access": {
      "type": "object",
      "properties": {
        "principal": {"type": "string"},
        "allow": {"type": "string"},
        "deny": {"type": "string"}
      }
    },
    "constraint": {
      "type": "object",
      "properties": {
        "type": {"enum": ["expiry", "expression"]},
        "name": {"type": "string"},
        "displayName": {"type": "string"},
        "expiryMinDuration": {"type": "string"},
        "expiryMaxDuration": {"type": "string"},
        "expression": {"type": "string"},
        "variables": {"type": "array", "items": {"$ref": "#/$defs/variable"}}
      }
    },
    "variable": {
      "type": "object",
      "properties": {
        "type": {"enum": ["string", "int", "integer", "bool", "boolean",
                           "STRING", "INT", "INTEGER", "BOOL", "BOOLEAN"]},
        "name": {"type": "string"},
        "displayName": {"type": "string"},
        "min": {"type": "integer"},
        "max": {"type": "integer"}
      }
    },
    "constraints": {
      "type": "object",
      "properties": {
        "join": {"type": "array", "items": {"$ref": "#/$defs/constraint"}},
        "approve": {"type": "array", "items": {"$ref": "#/$defs/constraint"}}
      }
    },
    "system": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"},
        "access": {"type": "array", "items": {"$ref": "#/$defs/access"}},
        "constraints": {"$ref": "#/$defs/constraints"},
        "groups": {"type": "array", "items": {"$ref": "#/$defs/group"}}
      }
    },
    "group": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"},
        "access": {"type": "array", "items": {"$ref": "#/$defs/access"}},
        "constraints": {"$ref": "#/$defs/constraints"},
        "privileges": {"type": "object"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.json", bytes.NewReader([]byte(documentSchema))); err != nil {
		panic(fmt.Sprintf("policydoc: compiling schema: %v", err))
	}
	schema, err := compiler.Compile("document.json")
	if err != nil {
		panic(fmt.Sprintf("policydoc: compiling schema: %v", err))
	}
	return schema
}

// validateShape runs the structural pre-validation over a generic
// (already YAML/JSON-decoded) document value. A non-nil error means the
// shape is unsalvageable for semantic decoding; callers fold it into a
// single FILE_INVALID_SYNTAX diagnostic.
func validateShape(generic interface{}) error {
	return compiledSchema.Validate(generic)
}
