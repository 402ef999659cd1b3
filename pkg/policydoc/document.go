package policydoc

// document mirrors the textual format of spec §6.1, decoded with
// yaml.v3's KnownFields(true) so any property not listed here surfaces
// as FILE_UNKNOWN_PROPERTY instead of being silently dropped.
type document struct {
	SchemaVersion *int            `yaml:"schemaVersion"`
	Environment   *environmentDoc `yaml:"environment"`
}

type environmentDoc struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Access      []accessDoc     `yaml:"access"`
	Constraints *constraintsDoc `yaml:"constraints,omitempty"`
	Metadata    *metadataDoc    `yaml:"metadata,omitempty"`
	Systems     []systemDoc     `yaml:"systems"`
}

type metadataDoc struct {
	Version     string `yaml:"version"`
	DefaultName string `yaml:"defaultName"`
}

type systemDoc struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Access      []accessDoc     `yaml:"access"`
	Constraints *constraintsDoc `yaml:"constraints,omitempty"`
	Groups      []groupDoc      `yaml:"groups"`
}

type groupDoc struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Access      []accessDoc     `yaml:"access"`
	Constraints *constraintsDoc `yaml:"constraints,omitempty"`
	Privileges  *privilegesDoc  `yaml:"privileges,omitempty"`
}

type privilegesDoc struct {
	IamRoleBindings []bindingDoc `yaml:"iamRoleBindings"`
}

type bindingDoc struct {
	Project     string `yaml:"project"`
	Resource    string `yaml:"resource"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
	Condition   string `yaml:"condition"`
}

type accessDoc struct {
	Principal string `yaml:"principal"`
	Allow     string `yaml:"allow"`
	Deny      string `yaml:"deny"`
}

type constraintsDoc struct {
	Join    []constraintDoc `yaml:"join"`
	Approve []constraintDoc `yaml:"approve"`
}

type constraintDoc struct {
	Type              string        `yaml:"type"`
	Name              string        `yaml:"name"`
	DisplayName       string        `yaml:"displayName"`
	ExpiryMinDuration string        `yaml:"expiryMinDuration"`
	ExpiryMaxDuration string        `yaml:"expiryMaxDuration"`
	Expression        string        `yaml:"expression"`
	Variables         []variableDoc `yaml:"variables"`
}

type variableDoc struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
	Min         int    `yaml:"min"`
	Max         int    `yaml:"max"`
}
