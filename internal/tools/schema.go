package tools

import (
	"github.com/google/jsonschema-go/jsonschema"

	"komoridev/deepshack/internal/api"
)

// ParamType is the declared type of a capability parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeAny     ParamType = "any"
)

// Param declares one capability parameter.
type Param struct {
	Type        ParamType
	Description string
	Required    bool
}

// Schema is a capability's declared interface. Capabilities declare their
// parameters explicitly as a table; nothing is inferred from signatures or
// doc comments.
type Schema struct {
	Name        string
	Description string
	Params      map[string]Param
}

// Spec converts the declared schema into the wire tool specification sent
// with a completion request.
func (s Schema) Spec() api.ToolSpec {
	properties := make(map[string]*jsonschema.Schema, len(s.Params))
	var required []string

	for name, param := range s.Params {
		prop := &jsonschema.Schema{Description: param.Description}
		if param.Type != TypeAny {
			prop.Type = string(param.Type)
		}
		properties[name] = prop
		if param.Required {
			required = append(required, name)
		}
	}

	return api.ToolSpec{
		Type: "function",
		Function: api.FunctionSpec{
			Name:        s.Name,
			Description: s.Description,
			Parameters: &jsonschema.Schema{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		},
	}
}
