package schema

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// WireSchema is the self-contained subset of JSON Schema carried by tool
// declarations on the wire: refs resolved inline, no $defs section.
type WireSchema struct {
	Type                 string                 `json:"type,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Enum                 []any                  `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Examples             []any                  `json:"examples,omitempty"`
	Items                *WireSchema            `json:"items,omitempty"`
	Properties           map[string]*WireSchema `json:"properties,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
	Required             []string               `json:"required,omitempty"`
}

// NewToolInput reflects a Go type into the argument schema a tool
// declaration advertises.
func NewToolInput(t reflect.Type) (*WireSchema, error) {
	sc, err := New(t)
	if err != nil {
		return nil, err
	}
	return toWireSchema(sc.Parameters), nil
}

var (
	trueVal  = true
	falseVal = false
)

func toWireSchema(in *jsonschema.Schema) *WireSchema {
	if in == nil {
		return nil
	}

	result := &WireSchema{
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Enum:        in.Enum,
		Default:     in.Default,
		Examples:    in.Examples,
		Required:    in.Required,
	}

	// Schema-valued AdditionalProperties collapses to true; closed objects
	// declare false so argument typos surface as server-side errors.
	if in.AdditionalProperties != nil {
		result.AdditionalProperties = &trueVal
	} else if in.Type == "object" {
		result.AdditionalProperties = &falseVal
	}

	if in.Properties != nil {
		result.Properties = make(map[string]*WireSchema)
		for pair := in.Properties.Oldest(); pair != nil; pair = pair.Next() {
			result.Properties[pair.Key] = toWireSchema(pair.Value)
		}
	}

	if in.Items != nil {
		result.Items = toWireSchema(in.Items)
	}

	return result
}
