package prompts

import (
	"github.com/cockroachdb/errors"
)

// PromptValue is the interface that all prompt values must implement.
type PromptValue interface {
	String() string
}

// StringPromptValue is a prompt value that is a string.
type StringPromptValue string

func (v StringPromptValue) String() string {
	return string(v)
}

// PromptTemplate is a reusable template producing a string prompt.
type PromptTemplate struct {
	// Template is the prompt template.
	Template string
	// InputVariables is a list of variable names the template expects.
	InputVariables []string
	// TemplateFormat is the format of the template.
	TemplateFormat TemplateFormat
	// PartialVariables maps variable names to values or to zero-argument
	// functions returning values, resolved at render time.
	PartialVariables map[string]any
}

// NewPromptTemplate returns a go-template prompt template.
func NewPromptTemplate(tmpl string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       tmpl,
		InputVariables: inputVars,
		TemplateFormat: TemplateFormatGoTemplate,
	}
}

// Format renders the template with the given values merged over the
// resolved partial variables.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolved, err := resolvePartialValues(p.PartialVariables, values)
	if err != nil {
		return "", err
	}
	return RenderTemplate(p.Template, p.TemplateFormat, resolved)
}

// FormatPrompt renders the template and returns the result as a prompt value.
func (p PromptTemplate) FormatPrompt(values map[string]any) (PromptValue, error) {
	prompt, err := p.Format(values)
	if err != nil {
		return nil, err
	}
	return StringPromptValue(prompt), nil
}

// GetInputVariables returns the input variables the prompt expects.
func (p PromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

func resolvePartialValues(partials map[string]any, values map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(partials)+len(values))
	for name, value := range partials {
		switch val := value.(type) {
		case string:
			resolved[name] = val
		case func() string:
			resolved[name] = val()
		default:
			return nil, errors.Errorf("unsupported partial variable type for %q", name)
		}
	}
	for name, value := range values {
		resolved[name] = value
	}
	return resolved, nil
}
