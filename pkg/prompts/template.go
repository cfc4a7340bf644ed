// Package prompts renders prompt templates in several formats and provides
// reusable prompt-template values.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/pkg/prompts/internal/fstring"
	"github.com/nikolalohinski/gonja"
)

// ErrInvalidTemplateFormat is returned when the template format is not supported.
var ErrInvalidTemplateFormat = errors.New("invalid template format")

// TemplateFormat is the format of the template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is the format for go-template.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is the format for jinja2.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
	// TemplateFormatFString is the format for f-string.
	TemplateFormatFString TemplateFormat = "f-string"
)

// interpolator is the function that interpolates the given template with the given values.
type interpolator func(tmpl string, values map[string]any) (string, error)

var formatterMapping = map[TemplateFormat]interpolator{
	TemplateFormatGoTemplate: interpolatorGoTemplate,
	TemplateFormatJinja2:     interpolatorJinja2,
	TemplateFormatFString:    fstring.Format,
}

// interpolatorGoTemplate renders with text/template, sprig functions
// included. Referencing a missing variable is an error, not "<no value>".
func interpolatorGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", errors.WithMessage(err, "failed to parse template")
	}
	var sb strings.Builder
	if err := parsed.Execute(&sb, values); err != nil {
		return "", errors.WithMessage(err, "failed to execute template")
	}
	return sb.String(), nil
}

func interpolatorJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.WithMessage(err, "failed to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		return "", errors.WithMessage(err, "failed to execute template")
	}
	return out, nil
}

// RenderTemplate renders the template with the given values.
func RenderTemplate(tmpl string, tmplFormat TemplateFormat, values map[string]any) (string, error) {
	formatter, ok := formatterMapping[tmplFormat]
	if !ok {
		return "", errors.WithMessagef(ErrInvalidTemplateFormat, "%s", tmplFormat)
	}
	return formatter(tmpl, values)
}

// CheckValidTemplate checks that the format is supported and that the
// template renders with dummy values for the declared input variables.
func CheckValidTemplate(tmpl string, tmplFormat TemplateFormat, inputVariables []string) error {
	if _, ok := formatterMapping[tmplFormat]; !ok {
		return errors.WithMessagef(ErrInvalidTemplateFormat, "%s", tmplFormat)
	}

	dummyInputs := make(map[string]any, len(inputVariables))
	for _, v := range inputVariables {
		dummyInputs[v] = "foo"
	}
	_, err := RenderTemplate(tmpl, tmplFormat, dummyInputs)
	return err
}
