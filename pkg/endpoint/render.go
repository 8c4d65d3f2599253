package endpoint

import (
	"strings"
	"text/template"
)

// TemplateData is the data available to URI templates: .obj holds device
// attributes and .params the controller setup parameters.
func TemplateData(obj map[string]any, params map[string]string) map[string]any {
	if obj == nil {
		obj = map[string]any{}
	}
	if params == nil {
		params = map[string]string{}
	}
	return map[string]any{"obj": obj, "params": params}
}

// RenderURI renders a descriptor endpoint template. Unknown keys fail
// instead of rendering as empty text.
func RenderURI(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	t, err := template.New("uri").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", &TemplateError{Template: tmpl, Err: err}
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", &TemplateError{Template: tmpl, Err: err}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &TemplateError{Template: tmpl, Err: ErrEmptyURI}
	}
	return b.String(), nil
}

// BuildQuery appends the query fragments to url as "?f1&f2". One trailing
// slash is dropped first. fragments is not modified.
func BuildQuery(url string, fragments []string) string {
	if len(fragments) == 0 {
		return url
	}
	url = strings.TrimSuffix(url, "/")
	return url + "?" + strings.Join(fragments, "&")
}
