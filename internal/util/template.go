package util

import (
	"bytes"
	"strings"
	"text/template"
)

// seedFuncs are available to seed prompts next to .Slot, .Model, .OtherModel
// and .MaxTurns.
var seedFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// RenderTemplate renders a seed prompt with text/template. Text without
// template markers is returned unchanged. On a parse or execution error the
// error is returned together with the raw text.
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("seed").Funcs(seedFuncs).Parse(text)
	if err != nil {
		return text, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return text, err
	}
	return buf.String(), nil
}
