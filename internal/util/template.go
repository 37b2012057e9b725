package util

import (
	"strings"
	"sync"
	"text/template"
)

var (
	promptFuncs = template.FuncMap{
		"join": func(sep string, items []string) string { return strings.Join(items, sep) },
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}
			return v
		},
	}

	// Prompts are package constants, so parsed templates are kept for reuse.
	promptCache sync.Map // map[string]*template.Template
)

// RenderTemplate renders a prompt template against data. Prompts are plain
// text and are never HTML escaped. Missing keys render as empty values.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parsePrompt(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func parsePrompt(text string) (*template.Template, error) {
	if cached, ok := promptCache.Load(text); ok {
		return cached.(*template.Template), nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(promptFuncs).Parse(text)
	if err != nil {
		return nil, err
	}

	promptCache.Store(text, tmpl)

	return tmpl, nil
}
