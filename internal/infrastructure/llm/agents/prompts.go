package agents

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type Prompts struct {
	Expander  PromptPair `yaml:"expander"`
	Generator PromptPair `yaml:"generator"`
	Verifier  PromptPair `yaml:"verifier"`
}

// PromptPair holds a system prompt and a text/template for the user turn.
type PromptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// LoadPrompts returns the built-in prompts, overridden field by field by the YAML file at path.
func LoadPrompts(path string) (Prompts, error) {
	var prompts Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("parse default prompts: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	if err := prompts.validate(); err != nil {
		return Prompts{}, err
	}
	return prompts, nil
}

func (p Prompts) validate() error {
	for name, tmpl := range map[string]string{
		"expander.user": p.Expander.User,
		"verifier.user": p.Verifier.User,
	} {
		if _, err := template.New(name).Parse(tmpl); err != nil {
			return fmt.Errorf("prompt %s: %w", name, err)
		}
	}
	return nil
}

func render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse %s prompt: %w", name, err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return sb.String(), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
