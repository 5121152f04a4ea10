package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ca-srg/searchagent/internal/llm"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the instruction templates for every completion the agent
// issues. User templates use {{name}} placeholders.
type Prompts struct {
	Decompose PromptTemplate `yaml:"decompose"`
	Summarize PromptTemplate `yaml:"summarize"`
	Evaluate  PromptTemplate `yaml:"evaluate"`
	Report    PromptTemplate `yaml:"report"`
}

// PromptTemplate is a system instruction plus a user message template.
type PromptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Messages renders the template into chat messages, substituting each
// {{key}} placeholder with its value.
func (p PromptTemplate) Messages(vars map[string]string) []llm.ChatMessage {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	user := strings.NewReplacer(pairs...).Replace(p.User)

	messages := make([]llm.ChatMessage, 0, 2)
	if system := strings.TrimSpace(p.System); system != "" {
		messages = append(messages, llm.System(system))
	}
	return append(messages, llm.User(strings.TrimSpace(user)))
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	var prompts Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &prompts); err != nil {
		panic(fmt.Sprintf("agent: embedded prompts are invalid: %v", err))
	}
	return &prompts
}

// LoadPrompts reads a YAML file whose entries override the built-in
// templates. An empty path returns the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	prompts := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse prompts YAML: %w", err)
	}

	prompts.Decompose = mergeTemplate(prompts.Decompose, overrides.Decompose)
	prompts.Summarize = mergeTemplate(prompts.Summarize, overrides.Summarize)
	prompts.Evaluate = mergeTemplate(prompts.Evaluate, overrides.Evaluate)
	prompts.Report = mergeTemplate(prompts.Report, overrides.Report)

	if err := validatePrompts(prompts); err != nil {
		return nil, fmt.Errorf("invalid prompts file: %w", err)
	}
	return prompts, nil
}

func mergeTemplate(base, override PromptTemplate) PromptTemplate {
	if strings.TrimSpace(override.System) != "" {
		base.System = override.System
	}
	if strings.TrimSpace(override.User) != "" {
		base.User = override.User
	}
	return base
}

func validatePrompts(p *Prompts) error {
	required := map[string]struct {
		template     string
		placeholders []string
	}{
		"decompose.user": {p.Decompose.User, []string{"{{prompt}}"}},
		"summarize.user": {p.Summarize.User, []string{"{{snippet}}"}},
		"evaluate.user":  {p.Evaluate.User, []string{"{{results}}"}},
		"report.user":    {p.Report.User, []string{"{{results}}"}},
	}
	for name, entry := range required {
		for _, placeholder := range entry.placeholders {
			if !strings.Contains(entry.template, placeholder) {
				return fmt.Errorf("%s must contain %s", name, placeholder)
			}
		}
	}
	return nil
}
