package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

// Type discriminates what a template is for.
type Type string

const (
	TypeGuidance Type = "guidance"
	TypeRefusal  Type = "refusal"
)

// Template is one versioned prompt body. Domain-default templates leave
// Personality empty; a personality-specific template overrides its
// domain default at resolution time.
type Template struct {
	Type        Type              `yaml:"type"`
	Domain      core.Domain       `yaml:"domain"`
	Personality string            `yaml:"personality,omitempty"`
	Version     int               `yaml:"version"`
	Body        string            `yaml:"body"`
	Defaults    map[string]string `yaml:"defaults,omitempty"`
	Required    []string          `yaml:"required,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Variables extracts the placeholder names used by the body.
func (t *Template) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.Body, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Validate runs the load-time checks: non-empty body, balanced
// placeholders, and every required variable present in the body.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Body) == "" {
		return t.invalid("template body is empty")
	}
	if t.Type == "" || t.Domain == "" {
		return t.invalid("template type and domain are required")
	}
	if !t.Domain.IsValid() {
		return t.invalid(fmt.Sprintf("unknown domain %q", t.Domain))
	}
	if t.Version < 1 {
		return t.invalid("template version must be at least 1")
	}
	if err := checkBalanced(t.Body); err != nil {
		return t.invalid(err.Error())
	}
	vars := make(map[string]struct{})
	for _, v := range t.Variables() {
		vars[v] = struct{}{}
	}
	for _, required := range t.Required {
		if _, ok := vars[required]; !ok {
			return t.invalid(fmt.Sprintf("required variable %q missing from body", required))
		}
	}
	return nil
}

func (t *Template) invalid(reason string) error {
	return core.NewError(nil, core.CodeConfigInvalid, "invalid prompt template",
		map[string]any{
			"type":        string(t.Type),
			"domain":      string(t.Domain),
			"personality": t.Personality,
			"version":     t.Version,
			"reason":      reason,
		})
}

// checkBalanced verifies every ${ opens a placeholder that closes before
// the next one starts.
func checkBalanced(body string) error {
	for rest := body; ; {
		open := strings.Index(rest, "${")
		if open < 0 {
			return nil
		}
		rest = rest[open+2:]
		closing := strings.Index(rest, "}")
		next := strings.Index(rest, "${")
		if closing < 0 || (next >= 0 && next < closing) {
			return fmt.Errorf("unbalanced placeholder near %q", truncate(rest, 20))
		}
		rest = rest[closing+1:]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
