package prompt

import (
	_ "embed"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

//go:embed seeds/templates.yaml
var seedTemplates []byte

type templateKey struct {
	typ         Type
	domain      core.Domain
	personality string
}

// Renderer resolves and renders versioned prompt templates. Templates
// are validated at load time so a broken seed fails startup, not a
// request.
type Renderer struct {
	latest   map[templateKey]*Template
	versions map[templateKey]map[int]*Template
}

// NewRenderer loads the embedded seed templates.
func NewRenderer() (*Renderer, error) {
	return NewRendererFrom(seedTemplates)
}

// NewRendererFrom loads templates from raw YAML.
func NewRendererFrom(data []byte) (*Renderer, error) {
	var seed struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "prompt seed is not valid YAML", nil)
	}
	r := &Renderer{
		latest:   make(map[templateKey]*Template),
		versions: make(map[templateKey]map[int]*Template),
	}
	for i := range seed.Templates {
		if err := r.Add(&seed.Templates[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates and registers one template.
func (r *Renderer) Add(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	key := templateKey{typ: t.Type, domain: t.Domain, personality: t.Personality}
	if r.versions[key] == nil {
		r.versions[key] = make(map[int]*Template)
	}
	r.versions[key][t.Version] = t
	if current, ok := r.latest[key]; !ok || t.Version > current.Version {
		r.latest[key] = t
	}
	return nil
}

// Resolve returns the latest template for the request: the personality
// override when one exists, otherwise the domain default.
func (r *Renderer) Resolve(typ Type, domain core.Domain, personality string) (*Template, error) {
	if personality != "" {
		if t, ok := r.latest[templateKey{typ: typ, domain: domain, personality: personality}]; ok {
			return t, nil
		}
	}
	if t, ok := r.latest[templateKey{typ: typ, domain: domain}]; ok {
		return t, nil
	}
	return nil, core.NewError(nil, core.CodeNotFound, "no prompt template for request",
		map[string]any{"type": string(typ), "domain": string(domain), "personality": personality})
}

// Version returns one specific template version.
func (r *Renderer) Version(typ Type, domain core.Domain, personality string, version int) (*Template, error) {
	key := templateKey{typ: typ, domain: domain, personality: personality}
	if t, ok := r.versions[key][version]; ok {
		return t, nil
	}
	return nil, core.NewError(nil, core.CodeNotFound, "prompt template version not found",
		map[string]any{"type": string(typ), "domain": string(domain), "version": version})
}

// Render substitutes ${var} placeholders. Missing variables fall back to
// the template's defaults, then to the empty string.
func (r *Renderer) Render(t *Template, vars map[string]string) string {
	return os.Expand(t.Body, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		if v, ok := t.Defaults[name]; ok {
			return v
		}
		return ""
	})
}
