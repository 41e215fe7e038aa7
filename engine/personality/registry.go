package personality

import (
	"context"
	_ "embed"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

//go:embed seeds/personalities.yaml
var seedPersonalities []byte

// Personality is the full per-persona configuration. Immutable on the
// request path; the registry swaps the whole set on an explicit reload.
type Personality struct {
	ID                string      `yaml:"id"`
	Name              string      `yaml:"name"`
	Domain            core.Domain `yaml:"domain"`
	Greeting          string      `yaml:"greeting"`
	MaxChars          int         `yaml:"max_chars"`
	TimeoutSeconds    int         `yaml:"timeout_seconds"`
	MaxRetries        int         `yaml:"max_retries"`
	TemplateID        string      `yaml:"template_id"`
	Partition         string      `yaml:"partition"`
	CitationsRequired bool        `yaml:"citations_required"`

	// Derived from TimeoutSeconds at load time.
	Timeout time.Duration `yaml:"-"`
}

func (p *Personality) validate() error {
	details := map[string]any{"id": p.ID}
	switch {
	case p.ID == "" || p.Name == "" || p.Greeting == "":
		return core.NewError(nil, core.CodeConfigInvalid,
			"personality id, name, and greeting are required", details)
	case !p.Domain.IsValid():
		return core.NewError(nil, core.CodeConfigInvalid,
			"personality domain is not supported", details)
	case p.MaxChars < 350 || p.MaxChars > 500:
		return core.NewError(nil, core.CodeConfigInvalid,
			"personality max_chars must be between 350 and 500", details)
	case p.Timeout <= 0 || p.MaxRetries < 0:
		return core.NewError(nil, core.CodeConfigInvalid,
			"personality timeout and retries are malformed", details)
	case p.Partition == "":
		return core.NewError(nil, core.CodeConfigInvalid,
			"personality corpus partition is required", details)
	}
	return nil
}

// Registry holds all personalities keyed by id. Requests naming an
// unknown personality fall back to the configured default with a warning
// rather than failing.
type Registry struct {
	defaultID string

	mu  sync.RWMutex
	all map[string]*Personality
}

// NewRegistry loads the embedded seeds.
func NewRegistry(defaultID string) (*Registry, error) {
	return NewRegistryFrom(seedPersonalities, defaultID)
}

// NewRegistryFrom loads personalities from raw YAML.
func NewRegistryFrom(data []byte, defaultID string) (*Registry, error) {
	all, err := parse(data)
	if err != nil {
		return nil, err
	}
	if _, ok := all[defaultID]; !ok {
		return nil, core.NewError(nil, core.CodeConfigInvalid,
			"default personality is not in the seed set", map[string]any{"default": defaultID})
	}
	return &Registry{defaultID: defaultID, all: all}, nil
}

// Get resolves a personality id, substituting the default for unknown ids.
func (r *Registry) Get(ctx context.Context, id string) *Personality {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.all[id]; ok {
		return p
	}
	logger.FromContext(ctx).Warn("unknown personality requested, using default",
		"requested", id, "default", r.defaultID)
	return r.all[r.defaultID]
}

// Known reports whether the id is registered.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.all[id]
	return ok
}

// IDs lists the registered personality ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.all))
	for id := range r.all {
		out = append(out, id)
	}
	return out
}

// Reload re-reads the embedded seeds and swaps the set atomically.
func (r *Registry) Reload(ctx context.Context) error {
	all, err := parse(seedPersonalities)
	if err != nil {
		return err
	}
	if _, ok := all[r.defaultID]; !ok {
		return core.NewError(nil, core.CodeConfigInvalid,
			"default personality missing after reload", map[string]any{"default": r.defaultID})
	}
	r.mu.Lock()
	r.all = all
	r.mu.Unlock()
	logger.FromContext(ctx).Info("personality registry reloaded", "count", len(all))
	return nil
}

func parse(data []byte) (map[string]*Personality, error) {
	var seed struct {
		Personalities []Personality `yaml:"personalities"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid,
			"personality seed is not valid YAML", nil)
	}
	all := make(map[string]*Personality, len(seed.Personalities))
	for i := range seed.Personalities {
		p := &seed.Personalities[i]
		p.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := all[p.ID]; dup {
			return nil, core.NewError(nil, core.CodeConfigInvalid,
				"duplicate personality id in seed", map[string]any{"id": p.ID})
		}
		all[p.ID] = p
	}
	return all, nil
}
