package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Loader resolves configuration from defaults and the process environment.
type Loader struct {
	koanf     *koanf.Koanf
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		koanf:     koanf.New("."),
		validator: validator.New(),
	}
}

// Load builds the full configuration: struct defaults first, then
// environment overrides resolved through the `env:` struct tags.
func (l *Loader) Load(_ context.Context) (*Config, error) {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	envToPath := envMappings()
	if err := l.koanf.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envToPath[key]; ok {
				return path, value
			}
			// Unmapped variables are ignored rather than guessed at.
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.ApplyMode()
	if err := l.validator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var (
	mappingsOnce   sync.Once
	cachedMappings map[string]string
)

// envMappings extracts ENV_VAR -> koanf path pairs from the Config struct tags.
func envMappings() map[string]string {
	mappingsOnce.Do(func() {
		cachedMappings = make(map[string]string)
		collectMappings(reflect.TypeOf(Config{}), "", cachedMappings)
	})
	return cachedMappings
}

func collectMappings(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		koanfTag := field.Tag.Get("koanf")
		if koanfTag == "" || koanfTag == "-" {
			continue
		}
		path := koanfTag
		if prefix != "" {
			path = prefix + "." + koanfTag
		}
		ft := field.Type
		if ft.Kind() == reflect.Struct && ft.String() != "time.Duration" && !isLeafType(ft) {
			collectMappings(ft, path, out)
			continue
		}
		if envVar := field.Tag.Get("env"); envVar != "" {
			out[strings.ToUpper(envVar)] = path
		}
	}
}

func isLeafType(t reflect.Type) bool {
	// Structs that unmarshal from a single scalar value.
	return t.String() == "config.SensitiveString"
}
