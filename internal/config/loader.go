package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the engine's environment variables,
// e.g. CASCADE_SCALE_MAX or CASCADE_PENALTY.CAP.
const envPrefix = "CASCADE_"

// Load builds a Config by layering sources, lowest precedence first:
//  1. defaults (Default())
//  2. YAML file at path, when path is non-empty
//  3. environment variables with the CASCADE_ prefix
//
// The merged configuration is validated before being returned; a config that
// fails its internal consistency checks never reaches the pipeline.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// CASCADE_SCALE_MAX -> scale_max, CASCADE_PENALTY.WEIGHT -> penalty.weight.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
