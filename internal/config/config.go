// Package config loads pipeline settings from an optional YAML file,
// layered over defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scribe/internal/gate"
)

// Config is the full settings surface of a run.
type Config struct {
	OllamaURL    string     `yaml:"ollama_url"`
	EmbedModel   string     `yaml:"embed_model"`
	ChatModel    string     `yaml:"chat_model"`
	EmbeddingDim int        `yaml:"embedding_dim"`
	Workers      int        `yaml:"workers"`
	MaxIters     int        `yaml:"max_iters"`
	Gate         GateConfig `yaml:"gate"`
}

// GateConfig holds the five acceptance thresholds.
type GateConfig struct {
	MinSupportRate  float64 `yaml:"min_support_rate"`
	MinCoverage     float64 `yaml:"min_coverage"`
	MinCitationRate float64 `yaml:"min_citation_rate"`
	MaxHighIssues   int     `yaml:"max_high_issues"`
	MaxMediumIssues int     `yaml:"max_medium_issues"`
}

// Default returns the built-in settings.
func Default() Config {
	g := gate.Default()
	return Config{
		OllamaURL:    "http://localhost:11434",
		EmbedModel:   "nomic-embed-text",
		ChatModel:    "qwen3:8b",
		EmbeddingDim: 768,
		Workers:      0, // one per CPU
		MaxIters:     3,
		Gate: GateConfig{
			MinSupportRate:  g.MinSupportRate,
			MinCoverage:     g.MinCoverage,
			MinCitationRate: g.MinCitationRate,
			MaxHighIssues:   g.MaxHighIssues,
			MaxMediumIssues: g.MaxMediumIssues,
		},
	}
}

// Load reads a YAML config over the defaults. An empty path, or a
// missing file at the default location, yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// GateThresholds converts the config section to a gate.
func (c Config) GateThresholds() gate.Gate {
	return gate.Gate{
		MinSupportRate:  c.Gate.MinSupportRate,
		MinCoverage:     c.Gate.MinCoverage,
		MinCitationRate: c.Gate.MinCitationRate,
		MaxHighIssues:   c.Gate.MaxHighIssues,
		MaxMediumIssues: c.Gate.MaxMediumIssues,
	}
}
