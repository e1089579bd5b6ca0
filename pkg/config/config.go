package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/codereader/codereader/internal/models"
)

// Config holds all configuration for the code-reader service
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
	Job        models.JobConfig `yaml:"job_defaults"`
}

type ServerConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig describes the document store connection. URIs are probed in
// order; the single-URI form takes priority over the labeled pair.
type StoreConfig struct {
	URI      string `yaml:"uri"`
	AtlasURI string `yaml:"atlas_uri"`
	LocalURI string `yaml:"local_uri"`
	Database string `yaml:"database"`
}

// CandidateURIs returns labeled connection candidates in priority order
func (s StoreConfig) CandidateURIs() []URICandidate {
	if s.URI != "" {
		return []URICandidate{{Label: "uri", URI: s.URI}}
	}
	var out []URICandidate
	if s.AtlasURI != "" {
		out = append(out, URICandidate{Label: "atlas", URI: s.AtlasURI})
	}
	if s.LocalURI != "" {
		out = append(out, URICandidate{Label: "local", URI: s.LocalURI})
	}
	return out
}

// URICandidate is one labeled connection string to probe
type URICandidate struct {
	Label string
	URI   string
}

type EmbeddingsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration from defaults, an optional config.yaml in the
// working directory, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat("config.yaml"); err == nil {
		data, err := os.ReadFile("config.yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.Store.CandidateURIs()) == 0 {
		return nil, fmt.Errorf("no store URI configured: set MONGODB_URI, MONGODB_ATLAS_URI, or MONGODB_LOCAL_URI")
	}
	if cfg.Embeddings.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 60,
			ShutdownSec:     15,
		},
		Store: StoreConfig{
			Database: "code_reader",
		},
		Embeddings: EmbeddingsConfig{
			Model: "text-embedding-3-small",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Job: models.DefaultJobConfig(),
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("MONGODB_ATLAS_URI"); v != "" {
		cfg.Store.AtlasURI = v
	}
	if v := os.Getenv("MONGODB_LOCAL_URI"); v != "" {
		cfg.Store.LocalURI = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
	}
	if v := os.Getenv("CODE_READER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
