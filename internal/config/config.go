// Package config provides configuration management for PeerMatch.
// Settings come from an optional YAML file overridden by environment
// variables with the PEERMATCH_ prefix, with sensible defaults for every
// option.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the PeerMatch application.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Vector   VectorConfig   `yaml:"vector"`
	Wikidata WikidataConfig `yaml:"wikidata"`
	Matching MatchingConfig `yaml:"matching"`
}

// StorageConfig contains identity-store configuration.
type StorageConfig struct {
	// DBPath is the path of the SQLite identity store (default: ./data/gleif.db).
	DBPath string `yaml:"db_path"`
}

// VectorConfig contains similarity-index and embedding configuration.
type VectorConfig struct {
	// DSN is the Postgres connection string for the pgvector index.
	DSN string `yaml:"dsn"`

	// Collection is the logical collection name (default: companies).
	Collection string `yaml:"collection"`

	// EmbeddingURL is the base URL of the embedding service (default: http://localhost:11434).
	EmbeddingURL string `yaml:"embedding_url"`

	// EmbeddingModel is the embedding model identifier (default: nomic-embed-text).
	EmbeddingModel string `yaml:"embedding_model"`
}

// WikidataConfig contains knowledge-base client configuration.
type WikidataConfig struct {
	// Endpoint is the SPARQL endpoint URL (default: the public Wikidata endpoint).
	Endpoint string `yaml:"endpoint"`

	// UserAgent identifies this client to the endpoint.
	UserAgent string `yaml:"user_agent"`

	// BatchSize is the number of LEIs per batched query (default: 30).
	BatchSize int `yaml:"batch_size"`
}

// MatchingConfig contains matching defaults.
type MatchingConfig struct {
	// TopK is the default number of neighbors returned by search (default: 5).
	TopK int `yaml:"top_k"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing config file is fine; env vars and defaults apply.
		case err != nil:
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: "./data/gleif.db",
		},
		Vector: VectorConfig{
			DSN:            "postgres://localhost:5432/peermatch?sslmode=disable",
			Collection:     "companies",
			EmbeddingURL:   "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
		},
		Wikidata: WikidataConfig{
			Endpoint:  "https://query.wikidata.org/sparql",
			UserAgent: "PeerMatch/1.0 (https://github.com/fintel/peermatch)",
			BatchSize: 30,
		},
		Matching: MatchingConfig{
			TopK: 5,
		},
	}
}

// applyEnv overrides configuration fields from PEERMATCH_* variables.
func applyEnv(cfg *Config) {
	cfg.Storage.DBPath = getEnv("PEERMATCH_DB_PATH", cfg.Storage.DBPath)
	cfg.Vector.DSN = getEnv("PEERMATCH_VECTOR_DSN", cfg.Vector.DSN)
	cfg.Vector.Collection = getEnv("PEERMATCH_VECTOR_COLLECTION", cfg.Vector.Collection)
	cfg.Vector.EmbeddingURL = getEnv("PEERMATCH_EMBEDDING_URL", cfg.Vector.EmbeddingURL)
	cfg.Vector.EmbeddingModel = getEnv("PEERMATCH_EMBEDDING_MODEL", cfg.Vector.EmbeddingModel)
	cfg.Wikidata.Endpoint = getEnv("PEERMATCH_WIKIDATA_ENDPOINT", cfg.Wikidata.Endpoint)
	cfg.Wikidata.UserAgent = getEnv("PEERMATCH_WIKIDATA_USER_AGENT", cfg.Wikidata.UserAgent)
	cfg.Wikidata.BatchSize = getEnvInt("PEERMATCH_WIKIDATA_BATCH_SIZE", cfg.Wikidata.BatchSize)
	cfg.Matching.TopK = getEnvInt("PEERMATCH_TOP_K", cfg.Matching.TopK)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default wins.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
