// Copyright (c) 2025 Northbound System
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration for every codewatch subcommand.
// It is assembled from environment variables (optionally loaded from a
// .env file first), following the same viper.AutomaticEnv + mapstructure
// pattern the drone client uses, generalized to an env-only surface since
// the analysis core has no interactive config file to maintain.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`

	DBPath string `mapstructure:"db_path"`

	ObjectStorage ObjectStorageConfig `mapstructure:"object_storage"`
	VectorIndex   VectorIndexConfig   `mapstructure:"vector_index"`
	Redis         RedisConfig         `mapstructure:"redis"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Embeddings    EmbeddingsConfig    `mapstructure:"embeddings"`

	// SecretKey is the symmetric secret key. Load fails when it is empty;
	// no other package reads it.
	SecretKey string `mapstructure:"secret_key"`

	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
	HeartbeatStaleSeconds    int `mapstructure:"heartbeat_stale_seconds"`
	GCIntervalSeconds        int `mapstructure:"gc_interval_seconds"`
	WorkerCount              int `mapstructure:"worker_count"`
}

// ObjectStorageConfig points at the Azure Blob (or Azurite-compatible)
// endpoint backing the content cache.
type ObjectStorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccountName     string `mapstructure:"account_name"`
	AccountKey      string `mapstructure:"account_key"`
	Container       string `mapstructure:"container"`
	Secure          bool   `mapstructure:"secure"`
}

// VectorIndexConfig points at the Qdrant collection used for code chunk
// embeddings.
type VectorIndexConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
}

// EmbeddingsConfig selects and configures the embeddings.Embedder the
// Embeddings Worker chunks against. Type is one of "openai", "ollama",
// "mock"; Type defaults to "mock" so a fresh checkout runs end to end
// without a live embedding provider configured.
type EmbeddingsConfig struct {
	Type      string `mapstructure:"type"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension string `mapstructure:"dimension"`
}

// ToMap adapts EmbeddingsConfig to the map[string]string embeddings.NewEmbedder expects.
func (c EmbeddingsConfig) ToMap() map[string]string {
	return map[string]string{
		"api_key":   c.APIKey,
		"model":     c.Model,
		"base_url":  c.BaseURL,
		"dimension": c.Dimension,
	}
}

// RedisConfig mirrors config.NewRedisClient's env surface so both the
// job-queue and rate-limiter adapters share one connection config.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// LLMModelEntry names one model in the multi-model broad-scan registry.
type LLMModelEntry struct {
	ID       string `mapstructure:"id"`
	Provider string `mapstructure:"provider"` // "anthropic" | "generic_http"
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"` // only used by generic_http
	APIKey   string `mapstructure:"api_key"`
}

// LLMConfig configures the model registry the AI Scan Worker dispatches to.
type LLMConfig struct {
	Models              []LLMModelEntry `mapstructure:"models"`
	InvestigatorModelID string          `mapstructure:"investigator_model_id"`
	RequestTimeoutSeconds int           `mapstructure:"request_timeout_seconds"`
}

// RateLimitConfig configures the fixed-window limiter applied at dispatch.
// PerScope overrides MaxRequests for a named scope (e.g. "trigger",
// "read"); a scope absent from the map falls back to MaxRequests.
type RateLimitConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	WindowSeconds int            `mapstructure:"window_seconds"`
	MaxRequests   int            `mapstructure:"max_requests"`
	PerScope      map[string]int `mapstructure:"per_scope"`
}

// Load reads .env (if present, ignored if missing) then builds a Config
// from CODEWATCH_-prefixed environment variables, applying the defaults
// below for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_path", "./codewatch.db")
	v.SetDefault("object_storage.endpoint", "http://127.0.0.1:10000/devstoreaccount1")
	v.SetDefault("object_storage.container", "repo-content-cache")
	v.SetDefault("object_storage.secure", false)
	v.SetDefault("vector_index.host", "127.0.0.1")
	v.SetDefault("vector_index.port", 6334)
	v.SetDefault("vector_index.collection", "codewatch_chunks")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("llm.request_timeout_seconds", 60)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("heartbeat_interval_seconds", 15)
	v.SetDefault("heartbeat_stale_seconds", 120)
	v.SetDefault("gc_interval_seconds", 300)
	v.SetDefault("worker_count", 4)
	v.SetDefault("embeddings.type", "mock")
	v.SetDefault("embeddings.dimension", "1536")

	// Flat env vars for the handful of fields that don't nest well through
	// viper's automatic env binding (slices of structs).
	bindFlat(v, "object_storage.endpoint", "OBJECT_STORAGE_ENDPOINT")
	bindFlat(v, "object_storage.account_name", "OBJECT_STORAGE_ACCOUNT_NAME")
	bindFlat(v, "object_storage.account_key", "OBJECT_STORAGE_ACCOUNT_KEY")
	bindFlat(v, "object_storage.container", "OBJECT_STORAGE_CONTAINER")
	bindFlat(v, "object_storage.secure", "OBJECT_STORAGE_SECURE")
	bindFlat(v, "vector_index.host", "VECTOR_INDEX_HOST")
	bindFlat(v, "vector_index.port", "VECTOR_INDEX_PORT")
	bindFlat(v, "vector_index.collection", "VECTOR_INDEX_COLLECTION")
	bindFlat(v, "vector_index.api_key", "VECTOR_INDEX_API_KEY")
	bindFlat(v, "redis.addr", "REDIS_ADDR")
	bindFlat(v, "redis.db", "REDIS_DB")
	bindFlat(v, "redis.password", "REDIS_PASSWORD")
	bindFlat(v, "llm.investigator_model_id", "LLM_INVESTIGATOR_MODEL_ID")
	bindFlat(v, "secret_key", "SECRET_KEY")
	bindFlat(v, "db_path", "DB_PATH")
	bindFlat(v, "http_addr", "HTTP_ADDR")
	bindFlat(v, "worker_count", "WORKER_COUNT")
	bindFlat(v, "embeddings.type", "EMBEDDINGS_TYPE")
	bindFlat(v, "embeddings.api_key", "EMBEDDINGS_API_KEY")
	bindFlat(v, "embeddings.model", "EMBEDDINGS_MODEL")
	bindFlat(v, "embeddings.base_url", "EMBEDDINGS_BASE_URL")
	bindFlat(v, "embeddings.dimension", "EMBEDDINGS_DIMENSION")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LLM.Models = loadModelRegistry()

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("CODEWATCH_SECRET_KEY is required")
	}

	return &cfg, nil
}

func bindFlat(v *viper.Viper, key, envSuffix string) {
	_ = v.BindEnv(key, "CODEWATCH_"+envSuffix)
}

// loadModelRegistry reads CODEWATCH_LLM_MODEL_<N>_* variables until it hits
// a gap, since viper has no native support for binding a slice-of-structs
// from flat env vars.
func loadModelRegistry() []LLMModelEntry {
	var models []LLMModelEntry
	for i := 0; ; i++ {
		id := os.Getenv(fmt.Sprintf("CODEWATCH_LLM_MODEL_%d_ID", i))
		if id == "" {
			break
		}
		models = append(models, LLMModelEntry{
			ID:       id,
			Provider: os.Getenv(fmt.Sprintf("CODEWATCH_LLM_MODEL_%d_PROVIDER", i)),
			Model:    os.Getenv(fmt.Sprintf("CODEWATCH_LLM_MODEL_%d_MODEL", i)),
			Endpoint: os.Getenv(fmt.Sprintf("CODEWATCH_LLM_MODEL_%d_ENDPOINT", i)),
			APIKey:   os.Getenv(fmt.Sprintf("CODEWATCH_LLM_MODEL_%d_API_KEY", i)),
		})
	}
	return models
}
