// Package config loads memcore configuration from the environment and
// optional YAML overlay files.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	// ProviderNone disables the model path entirely; extraction and
	// reflection fall back to their deterministic variants.
	ProviderNone = "none"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"` // "root" or "database"

	// LLM (optional; ProviderNone selects regex-only extraction and
	// rule-based reflection)
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Embeddings
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// Extraction
	ExtractionBatchSize int     `yaml:"extraction_batch_size"`
	MinImportance       float64 `yaml:"min_importance"`
	MinConfidence       float64 `yaml:"min_confidence"`
	RegexExtraction     bool    `yaml:"regex_extraction"`
	LLMExtraction       bool    `yaml:"llm_extraction"`

	// Reflection
	ReflectionMinGroup int           `yaml:"reflection_min_group"`
	ReflectionMaxAge   time.Duration `yaml:"reflection_max_age"` // 0 = no recency cutoff

	// Context assembly
	TokenBudget     int     `yaml:"token_budget"`
	ResponseReserve float64 `yaml:"response_reserve"`

	// Stream context
	StreamMaxEvents     int           `yaml:"stream_max_events"`
	StreamViewerTimeout time.Duration `yaml:"stream_viewer_timeout"`

	// Gateway
	ListenAddr string `yaml:"listen_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "memory"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "core"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("MEMCORE_LLM_PROVIDER", ProviderNone),
		LLMModel:        getEnv("MEMCORE_LLM_MODEL", "qwen2.5:7b"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		EmbeddingModel:     getEnv("MEMCORE_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		EmbeddingDimension: getEnvInt("MEMCORE_EMBEDDING_DIMENSION", 384),

		ExtractionBatchSize: getEnvInt("MEMCORE_EXTRACTION_BATCH", 5),
		MinImportance:       getEnvFloat("MEMCORE_MIN_IMPORTANCE", 0.3),
		MinConfidence:       getEnvFloat("MEMCORE_MIN_CONFIDENCE", 0.3),
		RegexExtraction:     getEnv("MEMCORE_REGEX_EXTRACTION", "true") == "true",
		LLMExtraction:       getEnv("MEMCORE_LLM_EXTRACTION", "false") == "true",

		ReflectionMinGroup: getEnvInt("MEMCORE_REFLECTION_MIN_GROUP", 3),
		ReflectionMaxAge:   getEnvDuration("MEMCORE_REFLECTION_MAX_AGE", 0),

		TokenBudget:     getEnvInt("MEMCORE_TOKEN_BUDGET", 4096),
		ResponseReserve: getEnvFloat("MEMCORE_RESPONSE_RESERVE", 0.1),

		StreamMaxEvents:     getEnvInt("MEMCORE_STREAM_MAX_EVENTS", 20),
		StreamViewerTimeout: getEnvDuration("MEMCORE_STREAM_VIEWER_TIMEOUT", 10*time.Minute),

		ListenAddr: getEnv("MEMCORE_LISTEN_ADDR", ":8710"),

		LogFile:  getEnv("MEMCORE_LOG_FILE", "/tmp/memcore.log"),
		LogLevel: parseLogLevel(getEnv("MEMCORE_LOG_LEVEL", "INFO")),
	}
}

// LoadFile overlays values from a YAML file onto cfg.
// Keys absent from the file keep their existing value.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	overlay := cfg
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return overlay, nil
}

// LLMEnabled reports whether a model provider is configured.
func (c Config) LLMEnabled() bool {
	return c.LLMProvider != "" && c.LLMProvider != ProviderNone
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
