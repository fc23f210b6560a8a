// Package config loads pipeline configuration from file and environment.
// Defaults cover local development against a Neo4j and Postgres running on
// localhost; environment variables override for deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Reranker   RerankerConfig   `mapstructure:"reranker"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// Neo4jConfig holds graph store configuration.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// PostgresConfig holds the fast-path index configuration.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	CachePath         string  `mapstructure:"cache_path"` // empty disables the disk cache
}

// ExtractionConfig holds the extraction LLM configuration.
type ExtractionConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RerankerConfig holds the cross-encoder configuration. An empty BaseURL
// disables cross-encoder reranking and falls back to the canonical sort.
type RerankerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig holds latency budgets and result limits.
type RetrievalConfig struct {
	// BudgetMS is the total retrieval budget in milliseconds.
	BudgetMS int `mapstructure:"budget_ms"`
	// GraphBudgetFraction is the share of the budget the graph path may
	// spend before the coordinator falls back.
	GraphBudgetFraction float64 `mapstructure:"graph_budget_fraction"`
	Limit               int     `mapstructure:"limit"`
	MinScore            float64 `mapstructure:"min_score"`
}

// IngestionConfig bounds the ingestion orchestrator.
type IngestionConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// EpisodeCharLimit caps episode size; oversized chunks are split.
	EpisodeCharLimit int `mapstructure:"episode_char_limit"`
}

// ResolutionConfig holds entity resolution thresholds.
type ResolutionConfig struct {
	High float64 `mapstructure:"high"`
	Low  float64 `mapstructure:"low"`
}

// TelemetryConfig holds telemetry output configuration.
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// JobsConfig bounds the background job runner.
type JobsConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// Load reads configuration: defaults first, then an optional config file
// (dealgraph.yaml in the working directory or /etc/dealgraph), then
// environment overrides.
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("dealgraph")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/dealgraph")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("postgres.dsn", "postgres://localhost:5432/dealgraph?sslmode=disable")

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.requests_per_second", 0)
	viper.SetDefault("embedding.cache_path", "")

	viper.SetDefault("extraction.model", "gpt-4o-mini")
	viper.SetDefault("extraction.temperature", 0)
	viper.SetDefault("extraction.max_tokens", 4096)

	viper.SetDefault("reranker.base_url", "")
	viper.SetDefault("reranker.model", "BAAI/bge-reranker-base")
	viper.SetDefault("reranker.timeout", "10s")

	viper.SetDefault("retrieval.budget_ms", 2000)
	viper.SetDefault("retrieval.graph_budget_fraction", 0.6)
	viper.SetDefault("retrieval.limit", 20)
	viper.SetDefault("retrieval.min_score", 0.3)

	viper.SetDefault("ingestion.max_concurrency", 4)
	viper.SetDefault("ingestion.episode_char_limit", 8000)

	viper.SetDefault("resolution.high", 0.90)
	viper.SetDefault("resolution.low", 0.60)

	viper.SetDefault("jobs.max_concurrency", 4)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", home+"/.dealgraph/telemetry")
	}
}

func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
		if config.Extraction.APIKey == "" {
			config.Extraction.APIKey = apiKey
		}
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Neo4j.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Neo4j.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Neo4j.Database = db
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		config.Postgres.DSN = dsn
	}

	if url := os.Getenv("RERANKER_URL"); url != "" {
		config.Reranker.BaseURL = url
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
