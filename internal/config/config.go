// Package config provides configuration loading for ideabank.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Each section maps to one component's Config struct; unset
// fields take documented defaults.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete ideabank configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	Generation    GenerationConfig    `koanf:"generation"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// SSEHeartbeat is the keep-alive interval for progress streams.
	SSEHeartbeat time.Duration `koanf:"sse_heartbeat"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PipelineConfig holds run pipeline defaults. A run request may override
// item count, dedup threshold and temperature per run.
type PipelineConfig struct {
	// ItemCount is the default number of items requested per run.
	ItemCount int `koanf:"item_count"`

	// DedupThreshold is the minimum cosine similarity at which two items
	// are considered the same.
	DedupThreshold float64 `koanf:"dedup_threshold"`

	// Temperature is the default generation temperature.
	Temperature float64 `koanf:"temperature"`

	// JudgeTemperature is the fixed low temperature for ranking calls.
	JudgeTemperature float64 `koanf:"judge_temperature"`

	// SearchConcurrency caps parallel similarity queries per run.
	SearchConcurrency int `koanf:"search_concurrency"`

	// SearchTimeout bounds each individual similarity query.
	SearchTimeout time.Duration `koanf:"search_timeout"`

	// SearchK is the number of fragments requested per seed.
	SearchK int `koanf:"search_k"`

	// SearchMinSimilarity filters fragments below this score.
	SearchMinSimilarity float64 `koanf:"search_min_similarity"`

	// MinEmbedChars skips embedding texts shorter than this.
	MinEmbedChars int `koanf:"min_embed_chars"`

	// CacheTTL is how long completed run snapshots stay queryable.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheMaxEntries bounds the run snapshot cache.
	CacheMaxEntries int `koanf:"cache_max_entries"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is "chromem" (embedded, default) or "qdrant".
	Backend string `koanf:"backend"`

	// Path is the chromem persistence directory.
	Path string `koanf:"path"`

	// Host and Port locate the Qdrant gRPC endpoint.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// VectorSize is the embedding dimensionality. Must match the embedder.
	VectorSize int `koanf:"vector_size"`
}

// EmbeddingConfig holds embedding client configuration.
type EmbeddingConfig struct {
	// Provider is "tei" (default) or "openai".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// GenerationConfig holds generation/judging client configuration.
type GenerationConfig struct {
	Model      string        `koanf:"model"`
	APIKey     string        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	// RateLimit is requests per second allowed against the provider.
	RateLimit float64 `koanf:"rate_limit"`

	// CostPer1KInput and CostPer1KOutput are USD token prices used for
	// run cost accounting.
	CostPer1KInput  float64 `koanf:"cost_per_1k_input"`
	CostPer1KOutput float64 `koanf:"cost_per_1k_output"`
}

// EventsConfig configures the optional NATS event mirror.
type EventsConfig struct {
	// NATSURL enables publishing run events to NATS when non-empty.
	NATSURL string `koanf:"nats_url"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// Default returns a configuration with every default applied and no
// file or environment input.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.SSEHeartbeat == 0 {
		cfg.Server.SSEHeartbeat = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Pipeline.ItemCount == 0 {
		cfg.Pipeline.ItemCount = 5
	}
	if cfg.Pipeline.DedupThreshold == 0 {
		cfg.Pipeline.DedupThreshold = 0.85
	}
	if cfg.Pipeline.Temperature == 0 {
		cfg.Pipeline.Temperature = 0.7
	}
	if cfg.Pipeline.JudgeTemperature == 0 {
		cfg.Pipeline.JudgeTemperature = 0.1
	}
	if cfg.Pipeline.SearchConcurrency == 0 {
		cfg.Pipeline.SearchConcurrency = 10
	}
	if cfg.Pipeline.SearchTimeout == 0 {
		cfg.Pipeline.SearchTimeout = 15 * time.Second
	}
	if cfg.Pipeline.SearchK == 0 {
		cfg.Pipeline.SearchK = 12
	}
	if cfg.Pipeline.SearchMinSimilarity == 0 {
		cfg.Pipeline.SearchMinSimilarity = 0.3
	}
	if cfg.Pipeline.MinEmbedChars == 0 {
		cfg.Pipeline.MinEmbedChars = 8
	}
	if cfg.Pipeline.CacheTTL == 0 {
		cfg.Pipeline.CacheTTL = 30 * time.Minute
	}
	if cfg.Pipeline.CacheMaxEntries == 0 {
		cfg.Pipeline.CacheMaxEntries = 100
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "~/.config/ideabank/vectorstore"
	}
	if cfg.VectorStore.Host == "" {
		cfg.VectorStore.Host = "localhost"
	}
	if cfg.VectorStore.Port == 0 {
		cfg.VectorStore.Port = 6334
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 384
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "tei"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8080"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "claude-sonnet-4-5"
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}
	if cfg.Generation.RateLimit == 0 {
		cfg.Generation.RateLimit = 2
	}
	if cfg.Generation.CostPer1KInput == 0 {
		cfg.Generation.CostPer1KInput = 0.003
	}
	if cfg.Generation.CostPer1KOutput == 0 {
		cfg.Generation.CostPer1KOutput = 0.015
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "ideabank"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
}

// Validate checks the loaded configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.DedupThreshold <= 0 || c.Pipeline.DedupThreshold >= 1 {
		return fmt.Errorf("dedup threshold must be in (0,1), got %f", c.Pipeline.DedupThreshold)
	}
	if c.Pipeline.SearchConcurrency < 1 {
		return fmt.Errorf("search concurrency must be at least 1")
	}
	switch c.VectorStore.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vectorstore backend %q", c.VectorStore.Backend)
	}
	switch c.Embedding.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	return nil
}
