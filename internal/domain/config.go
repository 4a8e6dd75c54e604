package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	LLM         LLMConfig        `mapstructure:"llm"`
	Confidence  ConfidenceConfig `mapstructure:"confidence"`
	Mapper      MapperConfig     `mapstructure:"mapper"`
	Estimator   EstimatorConfig  `mapstructure:"estimator"`
	Progress    ProgressConfig   `mapstructure:"progress"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	MCP         MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second per client IP
	RateBurst      int           `mapstructure:"rate_burst"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
}

// LLMConfig represents the structured-output, embedding and answer services.
// Model identifiers are opaque strings passed through to the provider.
type LLMConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	ClassificationModel string        `mapstructure:"classification_model"`
	ContextualModel     string        `mapstructure:"contextual_model"`
	AnswerModel         string        `mapstructure:"answer_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RateLimit           int           `mapstructure:"rate_limit"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

// ConfidenceConfig represents the confidence scorer configuration
type ConfidenceConfig struct {
	Threshold               float64 `mapstructure:"threshold"`
	SemanticAnalysisEnabled bool    `mapstructure:"semantic_analysis_enabled"`
	Debug                   bool    `mapstructure:"debug"` // echo embeddings in results
}

// MapperConfig represents treatment-area mapping defaults
type MapperConfig struct {
	MinScore                int  `mapstructure:"min_score"`
	MaxResults              int  `mapstructure:"max_results"`
	RequireSubcategoryMatch bool `mapstructure:"require_subcategory_match"`
	MinKeywordLength        int  `mapstructure:"min_keyword_length"`
}

// EstimatorConfig represents time estimation configuration
type EstimatorConfig struct {
	ModelName string `mapstructure:"model_name"`
}

// ProgressConfig represents progress simulation configuration
type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CatalogConfig points at an optional catalog file overriding the embedded one
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL       string        `mapstructure:"redis_url"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PoolSize       int           `mapstructure:"pool_size"`
	PoolTimeout    time.Duration `mapstructure:"pool_timeout"`
	MemoryMaxItems int           `mapstructure:"memory_max_items"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
