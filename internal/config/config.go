package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// EnvPrefix is the prefix of every environment variable read by the Manager,
// e.g. MEDQA_CONFIDENCE_THRESHOLD.
const EnvPrefix = "MEDQA"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a configuration manager reading an explicit config file.
// An empty path searches the default locations for an optional config.yaml.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medqa/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Estimator.ModelName == "" {
		config.Estimator.ModelName = config.LLM.AnswerModel
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.tls_enabled", false)

	// LLM defaults
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.classification_model", "gemini-2.0-flash")
	v.SetDefault("llm.contextual_model", "gemini-2.0-flash")
	v.SetDefault("llm.answer_model", "gemini-2.0-flash")
	v.SetDefault("llm.embedding_model", "text-embedding-004")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.rate_limit", 10)
	v.SetDefault("llm.breaker_max_requests", 3)
	v.SetDefault("llm.breaker_interval", "60s")
	v.SetDefault("llm.breaker_timeout", "30s")

	// Confidence defaults
	v.SetDefault("confidence.threshold", 0.65)
	v.SetDefault("confidence.semantic_analysis_enabled", true)
	v.SetDefault("confidence.debug", false)

	// Mapper defaults
	v.SetDefault("mapper.min_score", 20)
	v.SetDefault("mapper.max_results", 10)
	v.SetDefault("mapper.require_subcategory_match", false)
	v.SetDefault("mapper.min_keyword_length", 0)

	v.SetDefault("estimator.model_name", "")
	v.SetDefault("progress.interval", "500ms")
	v.SetDefault("catalog.path", "")

	// Cache defaults; an empty redis_url keeps embeddings in memory only
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.memory_max_items", 2048)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "logs/medqa.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// MCP defaults
	v.SetDefault("mcp.server_name", "medqa-sponsor-engine")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.TLSEnabled && (config.Server.CertFile == "" || config.Server.KeyFile == "") {
		return fmt.Errorf("TLS enabled but cert_file or key_file is missing")
	}

	if config.Confidence.Threshold < 0 || config.Confidence.Threshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1]: %v", config.Confidence.Threshold)
	}

	if config.Mapper.MinScore < 0 {
		return fmt.Errorf("mapper min score must not be negative: %d", config.Mapper.MinScore)
	}
	if config.Mapper.MaxResults <= 0 {
		return fmt.Errorf("mapper max results must be positive: %d", config.Mapper.MaxResults)
	}
	if config.Mapper.MinKeywordLength < 0 {
		return fmt.Errorf("mapper min keyword length must not be negative: %d", config.Mapper.MinKeywordLength)
	}

	if config.Progress.Interval <= 0 {
		return fmt.Errorf("progress interval must be positive: %s", config.Progress.Interval)
	}

	if config.Cache.MemoryMaxItems <= 0 {
		return fmt.Errorf("cache memory_max_items must be positive: %d", config.Cache.MemoryMaxItems)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
