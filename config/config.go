package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/database"
	"okx-trading-bot/internal/vault"
)

type Config struct {
	ServerConfig   ServerConfig    `json:"server"`
	DatabaseConfig database.Config `json:"database"`
	RedisConfig    cache.Config    `json:"redis"`
	VaultConfig    vault.Config    `json:"vault"`
	AuthConfig     auth.Config     `json:"auth"`
	OKXConfig      OKXConfig       `json:"okx"`
	AIConfig       AIConfig        `json:"ai"`
	TradingConfig  TradingConfig   `json:"trading"`
	LoggingConfig  LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// OKXConfig holds OKX exchange configuration
type OKXConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
	BaseURL    string `json:"base_url"`
	MockMode   bool   `json:"mock_mode"` // Use simulated data when the OKX API is unavailable
}

// AIConfig holds the LLM analyzer configuration
type AIConfig struct {
	Enabled        bool    `json:"enabled"`
	LLMProvider    string  `json:"llm_provider"` // "claude", "openai", or "deepseek"
	ClaudeAPIKey   string  `json:"claude_api_key"`
	OpenAIAPIKey   string  `json:"openai_api_key"`
	DeepSeekAPIKey string  `json:"deepseek_api_key"`
	LLMModel       string  `json:"llm_model"` // e.g. "deepseek-chat"
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
}

// TradingConfig holds the simulated trading parameters
type TradingConfig struct {
	Symbol            string   `json:"symbol"`
	Leverage          float64  `json:"leverage"`
	FeeRate           float64  `json:"fee_rate"`
	MinOrderSize      float64  `json:"min_order_size"`      // base-asset units
	MaxOrderSize      float64  `json:"max_order_size"`      // base-asset units
	SizeOverrideUSDT  *float64 `json:"size_override_usdt"`  // fixed USDT notional per entry, converted at open
	AIFrequencySecs   int      `json:"ai_frequency_secs"`   // seconds between analysis cycles
	InitialEquity     float64  `json:"initial_equity"`      // simulated starting equity in USDT
	MinConfidence     string   `json:"min_confidence"`      // "low", "medium" or "high"
	TrendFilterOn     bool     `json:"trend_filter_on"`
	NormalizeTriggers bool     `json:"normalize_triggers"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// Load reads config.json when present, then applies environment overrides
// and defaults.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.VaultConfig.Enabled = v == "true"
	}
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.OKXConfig.APIKey = getEnvOrDefault("OKX_API_KEY", cfg.OKXConfig.APIKey)
	cfg.OKXConfig.SecretKey = getEnvOrDefault("OKX_SECRET_KEY", cfg.OKXConfig.SecretKey)
	cfg.OKXConfig.Passphrase = getEnvOrDefault("OKX_PASSPHRASE", cfg.OKXConfig.Passphrase)
	cfg.OKXConfig.BaseURL = getEnvOrDefault("OKX_BASE_URL", cfg.OKXConfig.BaseURL)
	if v := os.Getenv("MOCK_MODE"); v != "" {
		cfg.OKXConfig.MockMode = v == "true"
	}

	cfg.AIConfig.LLMProvider = getEnvOrDefault("LLM_PROVIDER", cfg.AIConfig.LLMProvider)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.LLMModel = getEnvOrDefault("LLM_MODEL", cfg.AIConfig.LLMModel)

	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)
	cfg.TradingConfig.Leverage = getEnvFloatOrDefault("TRADING_LEVERAGE", cfg.TradingConfig.Leverage)
	cfg.TradingConfig.AIFrequencySecs = getEnvIntOrDefault("AI_FREQUENCY_SECS", cfg.TradingConfig.AIFrequencySecs)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
}

func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.User == "" {
		cfg.DatabaseConfig.User = "postgres"
	}
	if cfg.DatabaseConfig.Database == "" {
		cfg.DatabaseConfig.Database = "okx_trading_bot"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.AIConfig.LLMProvider == "" {
		cfg.AIConfig.LLMProvider = "deepseek"
	}
	if cfg.AIConfig.LLMModel == "" {
		cfg.AIConfig.LLMModel = "deepseek-chat"
	}
	if cfg.AIConfig.MaxTokens == 0 {
		cfg.AIConfig.MaxTokens = 2000
	}
	if cfg.AIConfig.Temperature == 0 {
		cfg.AIConfig.Temperature = 1.0
	}
	if cfg.TradingConfig.Symbol == "" {
		cfg.TradingConfig.Symbol = "ETH-USDT-SWAP"
	}
	if cfg.TradingConfig.Leverage == 0 {
		cfg.TradingConfig.Leverage = 50
	}
	if cfg.TradingConfig.MinOrderSize == 0 {
		cfg.TradingConfig.MinOrderSize = 0.0001
	}
	if cfg.TradingConfig.MaxOrderSize == 0 {
		cfg.TradingConfig.MaxOrderSize = 10.0
	}
	if cfg.TradingConfig.AIFrequencySecs == 0 {
		cfg.TradingConfig.AIFrequencySecs = 300
	}
	if cfg.TradingConfig.InitialEquity == 0 {
		cfg.TradingConfig.InitialEquity = 10000
	}
	if cfg.TradingConfig.MinConfidence == "" {
		cfg.TradingConfig.MinConfidence = "medium"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
}

// Save writes the config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
