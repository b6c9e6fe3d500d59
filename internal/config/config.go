package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for promptc
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Proposer  ProposerConfig  `json:"proposer"`
	Optimizer OptimizerConfig `json:"optimizer"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
}

// LLMConfig holds the generation model configuration (OpenAI-compatible API)
type LLMConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// ProposerConfig holds the instruction proposal model configuration. When the
// URL is empty the generation model is reused for proposals.
type ProposerConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// OptimizerConfig holds the default search parameters for compilation runs
type OptimizerConfig struct {
	Strategy           string  `json:"strategy"`            // "bootstrap", "rewrite" or "joint"
	MaxTrials          int     `json:"max_trials"`          // Total candidate evaluations per run
	MaxDemonstrations  int     `json:"max_demonstrations"`  // Few-shot cap per module
	ValidationFraction float64 `json:"validation_fraction"` // Tail share of the dataset held out
	MinibatchSize      int     `json:"minibatch_size"`      // Validation examples scored per trial
	PatienceWindow     int     `json:"patience_window"`     // Trials without improvement before joint search halts
	Concurrency        int     `json:"concurrency"`         // Parallel example evaluations
	RetryLimit         int     `json:"retry_limit"`         // Retries per collaborator call
}

// RateLimitConfig bounds outbound model traffic
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url"`
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			URL:         "http://localhost:8000/v1",
			APIKey:      "",
			Model:       "Qwen/Qwen3-8B-AWQ",
			Temperature: 0.2,
		},
		Proposer: ProposerConfig{
			URL:         "",
			APIKey:      "",
			Model:       "",
			Temperature: 0.9,
		},
		Optimizer: OptimizerConfig{
			Strategy:           "bootstrap",
			MaxTrials:          20,
			MaxDemonstrations:  4,
			ValidationFraction: 0.3,
			MinibatchSize:      25,
			PatienceWindow:     5,
			Concurrency:        4,
			RetryLimit:         2,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Database: DatabaseConfig{
			PostgresURL: "",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	// Load LLM configuration from environment
	envString("PROMPTC_LLM_URL", &cfg.LLM.URL)
	envString("PROMPTC_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("PROMPTC_LLM_MODEL", &cfg.LLM.Model)
	envFloat("PROMPTC_LLM_TEMPERATURE", &cfg.LLM.Temperature)

	// Load proposer configuration from environment
	envString("PROMPTC_PROPOSER_URL", &cfg.Proposer.URL)
	envString("PROMPTC_PROPOSER_API_KEY", &cfg.Proposer.APIKey)
	envString("PROMPTC_PROPOSER_MODEL", &cfg.Proposer.Model)
	envFloat("PROMPTC_PROPOSER_TEMPERATURE", &cfg.Proposer.Temperature)

	// Load optimizer configuration from environment
	envString("PROMPTC_STRATEGY", &cfg.Optimizer.Strategy)
	envInt("PROMPTC_MAX_TRIALS", &cfg.Optimizer.MaxTrials)
	envInt("PROMPTC_MAX_DEMONSTRATIONS", &cfg.Optimizer.MaxDemonstrations)
	envFloat("PROMPTC_VALIDATION_FRACTION", &cfg.Optimizer.ValidationFraction)
	envInt("PROMPTC_MINIBATCH_SIZE", &cfg.Optimizer.MinibatchSize)
	envInt("PROMPTC_PATIENCE_WINDOW", &cfg.Optimizer.PatienceWindow)
	envInt("PROMPTC_CONCURRENCY", &cfg.Optimizer.Concurrency)
	envInt("PROMPTC_RETRY_LIMIT", &cfg.Optimizer.RetryLimit)

	// Load rate limit configuration from environment
	envFloat("PROMPTC_RATE_RPS", &cfg.RateLimit.RequestsPerSecond)
	envInt("PROMPTC_RATE_BURST", &cfg.RateLimit.Burst)

	// Load database configuration from environment
	envString("PROMPTC_POSTGRES_URL", &cfg.Database.PostgresURL)

	// Load server configuration from environment
	envString("PROMPTC_SERVER_HOST", &cfg.Server.Host)
	envInt("PROMPTC_SERVER_PORT", &cfg.Server.Port)
	envStringSlice("PROMPTC_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProposerConfigured returns true if a dedicated proposal model is configured
func (c *Config) IsProposerConfigured() bool {
	return c.Proposer.URL != "" && c.Proposer.Model != ""
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// LLM validation
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}

	// Proposer validation (optional but validate if set)
	if c.Proposer.URL != "" && !isValidURL(c.Proposer.URL) {
		errs = append(errs, "proposer URL must be a valid URL")
	}
	if c.Proposer.Temperature < 0 || c.Proposer.Temperature > 2 {
		errs = append(errs, "proposer temperature must be between 0 and 2")
	}

	// Optimizer validation
	switch c.Optimizer.Strategy {
	case "bootstrap", "rewrite", "joint":
	default:
		errs = append(errs, "optimizer strategy must be 'bootstrap', 'rewrite' or 'joint'")
	}
	if c.Optimizer.MaxTrials < 1 {
		errs = append(errs, "optimizer max_trials must be at least 1")
	}
	if c.Optimizer.MaxDemonstrations < 0 {
		errs = append(errs, "optimizer max_demonstrations cannot be negative")
	}
	if c.Optimizer.ValidationFraction <= 0 || c.Optimizer.ValidationFraction >= 1 {
		errs = append(errs, "optimizer validation_fraction must be between 0 and 1 exclusive")
	}
	if c.Optimizer.MinibatchSize < 1 {
		errs = append(errs, "optimizer minibatch_size must be at least 1")
	}
	if c.Optimizer.PatienceWindow < 1 {
		errs = append(errs, "optimizer patience_window must be at least 1")
	}
	if c.Optimizer.Concurrency < 1 {
		errs = append(errs, "optimizer concurrency must be at least 1")
	}
	if c.Optimizer.RetryLimit < 0 {
		errs = append(errs, "optimizer retry_limit cannot be negative")
	}

	// Rate limit validation
	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, "rate limit requests_per_second must be positive")
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, "rate limit burst must be at least 1")
	}

	// Database validation (optional but validate if set)
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("PROMPTC_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	// Check ~/.config/promptc/config.json first
	configDir := filepath.Join(homeDir, ".config", "promptc")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	// Check ~/.promptc/config.json
	altPath := filepath.Join(homeDir, ".promptc", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
