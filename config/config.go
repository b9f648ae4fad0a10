package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultAPIURL            = "https://api.github.com"
	DefaultAuthPrecedence    = "pat,pat_file,app"
	DefaultTokenExpiryMargin = 60 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultMaxAttempts       = 3
	DefaultRateLimitMaxWait  = 60 * time.Second
)

var knownStrategies = map[string]bool{
	"pat":      true,
	"pat_file": true,
	"app":      true,
}

// VaultConfig holds the Vault connection used for vault:// private key references.
type VaultConfig struct {
	Address  string `mapstructure:"address"`
	Token    string `mapstructure:"token"`
	RoleID   string `mapstructure:"role_id"`
	SecretID string `mapstructure:"secret_id"`
}

// Config holds the GitHub access layer configuration.
type Config struct {
	Owner string `mapstructure:"owner"`
	Repo  string `mapstructure:"repo"`

	PAT     string `mapstructure:"pat"`
	PATFile string `mapstructure:"pat_file"`

	AppID          string `mapstructure:"app_id"`
	InstallationID string `mapstructure:"installation_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PrivateKey     string `mapstructure:"private_key"`

	APIURL         string `mapstructure:"api_url"`
	AuthPrecedence string `mapstructure:"auth_precedence"`

	TokenExpiryMargin time.Duration `mapstructure:"token_expiry_margin"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RateLimitMaxWait  time.Duration `mapstructure:"rate_limit_max_wait"`

	LogLevel string      `mapstructure:"log_level"`
	Vault    VaultConfig `mapstructure:"vault"`
}

// LoadConfig loads the configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	v := viper.New()

	bindings := map[string]string{
		"owner":               "GITHUB_OWNER",
		"repo":                "GITHUB_REPO",
		"pat":                 "GITHUB_PAT",
		"pat_file":            "GITHUB_PAT_FILE",
		"app_id":              "GITHUB_APP_ID",
		"installation_id":     "GITHUB_INSTALLATION_ID",
		"private_key_path":    "GITHUB_PRIVATE_KEY_PATH",
		"private_key":         "GITHUB_PRIVATE_KEY",
		"api_url":             "GITHUB_API_URL",
		"auth_precedence":     "GITHUB_AUTH_PRECEDENCE",
		"token_expiry_margin": "GITHUB_TOKEN_EXPIRY_MARGIN",
		"request_timeout":     "GITHUB_REQUEST_TIMEOUT",
		"max_attempts":        "GITHUB_MAX_ATTEMPTS",
		"rate_limit_max_wait": "GITHUB_RATE_LIMIT_MAX_WAIT",
		"log_level":           "LOG_LEVEL",
		"vault.address":       "VAULT_ADDR",
		"vault.token":         "VAULT_TOKEN",
		"vault.role_id":       "VAULT_ROLE_ID",
		"vault.secret_id":     "VAULT_SECRET_ID",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("auth_precedence", DefaultAuthPrecedence)
	v.SetDefault("token_expiry_margin", DefaultTokenExpiryMargin)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("max_attempts", DefaultMaxAttempts)
	v.SetDefault("rate_limit_max_wait", DefaultRateLimitMaxWait)
	v.SetDefault("log_level", "info")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Precedence returns the configured strategy order.
func (c *Config) Precedence() []string {
	return splitList(c.AuthPrecedence)
}

// validateConfig checks transport settings. Credential completeness is left to strategy selection.
func validateConfig(config *Config) error {
	u, err := url.Parse(config.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("GITHUB_API_URL must be an absolute http(s) URL, got %q", config.APIURL)
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")

	if config.MaxAttempts < 1 {
		return fmt.Errorf("GITHUB_MAX_ATTEMPTS must be at least 1, got %d", config.MaxAttempts)
	}
	if config.TokenExpiryMargin < 0 {
		return fmt.Errorf("GITHUB_TOKEN_EXPIRY_MARGIN must not be negative")
	}
	if config.RequestTimeout < 0 {
		return fmt.Errorf("GITHUB_REQUEST_TIMEOUT must not be negative")
	}
	if config.RateLimitMaxWait < 0 {
		return fmt.Errorf("GITHUB_RATE_LIMIT_MAX_WAIT must not be negative")
	}

	precedence := config.Precedence()
	if len(precedence) == 0 {
		return fmt.Errorf("GITHUB_AUTH_PRECEDENCE must name at least one strategy")
	}
	for _, name := range precedence {
		if !knownStrategies[name] {
			return fmt.Errorf("GITHUB_AUTH_PRECEDENCE: unknown strategy %q (want pat, pat_file or app)", name)
		}
	}

	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
