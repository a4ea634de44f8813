// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// DefaultAPIBaseURL is the assessment API used when none is configured.
const DefaultAPIBaseURL = "https://talentcueai.com"

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults, environment variables or CLI flags.
type Config struct {
	// Remote API
	APIBaseURL     string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	APIToken       string `json:"api_token,omitempty" yaml:"api_token,omitempty"`
	Retries        int    `json:"retries,omitempty" yaml:"retries,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// Local state
	StorePath       string `json:"store_path,omitempty" yaml:"store_path,omitempty"`
	StorePassphrase string `json:"store_passphrase,omitempty" yaml:"store_passphrase,omitempty"`
	DatabaseURL     string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	RecordingsDir   string `json:"recordings_dir,omitempty" yaml:"recordings_dir,omitempty"`

	// Assessment
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // quick-test or ai-interview
	Role string `json:"role,omitempty" yaml:"role,omitempty"`

	// Integrations
	GeminiAPIKey string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	RabbitMQURL  string `json:"rabbitmq_url,omitempty" yaml:"rabbitmq_url,omitempty"`
	ReportDir    string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`
	ReportBucket string `json:"report_bucket,omitempty" yaml:"report_bucket,omitempty"`
	R2AccountID  string `json:"r2_account_id,omitempty" yaml:"r2_account_id,omitempty"`

	// Server
	Port    int  `json:"port,omitempty" yaml:"port,omitempty"`
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBaseURL:     DefaultAPIBaseURL,
		Retries:        3,
		TimeoutSeconds: 60,
		StorePath:      "assessment.db",
		RecordingsDir:  "recordings",
		Port:           8080,
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return &cfg, nil
}

// FromEnv reads the configuration from environment variables. Unset
// variables leave fields empty.
func FromEnv() Config {
	cfg := Config{
		APIBaseURL:      os.Getenv("ASSESSMENT_API_BASE_URL"),
		APIToken:        os.Getenv("ASSESSMENT_API_TOKEN"),
		StorePath:       os.Getenv("STORE_PATH"),
		StorePassphrase: os.Getenv("STORE_PASSPHRASE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		ReportBucket:    os.Getenv("REPORT_BUCKET"),
		R2AccountID:     os.Getenv("R2_ACCOUNT_ID"),
	}
	if v, err := strconv.Atoi(os.Getenv("ASSESSMENT_API_RETRIES")); err == nil {
		cfg.Retries = v
	}
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		cfg.Port = v
	}
	return cfg
}

// Validate checks that the configuration has valid values.
// It doesn't check for required fields since those depend on the command.
func (c *Config) Validate() error {
	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config error: 'api_base_url' must be an http(s) URL: %s", c.APIBaseURL)
		}
	}
	if c.Retries < 0 {
		return fmt.Errorf("config error: 'retries' must be non-negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'timeout_seconds' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.Path != "" {
		if _, err := wizard.ParsePath(c.Path); err != nil {
			return fmt.Errorf("config error: 'path': %w", err)
		}
	}
	if c.ReportBucket != "" && c.ReportDir != "" {
		return fmt.Errorf("config error: 'report_bucket' and 'report_dir' are mutually exclusive")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to layer file values over the environment and built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	strs := []struct {
		dst *string
		src string
	}{
		{&result.APIBaseURL, defaults.APIBaseURL},
		{&result.APIToken, defaults.APIToken},
		{&result.StorePath, defaults.StorePath},
		{&result.StorePassphrase, defaults.StorePassphrase},
		{&result.DatabaseURL, defaults.DatabaseURL},
		{&result.RecordingsDir, defaults.RecordingsDir},
		{&result.Path, defaults.Path},
		{&result.Role, defaults.Role},
		{&result.GeminiAPIKey, defaults.GeminiAPIKey},
		{&result.RabbitMQURL, defaults.RabbitMQURL},
		{&result.ReportDir, defaults.ReportDir},
		{&result.ReportBucket, defaults.ReportBucket},
		{&result.R2AccountID, defaults.R2AccountID},
	}
	for _, s := range strs {
		if *s.dst == "" {
			*s.dst = s.src
		}
	}

	if result.Retries == 0 {
		result.Retries = defaults.Retries
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	// Bools cannot distinguish unset from false, so CLI flags always win.
	return result
}

// Resolve layers a config file (optional) over the environment and the
// built-in defaults, then validates the result.
func Resolve(path string) (Config, error) {
	env := FromEnv()
	base := env.MergeWithDefaults(Defaults())
	if path == "" {
		return base, base.Validate()
	}
	file, err := LoadConfig(path)
	if err != nil {
		return Config{}, err
	}
	merged := file.MergeWithDefaults(base)
	return merged, merged.Validate()
}
