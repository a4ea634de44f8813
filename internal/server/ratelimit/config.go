package ratelimit

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern; "*" matches one segment, a trailing "/" matches a prefix
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		IdleTTL:         time.Hour,
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
// Calls that fan out to generation or evaluation on the assessment API are the strictest.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Remote generation, evaluation and reports
		{Path: "/sessions/*/sections/*/generate", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/sessions/*/sections/*/submit", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/sessions/*/report", Method: http.MethodPost, Limit: 20, Window: time.Hour, Burst: 3},
		{Path: "/sessions/*/resume", Method: http.MethodPost, Limit: 20, Window: time.Hour, Burst: 3},
		{Path: "/sessions/*/interview/start", Method: http.MethodPost, Limit: 20, Window: time.Hour, Burst: 3},

		// Interview traffic
		{Path: "/sessions/*/interview/reply", Method: http.MethodPost, Limit: 120, Window: time.Hour, Burst: 10},
		{Path: "/sessions/*/interview/frame", Method: http.MethodPost, Limit: 60, Window: time.Minute, Burst: 10},

		// Session writes
		{Path: "/sessions", Method: http.MethodPost, Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/sessions/", Method: http.MethodPost, Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/sessions/", Method: http.MethodPut, Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/sessions/", Method: http.MethodDelete, Limit: 60, Window: time.Minute, Burst: 10},
	}
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
