// Package config provides YAML configuration parsing for the eventwatch
// command.
//
// This package enables running a watcher as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	owner: lulf
//	repo: go-vex
//	token: ${GITHUB_TOKEN}
//	kind: PushEvent
//	default_interval: 300s
//	fail_on_status: [401, 403]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minRequestTimeout is the smallest request_timeout a config may set.
const minRequestTimeout = 1 * time.Second

// Config is the root configuration structure for the eventwatch command.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Owner and Repo name the repository to watch. Both are required.
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// Token is the API credential.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Token string `yaml:"token"`

	// TokenFile is read for the credential when Token is empty.
	// Surrounding whitespace in the file is ignored.
	TokenFile string `yaml:"token_file"`

	// Kind is the event type to report. Defaults to "PushEvent".
	Kind string `yaml:"kind"`

	// Identity selects the deduplication key: "push" (push id), "event"
	// (event id) or "default" (push for PushEvent, event otherwise).
	Identity string `yaml:"identity"`

	// BaseURL is the API origin. Defaults to https://api.github.com.
	// Supports environment variable substitution.
	BaseURL string `yaml:"base_url"`

	UserAgent  string `yaml:"user_agent"`
	APIVersion string `yaml:"api_version"`

	// DefaultInterval is the cadence until the server sends a hint.
	// Accepts duration strings like "300s", "5m".
	DefaultInterval Duration `yaml:"default_interval"`

	// MinInterval is the floor applied to server hints.
	MinInterval Duration `yaml:"min_interval"`

	// RequestTimeout bounds each request. Must be at least 1s if set.
	RequestTimeout Duration `yaml:"request_timeout"`

	// SeenCacheSize is how many event identities are remembered.
	SeenCacheSize int `yaml:"seen_cache_size"`

	// HistorySize is how many matched events the HTTP API retains.
	HistorySize int `yaml:"history_size"`

	// Port serves the event API when non-zero.
	Port int `yaml:"port"`

	// FailOnStatus lists response statuses that stop the watcher.
	FailOnStatus []int `yaml:"fail_on_status"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// A relative token_file is resolved against the working directory.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in token and base_url. Kind defaults
// to PushEvent; other zero values are left for the library defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Kind == "" {
		cfg.Kind = "PushEvent"
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables, resolves the token and
// validates the config. Errors name the offending field.
func (c *Config) expandAndValidate() error {
	c.Owner = strings.TrimSpace(c.Owner)
	c.Repo = strings.TrimSpace(c.Repo)
	if c.Owner == "" {
		return errors.New("owner is required")
	}
	if c.Repo == "" {
		return errors.New("repo is required")
	}
	if strings.Contains(c.Owner, "/") {
		return fmt.Errorf("owner: must not contain '/', got %q", c.Owner)
	}
	if strings.Contains(c.Repo, "/") {
		return fmt.Errorf("repo: must not contain '/', got %q", c.Repo)
	}

	if err := c.resolveToken(); err != nil {
		return err
	}

	if c.BaseURL != "" {
		expanded, err := expandEnvVars(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		c.BaseURL = expanded

		parsedURL, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("base_url: scheme must be http or https, got %q", parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return errors.New("base_url: host is required")
		}
	}

	if strings.TrimSpace(c.Kind) == "" {
		return errors.New("kind: cannot be blank")
	}

	switch c.Identity {
	case "", "default", "push", "event":
	default:
		return fmt.Errorf("identity: unknown value %q (expected 'default', 'push', or 'event')", c.Identity)
	}

	if c.DefaultInterval < 0 {
		return fmt.Errorf("default_interval: cannot be negative, got %s", c.DefaultInterval.Duration())
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min_interval: cannot be negative, got %s", c.MinInterval.Duration())
	}
	if c.DefaultInterval != 0 && c.MinInterval != 0 && c.DefaultInterval < c.MinInterval {
		return fmt.Errorf("default_interval: must be at least min_interval (%s), got %s",
			c.MinInterval.Duration(), c.DefaultInterval.Duration())
	}
	if c.RequestTimeout != 0 && c.RequestTimeout.Duration() < minRequestTimeout {
		return fmt.Errorf("request_timeout: must be at least %s if specified, got %s",
			minRequestTimeout, c.RequestTimeout.Duration())
	}

	if c.SeenCacheSize < 0 {
		return fmt.Errorf("seen_cache_size: cannot be negative, got %d", c.SeenCacheSize)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size: cannot be negative, got %d", c.HistorySize)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port: must be between 0 and 65535, got %d", c.Port)
	}

	for i, code := range c.FailOnStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("fail_on_status[%d]: %d is not an HTTP status", i, code)
		}
		if code == 200 || code == 304 {
			return fmt.Errorf("fail_on_status[%d]: %d cannot be treated as a failure", i, code)
		}
	}

	return nil
}

// resolveToken expands the inline token or reads token_file.
func (c *Config) resolveToken() error {
	if c.Token != "" && c.TokenFile != "" {
		return errors.New("token and token_file are mutually exclusive")
	}

	if c.Token != "" {
		expanded, err := expandEnvVars(c.Token)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		c.Token = strings.TrimSpace(expanded)
		return nil
	}

	if c.TokenFile != "" {
		data, err := os.ReadFile(c.TokenFile)
		if err != nil {
			return fmt.Errorf("token_file: %w", err)
		}
		c.Token = strings.TrimSpace(string(data))
		if c.Token == "" {
			return fmt.Errorf("token_file: %s is empty", c.TokenFile)
		}
	}
	return nil
}

// Resource returns "owner/repo".
func (c *Config) Resource() string {
	return c.Owner + "/" + c.Repo
}
