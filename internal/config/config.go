// Package config loads and validates the on-disk engine configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the on-disk configuration for remedy-engine.
//
// NOTE: This file contains secrets (API keys). Always keep it chmod 0600.
type Config struct {
	// Model configures the LLM completion endpoint.
	Model ModelConfig `json:"model"`

	// Imaging configures the static-analysis REST service.
	Imaging ImagingConfig `json:"imaging"`

	// StorePath is the sqlite database path backing the record store.
	// If empty, a default under the user home dir is used.
	StorePath string `json:"store_path,omitempty"`

	// PromptLibraryPath optionally points at a YAML prompt-library file
	// seeded into the store at startup.
	PromptLibraryPath string `json:"prompt_library_path,omitempty"`

	// Port is the HTTP listen port.
	Port int `json:"port,omitempty"`

	// MaxWorkers caps the request worker pool. The effective pool size is
	// min(2*cpu_count, max_workers).
	MaxWorkers int `json:"max_workers,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

// ModelConfig describes one completion provider + model.
type ModelConfig struct {
	// Type is one of: "openai" | "anthropic" | "openai_compatible".
	Type string `json:"type"`

	// BaseURL overrides the provider endpoint. Required for openai_compatible.
	BaseURL string `json:"base_url,omitempty"`

	APIKey    string `json:"api_key"`
	ModelName string `json:"model_name"`

	MaxInputTokens  int `json:"max_input_tokens"`
	MaxOutputTokens int `json:"max_output_tokens"`

	// InvocationDelaySeconds is the fixed pause after every model call, and
	// the pause between corrective retries. It exists to respect external
	// rate limits; it is not adaptive.
	InvocationDelaySeconds int `json:"invocation_delay_seconds,omitempty"`
}

// ImagingConfig describes the imaging REST service.
type ImagingConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

const (
	DefaultPort       = 9081
	DefaultMaxWorkers = 8
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("invalid model config: %w", err)
	}
	if err := c.Imaging.Validate(); err != nil {
		return fmt.Errorf("invalid imaging config: %w", err)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("invalid max_workers: %d", c.MaxWorkers)
	}
	switch strings.TrimSpace(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}

func (m *ModelConfig) Validate() error {
	t := strings.TrimSpace(m.Type)
	switch t {
	case "openai", "anthropic", "openai_compatible":
	default:
		return fmt.Errorf("invalid type %q", m.Type)
	}
	baseURL := strings.TrimSpace(m.BaseURL)
	if t == "openai_compatible" && baseURL == "" {
		return errors.New("base_url is required for openai_compatible")
	}
	if baseURL != "" {
		if err := validateHTTPURL(baseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	if strings.TrimSpace(m.APIKey) == "" {
		return errors.New("missing api_key")
	}
	if strings.TrimSpace(m.ModelName) == "" {
		return errors.New("missing model_name")
	}
	if m.MaxInputTokens <= 0 {
		return errors.New("missing max_input_tokens")
	}
	if m.MaxOutputTokens <= 0 {
		return errors.New("missing max_output_tokens")
	}
	if m.InvocationDelaySeconds < 0 {
		return fmt.Errorf("invalid invocation_delay_seconds: %d", m.InvocationDelaySeconds)
	}
	return nil
}

func (m *ModelConfig) InvocationDelay() time.Duration {
	return time.Duration(m.InvocationDelaySeconds) * time.Second
}

func (i *ImagingConfig) Validate() error {
	if strings.TrimSpace(i.BaseURL) == "" {
		return errors.New("missing base_url")
	}
	if err := validateHTTPURL(strings.TrimSpace(i.BaseURL)); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if strings.TrimSpace(i.APIKey) == "" {
		return errors.New("missing api_key")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("invalid scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *Config) EffectivePort() int {
	if c == nil || c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

func (c *Config) EffectiveMaxWorkers() int {
	if c == nil || c.MaxWorkers == 0 {
		return DefaultMaxWorkers
	}
	return c.MaxWorkers
}

func (c *Config) EffectiveStorePath() string {
	if c != nil && strings.TrimSpace(c.StorePath) != "" {
		return strings.TrimSpace(c.StorePath)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "remedy-engine.sqlite"
	}
	return filepath.Join(home, ".remedy-engine", "engine.sqlite")
}

// DefaultConfigPath returns the default config path:
//
//	~/.remedy-engine/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "remedy-engine.config.json"
	}
	return filepath.Join(home, ".remedy-engine", "config.json")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
