// Package config handles voicerelay configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/voicerelay/config.yaml, /etc/voicerelay/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "voicerelay", "config.yaml"))
	}

	paths = append(paths, "/etc/voicerelay/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the default search paths are tried in order. Returns
// os.ErrNotExist-wrapped errors when nothing is found; callers may fall
// back to Default() since every setting has a usable default.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v): %w", DefaultSearchPaths(), os.ErrNotExist)
}

// Config holds all voicerelay configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Completion CompletionConfig `yaml:"completion"`
	Limits     LimitsConfig     `yaml:"limits"`
	History    HistoryConfig    `yaml:"history"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// CompletionConfig defines the upstream completion service settings.
type CompletionConfig struct {
	// APIKey authenticates against the completion endpoint. Supports
	// ${VAR} expansion; when empty, GROQ_API_KEY then OPENAI_API_KEY
	// from the environment are used.
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// LimitsConfig defines the abuse controls and reply pacing.
type LimitsConfig struct {
	RateWindowSec int `yaml:"rate_window_sec"` // sliding window length
	RateMax       int `yaml:"rate_max"`        // max requests per window
	CooldownMS    int `yaml:"cooldown_ms"`     // min spacing between requests
	LiveWordCap   int `yaml:"live_word_cap"`   // max cleaned words in live mode

	// Smoothing delay inserted before replying, uniformly randomized in
	// [ReplyDelayMinMS, ReplyDelayMaxMS]. Zero both to disable.
	ReplyDelayMinMS int `yaml:"reply_delay_min_ms"`
	ReplyDelayMaxMS int `yaml:"reply_delay_max_ms"`
}

// HistoryConfig defines conversation log retention.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days"`
	PruneEveryHrs int `yaml:"prune_every_hours"`
	RecentMax     int `yaml:"recent_max"` // entries returned by /history
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing, then defaults fill any unset
// fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// Default returns the default configuration. The API key is left empty;
// applyEnv or the config file must supply it before /ask can work.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 5000},
		Completion: CompletionConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "openai/gpt-oss-120b",
			MaxTokens:   150,
			Temperature: 0.7,
			TimeoutSec:  15,
		},
		Limits: LimitsConfig{
			RateWindowSec:   60,
			RateMax:         5,
			CooldownMS:      3000,
			LiveWordCap:     25,
			ReplyDelayMinMS: 200,
			ReplyDelayMaxMS: 400,
		},
		History: HistoryConfig{
			RetentionDays: 7,
			PruneEveryHrs: 24,
			RecentMax:     20,
		},
	}
}

// ApplyEnv fills the API key from the environment when the file did not
// set one. GROQ_API_KEY wins; OPENAI_API_KEY is accepted for setups
// that predate the rename.
func (c *Config) ApplyEnv() {
	if c.Completion.APIKey != "" {
		return
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.Completion.APIKey = v
		return
	}
	c.Completion.APIKey = os.Getenv("OPENAI_API_KEY")
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Listen.Port)
	}
	if c.Limits.ReplyDelayMinMS > c.Limits.ReplyDelayMaxMS {
		return fmt.Errorf("reply_delay_min_ms %d exceeds reply_delay_max_ms %d",
			c.Limits.ReplyDelayMinMS, c.Limits.ReplyDelayMaxMS)
	}
	if c.Completion.TimeoutSec <= 0 {
		return fmt.Errorf("completion timeout_sec must be positive")
	}
	return nil
}

// Timeout returns the completion timeout as a duration.
func (c *CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RateWindow returns the rate gate window as a duration.
func (c *LimitsConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSec) * time.Second
}

// Cooldown returns the cooldown gap as a duration.
func (c *LimitsConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMS) * time.Millisecond
}

// Retention returns the history retention window as a duration.
func (c *HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
