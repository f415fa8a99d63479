// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the telefind configuration surface.
//
// Configuration is loaded from a YAML file with ${VAR} / ${VAR:-default}
// environment expansion, then overridden by the flat environment variables
// documented on each field (GLOBAL_MAX_REQUESTS_PER_MINUTE and friends).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Telegram      TelegramConfig      `yaml:"telegram" json:"telegram"`
	LLM           LLMConfig           `yaml:"llm,omitempty" json:"llm,omitempty"`
	RateLimits    RateLimitConfig     `yaml:"rate_limits,omitempty" json:"rate_limits,omitempty"`
	Memory        MemoryConfig        `yaml:"memory,omitempty" json:"memory,omitempty"`
	Search        SearchConfig        `yaml:"search,omitempty" json:"search,omitempty"`
	Pagination    PaginationConfig    `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	Database      *DatabaseConfig     `yaml:"database,omitempty" json:"database,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	// Token is the bot token. Env: TELEGRAM_BOT_TOKEN.
	Token string `yaml:"token" json:"token"`

	// APIBase overrides the Bot API base URL (tests, local servers).
	APIBase string `yaml:"api_base,omitempty" json:"api_base,omitempty"`

	// PollTimeoutSeconds is the long-poll timeout passed to getUpdates.
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds,omitempty" json:"poll_timeout_seconds,omitempty"`

	// RequestTimeoutSeconds bounds a single Bot API HTTP request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds,omitempty" json:"request_timeout_seconds,omitempty"`
}

// LLMConfig configures the hosted model used by /ask.
type LLMConfig struct {
	// Enabled gates the /ask feature entirely. When off (or when APIKey is
	// missing) /ask short-circuits before any quota check or network call.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Provider is the model provider. Only "gemini" is supported.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// APIKey is the provider API key. Env: GEMINI_API_KEY.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Model is the model name.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Instruction is the system instruction sent with every request.
	Instruction string `yaml:"instruction,omitempty" json:"instruction,omitempty"`
}

// RateLimitConfig defines the global and per-user quota ceilings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Backend is the storage backend ("memory" or "sql").
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	Global GlobalLimits `yaml:"global,omitempty" json:"global,omitempty"`
	User   UserLimits   `yaml:"user,omitempty" json:"user,omitempty"`
}

// GlobalLimits caps the whole system.
type GlobalLimits struct {
	// PerMinute caps requests per sliding minute. Env: GLOBAL_MAX_REQUESTS_PER_MINUTE.
	PerMinute int64 `yaml:"per_minute,omitempty" json:"per_minute,omitempty"`

	// PerDay caps requests per daily accounting period. Env: GLOBAL_MAX_REQUESTS_PER_DAY.
	PerDay int64 `yaml:"per_day,omitempty" json:"per_day,omitempty"`
}

// UserLimits caps each user independently.
type UserLimits struct {
	// Env: USER_MAX_REQUESTS_PER_MINUTE.
	PerMinute int64 `yaml:"per_minute,omitempty" json:"per_minute,omitempty"`

	// Env: USER_MAX_REQUESTS_PER_HOUR.
	PerHour int64 `yaml:"per_hour,omitempty" json:"per_hour,omitempty"`

	// Env: USER_MAX_REQUESTS_PER_DAY.
	PerDay int64 `yaml:"per_day,omitempty" json:"per_day,omitempty"`
}

// MemoryConfig bounds per-user conversation memory.
type MemoryConfig struct {
	// MaxHistory is the number of turns retained per user. Env: MAX_HISTORY_LENGTH.
	MaxHistory int `yaml:"max_history,omitempty" json:"max_history,omitempty"`

	// ContextWindowMinutes is the idle time after which history decays.
	// Env: CONTEXT_WINDOW_MINUTES.
	ContextWindowMinutes int `yaml:"context_window_minutes,omitempty" json:"context_window_minutes,omitempty"`

	// MaxTokensPerMessage caps a stored turn; content beyond the budget is
	// truncated with a marker. Env: MAX_TOKENS_PER_MESSAGE.
	MaxTokensPerMessage int `yaml:"max_tokens_per_message,omitempty" json:"max_tokens_per_message,omitempty"`
}

// SearchConfig configures the archive search pipeline.
type SearchConfig struct {
	// MinResultSizeBytes drops items below this size. Env: MIN_RESULT_SIZE_BYTES.
	MinResultSizeBytes int64 `yaml:"min_result_size_bytes,omitempty" json:"min_result_size_bytes,omitempty"`

	// MaxResults bounds how many items a single search may collect.
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty"`
}

// PaginationConfig configures result paging.
type PaginationConfig struct {
	// PageSize is the number of items per page. Env: PAGE_SIZE.
	PageSize int `yaml:"page_size,omitempty" json:"page_size,omitempty"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty" json:"metrics_enabled,omitempty"`
	MetricsPort    int  `yaml:"metrics_port,omitempty" json:"metrics_port,omitempty"`

	TracingEnabled bool    `yaml:"tracing_enabled,omitempty" json:"tracing_enabled,omitempty"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	ServiceName    string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool { return &b }

// IsEnabled returns true if rate limiting is enabled.
// Rate limiting defaults to on; a nil Enabled means enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// IsEnabled returns true if the LLM feature is on and has a credential.
func (c *LLMConfig) IsEnabled() bool {
	if c == nil || c.Enabled == nil || !*c.Enabled {
		return false
	}
	return c.APIKey != ""
}

// ContextWindow returns the memory decay window as a duration.
func (c *MemoryConfig) ContextWindow() time.Duration {
	return time.Duration(c.ContextWindowMinutes) * time.Minute
}

// SetDefaults sets default values on the whole tree.
func (c *Config) SetDefaults() {
	c.Telegram.SetDefaults()
	c.LLM.SetDefaults()
	c.RateLimits.SetDefaults()
	c.Memory.SetDefaults()
	c.Search.SetDefaults()
	c.Pagination.SetDefaults()
	c.Observability.SetDefaults()
	if c.Database != nil {
		c.Database.SetDefaults()
	}
}

// SetDefaults sets transport defaults.
func (c *TelegramConfig) SetDefaults() {
	if c.APIBase == "" {
		c.APIBase = "https://api.telegram.org"
	}
	if c.PollTimeoutSeconds <= 0 {
		c.PollTimeoutSeconds = 30
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 65
	}
}

// SetDefaults sets LLM defaults.
func (c *LLMConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(c.APIKey != "")
	}
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
}

// SetDefaults sets the documented quota defaults.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Global.PerMinute <= 0 {
		c.Global.PerMinute = 12
	}
	if c.Global.PerDay <= 0 {
		c.Global.PerDay = 180
	}
	if c.User.PerMinute <= 0 {
		c.User.PerMinute = 5
	}
	if c.User.PerHour <= 0 {
		c.User.PerHour = 20
	}
	if c.User.PerDay <= 0 {
		c.User.PerDay = 50
	}
}

// SetDefaults sets memory defaults.
func (c *MemoryConfig) SetDefaults() {
	if c.MaxHistory <= 0 {
		c.MaxHistory = 10
	}
	if c.ContextWindowMinutes <= 0 {
		c.ContextWindowMinutes = 30
	}
	if c.MaxTokensPerMessage <= 0 {
		c.MaxTokensPerMessage = 1000
	}
}

// SetDefaults sets search defaults.
func (c *SearchConfig) SetDefaults() {
	if c.MinResultSizeBytes <= 0 {
		c.MinResultSizeBytes = 50 * 1024 * 1024
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 200
	}
}

// SetDefaults sets pagination defaults.
func (c *PaginationConfig) SetDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
}

// SetDefaults sets observability defaults.
func (c *ObservabilityConfig) SetDefaults() {
	if c.MetricsPort <= 0 {
		c.MetricsPort = 9090
	}
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = "localhost:4317"
	}
	if c.SamplingRate <= 0 {
		c.SamplingRate = 1.0
	}
	if c.ServiceName == "" {
		c.ServiceName = "telefind"
	}
}

// Validate validates the whole tree.
func (c *Config) Validate() error {
	if err := c.Telegram.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.RateLimits.Validate(); err != nil {
		return err
	}
	if c.RateLimits.Backend == "sql" && c.Database == nil {
		return fmt.Errorf("rate_limits.backend 'sql' requires a database section")
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the transport section.
func (c *TelegramConfig) Validate() error {
	if c.Token == "" && c.APIBase == "" {
		return fmt.Errorf("telegram.token is required (or TELEGRAM_BOT_TOKEN)")
	}
	return nil
}

// Validate validates the LLM section.
func (c *LLMConfig) Validate() error {
	if c.Provider != "" && c.Provider != "gemini" {
		return fmt.Errorf("invalid llm.provider '%s', must be 'gemini'", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.Temperature)
	}
	return nil
}

// Validate validates the quota section.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Backend != "" && c.Backend != "memory" && c.Backend != "sql" {
		return fmt.Errorf("invalid rate_limits.backend '%s', must be 'memory' or 'sql'", c.Backend)
	}
	for name, v := range map[string]int64{
		"rate_limits.global.per_minute": c.Global.PerMinute,
		"rate_limits.global.per_day":    c.Global.PerDay,
		"rate_limits.user.per_minute":   c.User.PerMinute,
		"rate_limits.user.per_hour":     c.User.PerHour,
		"rate_limits.user.per_day":      c.User.PerDay,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
