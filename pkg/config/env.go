package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	envVarPatterns = struct {
		withDefault *regexp.Regexp
		braced      *regexp.Regexp
		simple      *regexp.Regexp
	}{
		withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
		simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
	}
)

// LoadDotEnv loads a .env file from the working directory if present.
// Real environment variables always win over .env values.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// applyEnvOverrides applies the flat, documented environment variables on
// top of whatever the YAML file provided. Each one is independently
// overridable; unset or malformed values leave the config untouched.
func applyEnvOverrides(c *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	setString("GEMINI_API_KEY", &c.LLM.APIKey)
	setString("GEMINI_MODEL", &c.LLM.Model)

	setInt64("GLOBAL_MAX_REQUESTS_PER_MINUTE", &c.RateLimits.Global.PerMinute)
	setInt64("GLOBAL_MAX_REQUESTS_PER_DAY", &c.RateLimits.Global.PerDay)
	setInt64("USER_MAX_REQUESTS_PER_MINUTE", &c.RateLimits.User.PerMinute)
	setInt64("USER_MAX_REQUESTS_PER_HOUR", &c.RateLimits.User.PerHour)
	setInt64("USER_MAX_REQUESTS_PER_DAY", &c.RateLimits.User.PerDay)

	setInt("MAX_HISTORY_LENGTH", &c.Memory.MaxHistory)
	setInt("CONTEXT_WINDOW_MINUTES", &c.Memory.ContextWindowMinutes)
	setInt("MAX_TOKENS_PER_MESSAGE", &c.Memory.MaxTokensPerMessage)

	setInt("PAGE_SIZE", &c.Pagination.PageSize)
	setInt64("MIN_RESULT_SIZE_BYTES", &c.Search.MinResultSizeBytes)
}
