package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func EnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// EnvFloat returns the float64 value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func EnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvBool returns the boolean value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func EnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// EnvDuration returns the duration value of the named environment variable
// (Go syntax, e.g. "500ms", "168h"), or fallback if unset or not parseable.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// EnvList returns the comma-separated list value of the named environment
// variable with whitespace trimmed, or nil if the variable is unset or empty.
func EnvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
