package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError names the offending key.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate returns every problem found in c.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("server.read_timeout", "must not be negative")
	}
	if c.Server.WriteTimeout < 0 {
		add("server.write_timeout", "must not be negative")
	}

	if c.Database.Path == "" {
		add("database.path", "database path is required")
	}

	if math.IsNaN(c.Scoring.SZLimit) || c.Scoring.SZLimit < 0 {
		add("scoring.sz_limit", "must be a non-negative number, got %v", c.Scoring.SZLimit)
	}
	if math.IsNaN(c.Scoring.NZLimit) || c.Scoring.NZLimit < 0 {
		add("scoring.nz_limit", "must be a non-negative number, got %v", c.Scoring.NZLimit)
	}
	if c.Scoring.Window <= 0 {
		add("scoring.window", "window must be positive, got %s", c.Scoring.Window)
	}
	if c.Scoring.LedgerCap < 1 {
		add("scoring.ledger_cap", "ledger cap must be at least 1, got %d", c.Scoring.LedgerCap)
	}
	if c.Scoring.PruneTimeout <= 0 {
		add("scoring.prune_timeout", "prune timeout must be positive, got %s", c.Scoring.PruneTimeout)
	}
	if c.Scoring.MaxSkew <= 0 {
		add("scoring.max_skew", "max skew must be positive, got %s", c.Scoring.MaxSkew)
	}

	if c.Cache.Grace <= 0 {
		add("cache.grace", "grace must be positive, got %s", c.Cache.Grace)
	}
	if c.Cache.Margin < 0 {
		add("cache.margin", "margin must not be negative, got %s", c.Cache.Margin)
	}
	if c.Cache.ShadowEnabled && c.Cache.ShadowSize < 1 {
		add("cache.shadow_size", "shadow size must be at least 1 when enabled, got %d", c.Cache.ShadowSize)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level %q (expected debug, info, warn or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", "invalid format %q (expected json or console)", c.Logging.Format)
	}

	return errs
}

// Err folds the result of Validate into a single error, nil when valid.
func (c *Config) Err() error {
	errs := c.Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
