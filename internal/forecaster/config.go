package forecaster

import (
	"fmt"
	"strings"
)

// ErrorPolicy decides what happens to a vendor group whose records are
// malformed or whose forecast fails.
type ErrorPolicy string

const (
	// ErrorPolicySkip logs the problem, drops the offending records or group
	// and carries on.
	ErrorPolicySkip ErrorPolicy = "skip"
	// ErrorPolicyAbort stops the whole run at the first problem.
	ErrorPolicyAbort ErrorPolicy = "abort"
)

// ParseErrorPolicy converts a flag value into an ErrorPolicy
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ErrorPolicySkip:
		return ErrorPolicySkip, nil
	case ErrorPolicyAbort:
		return ErrorPolicyAbort, nil
	}
	return "", fmt.Errorf("unknown error policy %q (want skip or abort)", s)
}

// Config holds configuration options for the forecast orchestrator
type Config struct {
	// History window handed to the provider, counted back from the as-of date.
	LookbackDays int `mapstructure:"lookback_days"`

	// Forecast horizon used when a request has no end date.
	HorizonWeeks int `mapstructure:"horizon_weeks"`

	// Processing options
	MaxConcurrency  int `mapstructure:"max_concurrency"`
	MaxVendorGroups int `mapstructure:"max_vendor_groups"`

	// ExtendWeeks keeps events that fall outside the requested week range
	// (date shifts, add occurrences) by growing the weekly summary.
	ExtendWeeks bool `mapstructure:"extend_weeks"`

	// RollUpDaily forces one Monday event per week for daily patterns.
	RollUpDaily bool `mapstructure:"roll_up_daily"`

	ErrorPolicy ErrorPolicy `mapstructure:"error_policy"`
}

// DefaultConfig returns a default configuration for the orchestrator
func DefaultConfig() *Config {
	return &Config{
		LookbackDays:   180,
		HorizonWeeks:   13,
		MaxConcurrency: 4,
		ExtendWeeks:    true,
		ErrorPolicy:    ErrorPolicySkip,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	if c.HorizonWeeks <= 0 {
		return fmt.Errorf("horizon weeks must be positive, got %d", c.HorizonWeeks)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxVendorGroups < 0 {
		return fmt.Errorf("max vendor groups cannot be negative, got %d", c.MaxVendorGroups)
	}
	if _, err := ParseErrorPolicy(string(c.ErrorPolicy)); err != nil {
		return err
	}
	return nil
}
