package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
//
// Launch parameters (extras) are deliberately not rejected here: a bad
// combination is a run-time fault whose handling depends on handshake.mode.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateHandshake(&cfg.Handshake)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && strings.ContainsRune(cfg.File, 0) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateHandshake(cfg *HandshakeConfig) {
	interval, intervalErr := time.ParseDuration(cfg.Interval)
	if intervalErr != nil {
		v.addError("handshake.interval", cfg.Interval, "invalid duration format")
	} else if interval <= 0 {
		v.addError("handshake.interval", cfg.Interval, "must be positive")
	}

	timeout, timeoutErr := time.ParseDuration(cfg.Timeout)
	if timeoutErr != nil {
		v.addError("handshake.timeout", cfg.Timeout, "invalid duration format")
	} else if intervalErr == nil && timeout < interval {
		v.addError("handshake.timeout", cfg.Timeout, "must be >= handshake.interval")
	}

	switch cfg.Mode {
	case "legacy", "strict":
	default:
		v.addError("handshake.mode", cfg.Mode, "must be one of: legacy, strict")
	}

	if _, err := parseFileMode(cfg.MarkerMode); err != nil {
		v.addError("handshake.marker_mode", cfg.MarkerMode, err.Error())
	}

	if grace, err := time.ParseDuration(cfg.TerminateGrace); err != nil {
		v.addError("handshake.terminate_grace", cfg.TerminateGrace, "invalid duration format")
	} else if grace < 0 {
		v.addError("handshake.terminate_grace", cfg.TerminateGrace, "must not be negative")
	}
}

// parseFileMode parses an octal permission string such as "0700" or "755".
func parseFileMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0o"), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("must be an octal permission like 0700")
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("must not exceed 0777")
	}
	if mode&0o600 != 0o600 {
		return 0, fmt.Errorf("must keep owner read/write")
	}
	return uint32(mode), nil
}

// ValidateConfig validates cfg and returns the collected errors.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
