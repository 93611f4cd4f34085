package testmux

import (
	"errors"
	"fmt"
)

// ConfigError is a fatal startup error: missing or invalid configuration,
// detected before any worker events are accepted. It maps to exit code 255.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(err error) *ConfigError {
	return &ConfigError{Err: err}
}

// IsConfigError checks if the error is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return err != nil && errors.As(err, &cfgErr)
}

// RuntimeError reports an operational failure after startup, such as a wire
// stream that ends while workers are still outstanding. It shares exit code
// 255 with ConfigError; test failures are not errors and surface through the
// failure-count exit contract instead.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// NewRuntimeError wraps err as a RuntimeError.
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var rtErr *RuntimeError
	return err != nil && errors.As(err, &rtErr)
}
