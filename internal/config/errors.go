package config

import "fmt"

// ConfigError reports an invalid tunable. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// NewConfigError exposes the constructor to packages validating derived settings.
func NewConfigError(field, reason string) error {
	return newConfigError(field, reason)
}
