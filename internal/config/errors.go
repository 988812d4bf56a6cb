package config

import "fmt"

// Error types of a ConfigurationError.
const (
	ErrorTypeIO    = "io"
	ErrorTypeParse = "parse"
)

// ConfigurationError reports a file that could not be read or parsed.
type ConfigurationError struct {
	FilePath  string
	ErrorType string
	Err       error
}

func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", ce.ErrorType, ce.FilePath, ce.Err)
}

func (ce *ConfigurationError) Unwrap() error { return ce.Err }
