package config

import "errors"

var (
	// ErrInvalidConfig reports a configuration that failed Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig reports a file or environment source that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
