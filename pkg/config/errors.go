package config

import "errors"

var (
	// ErrInvalidConfig wraps every rejected setting: bad YAML, an unknown
	// key, an unparsable WPSCOUT_* variable or an out-of-range value.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired marks a setting that may not be empty.
	ErrMissingRequired = errors.New("config: missing required field")

	// ErrConfigNotFound is returned when a file named with --config does
	// not exist. A missing default file is not an error.
	ErrConfigNotFound = errors.New("config: file not found")
)
