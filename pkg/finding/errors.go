package finding

import "errors"

// Sentinel errors for finding validation.
// Callers should use errors.Is() to check for these.
var (
	// ErrInvalidSeverity indicates a severity outside critical..info.
	ErrInvalidSeverity = errors.New("finding: invalid severity")

	// ErrInvalidConfidence indicates a confidence outside high..low.
	ErrInvalidConfidence = errors.New("finding: invalid confidence")

	// ErrMissingCode indicates a finding without an identifier code.
	ErrMissingCode = errors.New("finding: missing code")
)
