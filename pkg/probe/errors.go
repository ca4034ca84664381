package probe

import (
	"errors"
	"fmt"

	"github.com/waftester/wpscout/pkg/hosterrors"
)

// TransportError is a probe that never produced a response: timeout, DNS
// failure, refused or unreachable connection, TLS failure.
type TransportError struct {
	Method string
	URL    string
	Kind   hosterrors.Kind
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("probe: %s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// KindOf returns the transport kind carried by err, or "" if none.
func KindOf(err error) hosterrors.Kind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
