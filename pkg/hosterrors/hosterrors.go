// Package hosterrors classifies transport failures against a target host
// into the small set of kinds a user can act on.
//
// Usage:
//
//	resp, err := client.Do(req)
//	if err != nil {
//	    switch hosterrors.Classify(err) {
//	    case hosterrors.KindDNS:
//	        // check the hostname
//	    case hosterrors.KindTimeout:
//	        // raise --timeout or lower --rate
//	    }
//	}
package hosterrors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind is a user-facing transport failure category.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindDNS               Kind = "dns"
	KindConnectionRefused Kind = "connection_refused"
	KindUnreachable       Kind = "unreachable"
	KindTLS               Kind = "tls"
	KindGeneric           Kind = "generic"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindTimeout, KindDNS, KindConnectionRefused, KindUnreachable, KindTLS, KindGeneric}

func (k Kind) String() string { return string(k) }

// Hint returns a short suggestion for resolving failures of this kind.
func (k Kind) Hint() string {
	switch k {
	case KindTimeout:
		return "the target did not respond in time; check connectivity or raise the timeout"
	case KindDNS:
		return "the hostname could not be resolved; check the target spelling"
	case KindConnectionRefused:
		return "the target refused the connection; check the port and that the server is running"
	case KindUnreachable:
		return "no route to the target; check network access, VPN or firewall rules"
	case KindTLS:
		return "TLS handshake failed; the certificate may be invalid (use --insecure to skip verification)"
	default:
		return "the request failed before a response was received"
	}
}

// Classify maps a transport error onto a Kind. It returns "" for nil.
// Typed errors are inspected first; the message indicators catch errors
// that were flattened to strings by proxies or wrappers.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout && !dnsErr.IsNotFound {
			return KindTimeout
		}
		return KindDNS
	}

	if isTLSError(err) {
		return KindTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return classifyMessage(err.Error())
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		alertErr    tls.AlertError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &alertErr)
}

var messageIndicators = []struct {
	kind       Kind
	indicators []string
}{
	{KindTimeout, []string{"i/o timeout", "timeout awaiting", "deadline exceeded", "tls handshake timeout", "client.timeout"}},
	{KindDNS, []string{"no such host", "server misbehaving", "name resolution"}},
	{KindTLS, []string{"x509:", "tls:", "certificate"}},
	{KindConnectionRefused, []string{"connection refused", "actively refused"}},
	{KindUnreachable, []string{"no route to host", "network is unreachable", "host is down", "host unreachable"}},
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, group := range messageIndicators {
		for _, indicator := range group.indicators {
			if strings.Contains(msg, indicator) {
				return group.kind
			}
		}
	}
	return KindGeneric
}

// IsNetworkError reports whether err looks like a failure to reach the host,
// as opposed to a generic error raised before or after the exchange.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	switch Classify(err) {
	case KindTimeout, KindDNS, KindConnectionRefused, KindUnreachable, KindTLS:
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.HasSuffix(msg, "eof")
}
