package hosterrors

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "op timed out" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func urlErr(err error) error {
	return &url.Error{Op: "Get", URL: "https://example.com/", Err: err}
}

func opErr(err error) error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", err)}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"context deadline", urlErr(context.DeadlineExceeded), KindTimeout},
		{"net timeout", urlErr(timeoutErr{}), KindTimeout},
		{"dns not found", urlErr(&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}), KindDNS},
		{"dns timeout", urlErr(&net.DNSError{Err: "timeout", Name: "slow.example", IsTimeout: true}), KindTimeout},
		{"refused", urlErr(opErr(syscall.ECONNREFUSED)), KindConnectionRefused},
		{"host unreachable", urlErr(opErr(syscall.EHOSTUNREACH)), KindUnreachable},
		{"net unreachable", urlErr(opErr(syscall.ENETUNREACH)), KindUnreachable},
		{"unknown authority", urlErr(x509.UnknownAuthorityError{}), KindTLS},
		{"hostname mismatch", urlErr(x509.HostnameError{Certificate: &x509.Certificate{}, Host: "example.com"}), KindTLS},
		{"flattened refused", errors.New("proxyconnect tcp: dial tcp 10.0.0.1:8080: connect: connection refused"), KindConnectionRefused},
		{"flattened dns", errors.New("lookup example.invalid: no such host"), KindDNS},
		{"flattened tls", fmt.Errorf("wrap: %w", errors.New("tls: handshake failure")), KindTLS},
		{"other", errors.New("malformed HTTP response"), KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindHintsAreDistinct(t *testing.T) {
	t.Parallel()

	seen := map[string]Kind{}
	for _, k := range Kinds {
		h := k.Hint()
		assert.NotEmpty(t, h, k)
		if prev, dup := seen[h]; dup {
			t.Errorf("%s and %s share a hint", prev, k)
		}
		seen[h] = k
	}
}

func TestIsNetworkError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsNetworkError(nil))
	assert.False(t, IsNetworkError(context.Canceled))
	assert.False(t, IsNetworkError(errors.New("invalid header")))
	assert.True(t, IsNetworkError(urlErr(opErr(syscall.ECONNREFUSED))))
	assert.True(t, IsNetworkError(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsNetworkError(urlErr(context.DeadlineExceeded)))
}
