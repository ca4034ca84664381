package httpclient

// Supported proxy schemes:
//   - http://, https:// - CONNECT proxy
//   - socks5:// - local DNS resolution
//   - socks5h:// - DNS resolved by the proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

var defaultProxyPorts = map[string]string{
	"http":    "8080",
	"https":   "8443",
	"socks5":  "1080",
	"socks5h": "1080",
}

// ProxyConfig holds a parsed proxy URL.
type ProxyConfig struct {
	URL         *url.URL
	Scheme      string
	Host        string
	Port        string
	Username    string
	Password    string
	IsSOCKS     bool
	IsDNSRemote bool
}

// ParseProxyURL validates and parses a proxy URL. It returns nil, nil for an
// empty string. A missing scheme defaults to http.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	defPort, ok := defaultProxyPorts[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q (want http, https, socks5, socks5h)", ErrInvalidProxy, scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}
	port := parsed.Port()
	if port == "" {
		port = defPort
		parsed.Host = net.JoinHostPort(host, port)
	}

	pc := &ProxyConfig{
		URL:         parsed,
		Scheme:      scheme,
		Host:        host,
		Port:        port,
		IsSOCKS:     strings.HasPrefix(scheme, "socks"),
		IsDNSRemote: scheme == "socks5h",
	}
	if parsed.User != nil {
		pc.Username = parsed.User.Username()
		pc.Password, _ = parsed.User.Password()
	}
	return pc, nil
}

// Address returns the proxy address in host:port form.
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// Redacted returns the proxy URL with any password masked, for logging.
func (p *ProxyConfig) Redacted() string {
	if p == nil || p.URL == nil {
		return ""
	}
	return p.URL.Redacted()
}

// ContextDialer is a dialer that honours context cancellation.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TimeoutDialer bounds a proxy dial by timeout and the caller's context.
type TimeoutDialer struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

// DialContext implements ContextDialer.
func (t *TimeoutDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if cd, ok := t.dialer.(proxy.ContextDialer); ok {
		conn, err := cd.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProxyConnect, err)
		}
		return conn, nil
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.dialer.Dial(network, address)
		select {
		case ch <- result{conn, err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProxyConnect, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProxyConnect, r.err)
		}
		return r.conn, nil
	}
}

// CreateSOCKSDialer creates a dialer that tunnels through a SOCKS proxy.
func CreateSOCKSDialer(pc *ProxyConfig, timeout time.Duration) (ContextDialer, error) {
	if pc == nil || !pc.IsSOCKS {
		return nil, fmt.Errorf("%w: not a SOCKS proxy", ErrInvalidProxy)
	}

	scheme := pc.Scheme
	if scheme == "socks5h" {
		// x/net/proxy passes hostnames through, so the proxy resolves them.
		scheme = "socks5"
	}
	u := &url.URL{Scheme: scheme, Host: pc.Address()}
	if pc.Username != "" {
		u.User = url.UserPassword(pc.Username, pc.Password)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	return &TimeoutDialer{dialer: d, timeout: timeout}, nil
}
