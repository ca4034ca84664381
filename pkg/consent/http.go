package consent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/waftester/wpscout/pkg/probe"
)

// HTTPURLs returns the URLs probed for the token file, in order. A domain
// with an explicit port is served over plain HTTP only.
func (m *Manager) HTTPURLs(domain, token string) []string {
	path := m.cfg.HTTPVerificationPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	schemes := []string{"https", "http"}
	if strings.Contains(domain, ":") {
		schemes = []string{"http"}
	}
	urls := make([]string, 0, len(schemes))
	for _, scheme := range schemes {
		urls = append(urls, fmt.Sprintf("%s://%s%s%s.txt", scheme, domain, path, token))
	}
	return urls
}

// verifyHTTP returns the URL serving the token. Redirects are not followed:
// the file must live on the domain itself.
func (m *Manager) verifyHTTP(ctx context.Context, domain, token string) (string, error) {
	var lastErr error
	for _, url := range m.HTTPURLs(domain, token) {
		m.logger.DebugContext(ctx, "checking token file", slog.String("url", url))

		resp, err := m.client.Get(ctx, url, probe.NoRedirects())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			if strings.TrimSpace(resp.Text()) == token {
				return url, nil
			}
			return "", fmt.Errorf("%w at %s", ErrTokenMismatch, url)
		case http.StatusNotFound:
			lastErr = nil
		default:
			m.logger.WarnContext(ctx, "unexpected status for token file",
				slog.String("url", url), slog.Int("status", resp.StatusCode))
			lastErr = fmt.Errorf("HTTP %d at %s", resp.StatusCode, url)
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: token file for %s not accessible: %w", ErrNotPublished, domain, lastErr)
	}
	return "", fmt.Errorf("%w: no token file at %s%s%s.txt", ErrNotPublished, domain,
		m.cfg.HTTPVerificationPath, token)
}
