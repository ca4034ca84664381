package consent

import (
	"fmt"
	"strings"
)

// Instructions describes both publication methods for tok.
func (m *Manager) Instructions(tok Token) string {
	var b strings.Builder
	host := baseDomain(tok.Domain)
	urls := m.HTTPURLs(tok.Domain, tok.Value)

	fmt.Fprintf(&b, "Domain:  %s\n", host)
	fmt.Fprintf(&b, "Token:   %s\n", tok.Value)
	fmt.Fprintf(&b, "Expires: %s (%d hours)\n\n", tok.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
		m.cfg.TokenExpiryHours)

	b.WriteString("Method 1: HTTP file (recommended)\n")
	b.WriteString("  1. Create a text file containing exactly:\n")
	fmt.Fprintf(&b, "       %s\n", tok.Value)
	b.WriteString("  2. Serve it at:\n")
	fmt.Fprintf(&b, "       %s\n", urls[0])
	b.WriteString("  3. Run:\n")
	fmt.Fprintf(&b, "       wpscout consent verify --method http --domain %s --token %s\n\n", tok.Domain, tok.Value)

	b.WriteString("Method 2: DNS TXT record\n")
	b.WriteString("  1. Add a TXT record:\n")
	fmt.Fprintf(&b, "       Host:  %s\n", host)
	fmt.Fprintf(&b, "       Value: %s%s\n", m.cfg.DNSTXTPrefix, tok.Value)
	b.WriteString("  2. Wait for DNS propagation (5-30 minutes)\n")
	b.WriteString("  3. Run:\n")
	fmt.Fprintf(&b, "       wpscout consent verify --method dns --domain %s --token %s\n\n", tok.Domain, tok.Value)

	b.WriteString("Verification is required before using --aggressive, --use-ai or a rate of 10 req/s or more.\n")
	return b.String()
}
