package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver queries TXT records with miekg/dns. It asks the domain's
// authoritative nameserver first, so a freshly added record is seen before
// recursive caches expire, then falls back to each system resolver.
type DNSResolver struct {
	// Servers are the recursive resolvers as host:port. Empty means the
	// nameservers from /etc/resolv.conf.
	Servers []string
	// NSPort is the port used for authoritative nameservers.
	NSPort string
	// Timeout bounds a single exchange.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewDNSResolver returns a resolver using the system configuration.
func NewDNSResolver() *DNSResolver {
	return &DNSResolver{NSPort: "53", Timeout: 3 * time.Second}
}

func (r *DNSResolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *DNSResolver) servers() ([]string, error) {
	if len(r.Servers) > 0 {
		return r.Servers, nil
	}
	cc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("reading resolver config: %w", err)
	}
	out := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		out = append(out, net.JoinHostPort(s, cc.Port))
	}
	return out, nil
}

func (r *DNSResolver) exchange(ctx context.Context, name string, qtype uint16, server string) (*dns.Msg, error) {
	c := &dns.Client{Timeout: r.Timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	in, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if in.Rcode == dns.RcodeNameError {
		return nil, ErrNoSuchDomain
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query for %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode])
	}
	return in, nil
}

// authoritative returns host:port of the first nameserver of domain that
// resolves to an address.
func (r *DNSResolver) authoritative(ctx context.Context, domain string, servers []string) (string, error) {
	var lastErr error
	for _, server := range servers {
		in, err := r.exchange(ctx, domain, dns.TypeNS, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range in.Answer {
			ns, ok := rr.(*dns.NS)
			if !ok {
				continue
			}
			if addr := r.addressOf(ctx, ns.Ns, in, server); addr != "" {
				return net.JoinHostPort(addr, r.NSPort), nil
			}
		}
		return "", fmt.Errorf("no resolvable nameserver for %s", domain)
	}
	if lastErr == nil {
		lastErr = errors.New("no resolvers configured")
	}
	return "", lastErr
}

// addressOf resolves a nameserver host, preferring glue from msg.
func (r *DNSResolver) addressOf(ctx context.Context, host string, msg *dns.Msg, server string) string {
	for _, rr := range msg.Extra {
		switch a := rr.(type) {
		case *dns.A:
			if strings.EqualFold(a.Hdr.Name, host) {
				return a.A.String()
			}
		case *dns.AAAA:
			if strings.EqualFold(a.Hdr.Name, host) {
				return a.AAAA.String()
			}
		}
	}
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		in, err := r.exchange(ctx, host, qtype, server)
		if err != nil {
			continue
		}
		for _, rr := range in.Answer {
			switch a := rr.(type) {
			case *dns.A:
				return a.A.String()
			case *dns.AAAA:
				return a.AAAA.String()
			}
		}
	}
	return ""
}

func (r *DNSResolver) txt(ctx context.Context, domain, server string) ([]string, error) {
	in, err := r.exchange(ctx, domain, dns.TypeTXT, server)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range in.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			// Long records arrive split into 255-byte strings.
			records = append(records, strings.Join(t.Txt, ""))
			if len(t.Txt) > 1 {
				records = append(records, t.Txt...)
			}
		}
	}
	return records, nil
}

// LookupTXT returns the TXT values of domain. The authoritative answer is
// returned when it is non-empty; otherwise the system resolvers are tried
// one by one until one answers with records.
func (r *DNSResolver) LookupTXT(ctx context.Context, domain string) ([]string, error) {
	servers, err := r.servers()
	if err != nil {
		return nil, err
	}

	if ns, err := r.authoritative(ctx, domain, servers); err == nil {
		r.logger().DebugContext(ctx, "querying authoritative nameserver", slog.String("server", ns))
		records, err := r.txt(ctx, domain, ns)
		switch {
		case errors.Is(err, ErrNoSuchDomain):
			return nil, err
		case err == nil && len(records) > 0:
			return records, nil
		}
	} else {
		r.logger().DebugContext(ctx, "authoritative nameserver lookup failed", slog.String("error", err.Error()))
	}

	var lastErr error
	for _, server := range servers {
		records, err := r.txt(ctx, domain, server)
		switch {
		case errors.Is(err, ErrNoSuchDomain):
			return nil, err
		case err != nil:
			lastErr = err
		case len(records) > 0:
			return records, nil
		}
	}
	return nil, lastErr
}

// verifyDNS returns the matching TXT value.
func (m *Manager) verifyDNS(ctx context.Context, domain, token string) (string, error) {
	host := baseDomain(domain)
	want := m.cfg.DNSTXTPrefix + token

	records, err := m.resolver.LookupTXT(ctx, host)
	if err != nil {
		if errors.Is(err, ErrNoSuchDomain) {
			return "", fmt.Errorf("%w: %s", ErrNoSuchDomain, host)
		}
		return "", fmt.Errorf("%w: TXT lookup for %s: %w", ErrNotPublished, host, err)
	}
	for _, rec := range records {
		if strings.Trim(strings.TrimSpace(rec), `"`) == want {
			return rec, nil
		}
	}
	return "", fmt.Errorf("%w: no TXT record %q on %s", ErrNotPublished, want, host)
}
