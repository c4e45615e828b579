package edge

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Checker verifies that a tenant hostname resolves through the edge. Used by
// the tenant health surface; never blocks a lifecycle operation.
type Checker struct {
	resolver string
	client   *dns.Client
}

// NewChecker builds a checker against the given resolver address
// (host:port). An empty address falls back to a public resolver.
func NewChecker(resolver string) *Checker {
	if resolver == "" {
		resolver = "8.8.8.8:53"
	}
	c := new(dns.Client)
	c.Timeout = 5 * time.Second
	return &Checker{resolver: resolver, client: c}
}

// Verify resolves an A record for the host. Any answer counts; the routing
// layer owns where the record points.
func (c *Checker) Verify(ctx context.Context, host string) error {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	r, _, err := c.client.ExchangeContext(ctx, m, c.resolver)
	if err != nil {
		return fmt.Errorf("dns query for %s failed: %w", host, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("dns query for %s failed with code %s", host, dns.RcodeToString[r.Rcode])
	}
	if len(r.Answer) == 0 {
		return fmt.Errorf("no records for %s", host)
	}
	return nil
}
