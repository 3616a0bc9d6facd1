package flaresync

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// SystemResolver constructs the default DomainResolver,
// which asks the operating system's resolver for the domain's IPv4 addresses
// and reports the first one.
func SystemResolver() DomainResolver {
	return &systemResolver{}
}

type systemResolver struct {
	resolver *net.Resolver
}

func (sr *systemResolver) LookupDomain(ctx context.Context, domain string) (netip.Addr, error) {
	r := sr.resolver
	if r == nil {
		r = net.DefaultResolver
	}
	// Restricting the lookup to the "ip4" network keeps AAAA records out of
	// the comparison regardless of resolver ordering.
	addrs, err := r.LookupNetIP(ctx, "ip4", domain)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error resolving %s: %w", domain, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, ErrNoAddress
	}
	return addrs[0].Unmap(), nil
}

// Nameserver constructs a DomainResolver which sends an A query for the
// domain to one DNS server directly, bypassing the local caching resolver.
// server is a host or host:port; the port defaults to 53. Pointing it at
// the zone's authoritative nameserver avoids acting on stale cached
// answers.
func Nameserver(server string) DomainResolver {
	return &nameserverResolver{server: server}
}

type nameserverResolver struct {
	client *dns.Client
	server string
}

func (nr *nameserverResolver) LookupDomain(ctx context.Context, domain string) (netip.Addr, error) {
	server := withDefaultPort(nr.server, "53")

	c := nr.client
	if c == nil {
		c = &dns.Client{Timeout: 5 * time.Second}
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)

	in, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error querying %s for %s: %w", server, domain, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("%s answered %s for %s", server, dns.RcodeToString[in.Rcode], domain)
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if ip4 := a.A.To4(); ip4 != nil {
			if addr, ok := netip.AddrFromSlice(ip4); ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, ErrNoAddress
}

// withDefaultPort appends port to server unless it already carries one.
func withDefaultPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, port)
}
