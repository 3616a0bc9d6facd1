package flaresync

import (
	"context"
	"net/netip"
)

// Resolver reports the host's current public IPv4 address.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// DomainResolver reports the IPv4 address currently published in DNS for a domain.
type DomainResolver interface {
	LookupDomain(ctx context.Context, domain string) (netip.Addr, error)
}

// Provider points the authoritative A record for domain at addr.
type Provider interface {
	SetDNSRecord(ctx context.Context, domain string, addr netip.Addr) error
}

// Checker is implemented by providers which can verify their credential
// and the reachability of the domain's record without changing anything.
type Checker interface {
	Check(ctx context.Context, domain string) error
}
