package flaresync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
)

// defaultHTTPClient is used by every component that was not handed a client
// through UsingHTTPClient. The timeout guarantees a run finishes even when
// the caller passed context.Background.
var defaultHTTPClient = func() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = 30 * time.Second
	return c
}()

// New returns a Client which keeps the A record for domain pointed at the
// host's current public IPv4 address. A DNS provider is required; register
// one with UsingCloudflare or UsingProvider. By default the current address
// is discovered through an external echo service (see WebResolver) and the
// published address through the system resolver (see SystemResolver).
func New(domain string, options ...Option) (*Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("flaresync.New: domain cannot be empty")
	}
	c := &Client{
		resolver: WebResolver(""),
		lookup:   SystemResolver(),
		logger:   zerolog.Nop(),
		status:   io.Discard,
		domain:   domain,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("flaresync.New: option %d returned an error: %w", i, err)
		}
	}

	if c.provider == nil {
		return nil, fmt.Errorf("flaresync.New: no DNS provider was registered and there is no default option - use flaresync.UsingCloudflare or similar")
	}

	// Options may arrive in any order,
	// so dependency configuration is pushed down only after all of them ran.
	wire(c)
	return c, nil
}

// Client synchronizes one domain's A record with the host's public IPv4
// address. Construct it with New.
type Client struct {
	resolver   Resolver
	lookup     DomainResolver
	provider   Provider
	logger     zerolog.Logger
	status     io.Writer
	httpClient *http.Client
	apiBase    string
	matchApex  bool
	domain     string
}

// Result reports what one synchronization pass observed and did.
type Result struct {
	// Current is the public IPv4 address the resolver reported for this host.
	Current netip.Addr
	// Published is the IPv4 address DNS reported for the domain before the run.
	Published netip.Addr
	// Updated is true when the provider record was rewritten.
	Updated bool
}

// Option configures a Client during New.
type Option func(*Client) error

// UsingCloudflare registers a Cloudflare DNS provider authenticated by the
// given API token. The token needs Zone.Zone read and Zone.DNS edit scopes
// for the zone holding the domain.
func UsingCloudflare(token string) Option {
	return func(c *Client) error {
		p, err := newCloudflareProvider(token)
		if err != nil {
			return fmt.Errorf("error creating cloudflare DNS provider: %w", err)
		}
		c.provider = p
		return nil
	}
}

// UsingProvider registers a custom DNS provider implementation.
func UsingProvider(p Provider) Option {
	return func(c *Client) error {
		if p == nil {
			return fmt.Errorf("provider cannot be nil")
		}
		c.provider = p
		return nil
	}
}

// UsingResolver replaces the source for the host's current public address.
// A nil resolver restores the default.
func UsingResolver(resolver Resolver) Option {
	return func(c *Client) error {
		if resolver == nil {
			resolver = WebResolver("")
		}
		c.resolver = resolver
		return nil
	}
}

// UsingDomainResolver replaces the source for the domain's published address.
// A nil resolver restores the default.
func UsingDomainResolver(lookup DomainResolver) Option {
	return func(c *Client) error {
		if lookup == nil {
			lookup = SystemResolver()
		}
		c.lookup = lookup
		return nil
	}
}

// UsingHTTPClient replaces the HTTP client used for the echo service and the
// provider API.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpclient
		return nil
	}
}

// WithLogger attaches a logger to the client and its dependencies.
// Without it, logs are discarded.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithStatus directs the client's one-line progress messages to w,
// which is how the command line tool prints to stdout.
// Without it, status messages are discarded.
func WithStatus(w io.Writer) Option {
	return func(c *Client) error {
		if w == nil {
			w = io.Discard
		}
		c.status = w
		return nil
	}
}

// WithBaseURL points the provider at a different API root.
// An empty URL keeps the provider's default.
func WithBaseURL(apiBase string) Option {
	return func(c *Client) error {
		c.apiBase = apiBase
		return nil
	}
}

// MatchZoneApex lets the provider fall back to the registrable apex of the
// domain when no zone name matches it exactly, so "home.example.com" can be
// managed through the "example.com" zone.
func MatchZoneApex() Option {
	return func(c *Client) error {
		c.matchApex = true
		return nil
	}
}

// wire pushes client-level configuration into the registered dependencies.
func wire(c *Client) {
	type setLogger interface {
		SetLogger(zerolog.Logger)
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}

	switch p := c.provider.(type) {
	case *cloudflareProvider:
		p.logger = c.logger
		p.matchApex = c.matchApex
		if c.apiBase != "" {
			p.baseURL = c.apiBase
		}
		if c.httpClient != nil {
			p.httpClient = c.httpClient
		}
	case setLogger:
		p.SetLogger(c.logger)
	}

	switch r := c.resolver.(type) {
	case *webResolver:
		if c.httpClient != nil {
			r.httpClient = c.httpClient
		}
	case setHTTPClient:
		if c.httpClient != nil {
			r.SetHTTPClient(c.httpClient)
		}
	}
}

// Run performs one synchronization pass: resolve the host's current public
// IPv4 address, look up the address published for the domain, and rewrite
// the provider record only when the two differ. The returned Result holds
// both addresses and whether an update happened. Run never retries; any
// failing step aborts the pass with an error and the record is left alone.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	current, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting current public IPv4 address: %w", err)
	}
	c.logger.Debug().Stringer("current", current).Msg("resolved public address")

	published, err := c.lookup.LookupDomain(ctx, c.domain)
	if err != nil {
		return nil, fmt.Errorf("error looking up IPv4 address for %s: %w", c.domain, err)
	}
	c.logger.Debug().Stringer("published", published).Str("domain", c.domain).Msg("resolved published address")

	result := &Result{Current: current, Published: published}
	if current == published {
		fmt.Fprintln(c.status, "IPv4 Address matches. Exiting.")
		c.logger.Info().Stringer("address", current).Msg("record already up to date")
		return result, nil
	}

	fmt.Fprintln(c.status, "IPv4 Address does not match. Updating Cloudflare DNS records.")
	c.logger.Info().Stringer("current", current).Stringer("published", published).Msg("record out of date")

	if err := c.provider.SetDNSRecord(ctx, c.domain, current); err != nil {
		return nil, fmt.Errorf("error updating %s: %w", c.domain, err)
	}
	result.Updated = true
	fmt.Fprintf(c.status, "Updated DNS Record from %s to %s\n", published, current)
	c.logger.Info().Stringer("from", published).Stringer("to", current).Msg("record updated")
	return result, nil
}

// Check verifies the provider credential and confirms the domain's zone and
// A record are visible, without changing anything. It returns an error when
// the registered provider has no check support.
func (c *Client) Check(ctx context.Context) error {
	checker, ok := c.provider.(Checker)
	if !ok {
		return fmt.Errorf("flaresync.Check: the registered provider does not support checks")
	}
	return checker.Check(ctx, c.domain)
}
