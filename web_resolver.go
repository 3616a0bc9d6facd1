package flaresync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// DefaultEchoURL is the address-echo service used when none is configured.
const DefaultEchoURL = "https://api.ipify.org"

// WebResolver constructs a resolver which asks an external web service for
// the public IP address of the caller.
//
// The service must speak http and return status "200 OK",
// with a plain-text IPv4 address as the response body.
// All other responses are considered an error.
// An empty serviceURL selects [DefaultEchoURL].
//
// The recommended approach for anything sensitive is to run your own
// service over https and pass its URL here.
func WebResolver(serviceURL string) Resolver {
	if serviceURL == "" {
		serviceURL = DefaultEchoURL
	}
	return &webResolver{serviceURL: serviceURL}
}

type webResolver struct {
	httpClient *http.Client
	serviceURL string
}

// Resolve implements flaresync.Resolver with a single request to the echo
// service. There is no second opinion and no retry; a run that cannot
// trust the response fails instead.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	// 15 seconds is an eternity for the size of the request we're making,
	// but this ensures that the call will eventually complete even if the
	// caller supplied context.TODO or context.Background.
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wr.serviceURL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	// The body is a bare address; anything longer than this limit is some
	// other kind of response and will fail the parse below.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error reading response body: %w", err)
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("echo service returned %s; expected an IPv4 address", ip)
	}
	return ip, nil
}
