package flaresync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// DefaultAPIBase is the Cloudflare v4 API root.
const DefaultAPIBase = "https://api.cloudflare.com/client/v4"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newCloudflareProvider(token string) (*cloudflareProvider, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return &cloudflareProvider{
		token:   token,
		baseURL: DefaultAPIBase,
		logger:  zerolog.Nop(),
	}, nil
}

// cloudflareProvider implements Provider and Checker against the Cloudflare
// v4 API. It holds no state beyond its configuration; every run re-reads
// the zone and record lists.
type cloudflareProvider struct {
	httpClient *http.Client
	logger     zerolog.Logger
	token      string
	baseURL    string
	matchApex  bool
}

// zone is the subset of a Cloudflare zone object this program reads.
type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (z *zone) validate() error {
	if z.ID == "" || z.Name == "" {
		return fmt.Errorf("zone entry is missing id or name")
	}
	return nil
}

// dnsRecord is a Cloudflare DNS record. The full record is sent back when
// patching, with only Content replaced.
type dnsRecord struct {
	ID      string `json:"id"`
	ZoneID  string `json:"zone_id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

func (r *dnsRecord) validate() error {
	if r.ID == "" || r.ZoneID == "" || r.Name == "" || r.Type == "" || r.Content == "" {
		return fmt.Errorf("dns record entry %q is missing required fields", r.ID)
	}
	if r.TTL <= 0 {
		return fmt.Errorf("dns record entry %q has ttl %d", r.ID, r.TTL)
	}
	return nil
}

// envelope is the common part of every Cloudflare v4 response body.
// Success is a pointer so that an envelope which omits the field entirely
// can be told apart from an explicit false.
type envelope struct {
	Success *bool          `json:"success"`
	Errors  []ResponseInfo `json:"errors"`
}

func (e *envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

type zonesResponse struct {
	envelope
	Result []zone `json:"result"`
}

type recordsResponse struct {
	envelope
	Result []dnsRecord `json:"result"`
}

type patchResponse struct {
	envelope
}

type verifyResponse struct {
	envelope
	Result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"result"`
}

// apiRequest performs one call against the Cloudflare API and decodes the
// body into T. Non-2xx statuses and envelope failures are reported as
// *APIError by the callers; this helper only turns the transport and
// decode steps into errors.
func apiRequest[T any](ctx context.Context, cf *cloudflareProvider, method, path string, body any) (*T, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, cf.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Content-Type", "application/json")

	httpclient := cf.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	cf.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("cloudflare API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Errors = env.Errors
		}
		return nil, apiErr
	}

	result := new(T)
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("error decoding response body: %w", err)
	}
	return result, nil
}

// SetDNSRecord implements flaresync.Provider. It locates the zone whose
// name equals domain, then the A record named domain within it, and
// patches that record's content to addr. The record lists are scanned in
// the order the API returned them; the first match wins.
func (cf *cloudflareProvider) SetDNSRecord(ctx context.Context, domain string, addr netip.Addr) error {
	z, err := cf.zoneForDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("error getting zone for domain: %w", err)
	}
	cf.logger.Debug().Str("zone_id", z.ID).Str("zone", z.Name).Msg("found zone")

	record, err := cf.aRecordForDomain(ctx, z.ID, domain)
	if err != nil {
		return fmt.Errorf("error getting A record: %w", err)
	}
	cf.logger.Debug().Str("record_id", record.ID).Str("content", record.Content).Int("ttl", record.TTL).Msg("found A record")

	record.Content = addr.String()
	if err := cf.patchDNSRecord(ctx, record); err != nil {
		return fmt.Errorf("error patching DNS record: %w", err)
	}
	cf.logger.Debug().Str("record_id", record.ID).Str("content", record.Content).Msg("record patched")
	return nil
}

// Check implements flaresync.Checker. It verifies the API token and walks
// the same zone and record lookups as SetDNSRecord without patching
// anything, so a bad credential or a missing record is caught before the
// tool is left to run unattended.
func (cf *cloudflareProvider) Check(ctx context.Context, domain string) error {
	status, err := cf.verifyToken(ctx)
	if err != nil {
		return fmt.Errorf("error verifying API token: %w", err)
	}
	if status != "active" {
		return fmt.Errorf("expected API token status to be \"active\"; got \"%s\"", status)
	}
	cf.logger.Debug().Msg("token verified successfully")

	z, err := cf.zoneForDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("error getting zone for domain: %w", err)
	}
	record, err := cf.aRecordForDomain(ctx, z.ID, domain)
	if err != nil {
		return fmt.Errorf("error getting A record: %w", err)
	}
	cf.logger.Info().
		Str("zone_id", z.ID).
		Str("record_id", record.ID).
		Str("content", record.Content).
		Int("ttl", record.TTL).
		Msg("zone and record are reachable")
	return nil
}

func (cf *cloudflareProvider) zoneForDomain(ctx context.Context, domain string) (zone, error) {
	zones, err := cf.listZones(ctx)
	if err != nil {
		return zone{}, err
	}
	for _, z := range zones {
		if z.Name == domain {
			return z, nil
		}
	}
	if cf.matchApex {
		apex, err := publicsuffix.EffectiveTLDPlusOne(domain)
		if err == nil && apex != domain {
			cf.logger.Debug().Str("apex", apex).Msg("no exact zone match; trying the registrable apex")
			for _, z := range zones {
				if z.Name == apex {
					return z, nil
				}
			}
		}
	}
	return zone{}, ErrZoneNotFound
}

func (cf *cloudflareProvider) listZones(ctx context.Context) ([]zone, error) {
	resp, err := apiRequest[zonesResponse](ctx, cf, http.MethodGet, "/zones", nil)
	if err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, &APIError{StatusCode: http.StatusOK, Errors: resp.Errors}
	}
	for i := range resp.Result {
		if err := resp.Result[i].validate(); err != nil {
			return nil, fmt.Errorf("error decoding zone list: %w", err)
		}
	}
	return resp.Result, nil
}

func (cf *cloudflareProvider) aRecordForDomain(ctx context.Context, zoneID, domain string) (dnsRecord, error) {
	records, err := cf.listDNSRecords(ctx, zoneID)
	if err != nil {
		return dnsRecord{}, err
	}
	for _, r := range records {
		if r.Type == "A" && r.Name == domain {
			return r, nil
		}
	}
	return dnsRecord{}, ErrRecordNotFound
}

func (cf *cloudflareProvider) listDNSRecords(ctx context.Context, zoneID string) ([]dnsRecord, error) {
	resp, err := apiRequest[recordsResponse](ctx, cf, http.MethodGet, "/zones/"+zoneID+"/dns_records", nil)
	if err != nil {
		return nil, err
	}
	if resp.failed() {
		return nil, &APIError{StatusCode: http.StatusOK, Errors: resp.Errors}
	}
	for i := range resp.Result {
		if err := resp.Result[i].validate(); err != nil {
			return nil, fmt.Errorf("error decoding record list: %w", err)
		}
	}
	return resp.Result, nil
}

func (cf *cloudflareProvider) patchDNSRecord(ctx context.Context, record dnsRecord) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", record.ZoneID, record.ID)
	resp, err := apiRequest[patchResponse](ctx, cf, http.MethodPatch, path, record)
	if err != nil {
		return err
	}
	// The patch is the one mutating call,
	// so an envelope that does not state success is not trusted.
	if resp.Success == nil {
		return fmt.Errorf("response envelope is missing the success field")
	}
	if !*resp.Success {
		return &APIError{StatusCode: http.StatusOK, Errors: resp.Errors}
	}
	return nil
}

func (cf *cloudflareProvider) verifyToken(ctx context.Context) (string, error) {
	resp, err := apiRequest[verifyResponse](ctx, cf, http.MethodGet, "/user/tokens/verify", nil)
	if err != nil {
		return "", err
	}
	if resp.failed() {
		return "", &APIError{StatusCode: http.StatusOK, Errors: resp.Errors}
	}
	return resp.Result.Status, nil
}
