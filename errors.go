package flaresync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingToken is returned by New when the provider credential is empty.
	ErrMissingToken = errors.New("API token cannot be empty")

	// ErrZoneNotFound is returned when no zone name matches the domain.
	ErrZoneNotFound = errors.New("no zone matches the domain")

	// ErrRecordNotFound is returned when the zone holds no A record named
	// exactly after the domain.
	ErrRecordNotFound = errors.New("no A record matches the domain")

	// ErrNoAddress is returned by resolvers that completed without errors
	// but found no usable IPv4 address.
	ErrNoAddress = errors.New("no IPv4 address found")
)

// ResponseInfo is a single code/message pair from a Cloudflare response envelope.
type ResponseInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError describes a request the Cloudflare API rejected,
// either with a non-2xx status or with an envelope whose success flag was false.
type APIError struct {
	StatusCode int
	Errors     []ResponseInfo
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("cloudflare responded %d: %d %s", e.StatusCode, e.Errors[0].Code, e.Errors[0].Message)
	}
	return fmt.Sprintf("cloudflare responded %d", e.StatusCode)
}

// Unauthorized reports whether the request was rejected for a bad or
// insufficiently scoped credential.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
