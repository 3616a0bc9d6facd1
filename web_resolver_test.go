package flaresync_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/flaresync/flaresync"
)

func TestWebResolverLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "192.0.2.1")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	res, err := wr.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Request failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("192.0.2.1"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestWebResolverTrailingNewline(t *testing.T) {
	// Most echo services terminate the body with a newline.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "203.0.113.9\n")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	res, err := wr.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Request failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("203.0.113.9"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestWebResolverGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>Service Temporarily Unavailable</html>")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	if _, err := wr.Resolve(context.Background()); err == nil {
		t.Fatalf("Expected error response; got err == nil")
	}
}

func TestWebResolverIPv6Body(t *testing.T) {
	// A v6-only answer cannot be published in an A record.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "2001:db8::1")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	if _, err := wr.Resolve(context.Background()); err == nil {
		t.Fatalf("Expected error response; got err == nil")
	}
}

func TestWebResolverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	if _, err := wr.Resolve(context.Background()); err == nil {
		t.Fatalf("Expected error response; got err == nil")
	}
}

func TestWebResolverHitCount(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, "192.0.2.1")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	if _, err := wr.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve failed: %s", err)
	}
	if hits != 1 {
		t.Fatalf("Expected 1 hit; got %d", hits)
	}
}

func TestWebResolverContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1 * time.Second)
		io.WriteString(w, "192.0.2.1")
	}))
	defer srv.Close()
	wr := flaresync.WebResolver(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := wr.Resolve(ctx); err == nil {
		t.Fatalf("Expected error from cancelled context; got err == nil")
	}
}
