package flaresync

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/miekg/dns"
)

// serveDNS starts a DNS server on a random local port and returns its address.
func serveDNS(t *testing.T, handler dns.Handler) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error listening for DNS: %s", err)
	}
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func answerA(req *dns.Msg, ip net.IP) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{
			Name:   req.Question[0].Name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    300,
		},
		A: ip,
	})
	return m
}

func TestNameserverLookup(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		w.WriteMsg(answerA(req, net.IPv4(203, 0, 113, 7)))
	}))

	nr := Nameserver(server)
	res, err := nr.LookupDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupDomain failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("203.0.113.7"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestNameserverSkipsNonARecords(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := answerA(req, net.IPv4(203, 0, 113, 7))
		cname := &dns.CNAME{
			Hdr: dns.RR_Header{
				Name:   req.Question[0].Name,
				Rrtype: dns.TypeCNAME,
				Class:  dns.ClassINET,
				Ttl:    300,
			},
			Target: "origin.example.net.",
		}
		m.Answer = append([]dns.RR{cname}, m.Answer...)
		w.WriteMsg(m)
	}))

	nr := Nameserver(server)
	res, err := nr.LookupDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupDomain failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("203.0.113.7"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestNameserverEmptyAnswer(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		w.WriteMsg(m)
	}))

	nr := Nameserver(server)
	_, err := nr.LookupDomain(context.Background(), "example.com")
	if !errors.Is(err, ErrNoAddress) {
		t.Fatalf("Expected ErrNoAddress; got %v", err)
	}
}

func TestNameserverNXDomain(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeNameError)
		w.WriteMsg(m)
	}))

	nr := Nameserver(server)
	_, err := nr.LookupDomain(context.Background(), "gone.example.com")
	if err == nil {
		t.Fatalf("Expected error for NXDOMAIN; got err == nil")
	}
}

func TestWithDefaultPort(t *testing.T) {
	if expected, got := "1.1.1.1:53", withDefaultPort("1.1.1.1", "53"); expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if expected, got := "1.1.1.1:5353", withDefaultPort("1.1.1.1:5353", "53"); expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
	if expected, got := "[2606:4700:4700::1111]:53", withDefaultPort("2606:4700:4700::1111", "53"); expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestSystemResolverLookup(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		w.WriteMsg(answerA(req, net.IPv4(198, 51, 100, 42)))
	}))

	sr := &systemResolver{resolver: &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}}
	res, err := sr.LookupDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupDomain failed: %s", err)
	}
	if expected, got := netip.MustParseAddr("198.51.100.42"), res; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestSystemResolverFailure(t *testing.T) {
	server := serveDNS(t, dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeNameError)
		w.WriteMsg(m)
	}))

	sr := &systemResolver{resolver: &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, server)
		},
	}}
	if _, err := sr.LookupDomain(context.Background(), "gone.example.com"); err == nil {
		t.Fatalf("Expected error for NXDOMAIN; got err == nil")
	}
}
