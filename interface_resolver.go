package flaresync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that reports the first usable
// IPv4 address assigned to the given interfaces, checked in order.
// If no interfaces are named then all interfaces are considered.
// Loopback, link-local and IPv6 addresses are skipped.
//
// This is only useful when the host holds its public address directly,
// such as a VPS with a routable address on eth0. Behind NAT, use
// WebResolver instead.
func InterfaceResolver(iface ...string) Resolver {
	if len(iface) == 0 {
		return localResolver{}
	}
	return interfaceResolver{ifaces: iface}
}

type interfaceResolver struct {
	ifaces []string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, name := range r.ifaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("error getting interface %s by name: %w", name, err))
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			errs = append(errs, fmt.Errorf("error looking up addresses for interface %s: %w", name, err))
			continue
		}
		if ip, ok := firstIPv4(addrs); ok {
			return ip, nil
		}
	}
	if len(errs) > 0 {
		return netip.Addr{}, errors.Join(errs...)
	}
	return netip.Addr{}, ErrNoAddress
}

type localResolver struct{}

func (r localResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface addresses: %w", err)
	}
	if ip, ok := firstIPv4(addrs); ok {
		return ip, nil
	}
	return netip.Addr{}, ErrNoAddress
}

// firstIPv4 returns the first address in addrs that could plausibly be
// published in an A record.
func firstIPv4(addrs []net.Addr) (netip.Addr, bool) {
	// addr: ip+net:192.168.86.253/24
	// addr: ip+net:fe80::2cc9:801b:3551:9a43/64
	for _, addr := range addrs {
		prefix, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := prefix.Addr().Unmap()
		if !ip.Is4() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip, true
	}
	return netip.Addr{}, false
}
