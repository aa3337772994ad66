package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"
)

var (
	ErrBlockedHost = errors.New("smtp host is not a public address")
	ErrBlockedPort = errors.New("non-standard smtp port")
)

// blockedPrefixes covers every range netip's Is* helpers do not.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

var allowedSMTPPorts = map[int]bool{25: true, 465: true, 587: true, 2525: true}

// lookupHost is replaced in tests.
var lookupHost = func(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// ValidateSMTPHost resolves host and rejects it unless every address is public.
// Run it before each send when enabled so a DNS change cannot redirect mail to an
// internal service.
func ValidateSMTPHost(ctx context.Context, host string) error {
	host = strings.ToLower(strings.TrimSpace(strings.Trim(host, "[]")))
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %q", ErrBlockedHost, host)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addrs, err := lookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve smtp host: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %q resolves to nothing", ErrBlockedHost, host)
	}

	for _, addr := range addrs {
		if !isPublicAddr(addr) {
			return fmt.Errorf("%w: %q", ErrBlockedHost, host)
		}
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() ||
		addr.IsInterfaceLocalMulticast() {
		return false
	}
	if addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// ValidateSMTPPort restricts outbound mail to the standard submission ports.
func ValidateSMTPPort(port int) error {
	if allowedSMTPPorts[port] {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrBlockedPort, port)
}
