// Package security restricts outbound HTTP requests to public addresses so a
// configured alert webhook cannot be pointed at internal infrastructure.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	ErrBlockedAddress   = errors.New("egress: destination address is not public")
	ErrDNSFailed        = errors.New("egress: DNS resolution failed")
	ErrTooManyRedirects = errors.New("egress: too many redirects")
)

var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// IsBlocked reports whether addr is loopback, private, link-local or
// otherwise non-routable.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for tests.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard validates destinations before connecting.
type Guard struct {
	Resolver Resolver
	// AllowPrivate disables address checks. Local development only.
	AllowPrivate bool
}

func (g *Guard) resolver() Resolver {
	if g.Resolver != nil {
		return g.Resolver
	}
	return net.DefaultResolver
}

// resolve returns the addresses for host after checking every one of them.
// A single blocked address rejects the whole host.
func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !g.AllowPrivate && IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
		return []netip.Addr{addr}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	addrs, err := g.resolver().LookupNetIP(dnsCtx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDNSFailed, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrDNSFailed, host)
	}
	if !g.AllowPrivate {
		for _, a := range addrs {
			if IsBlocked(a) {
				return nil, fmt.Errorf("%w: %s resolved to %s", ErrBlockedAddress, host, a)
			}
		}
	}
	return addrs, nil
}

// DialContext dials the first validated address for addr. Dialing the
// resolved IP rather than the hostname keeps a second lookup from returning
// a different answer.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress: invalid address %q: %w", addr, err)
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// CheckRedirect returns an http.Client CheckRedirect func enforcing the
// redirect limit and validating every hop.
func (g *Guard) CheckRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		_, err := g.resolve(req.Context(), req.URL.Hostname())
		return err
	}
}

// NewHTTPClient returns a client whose every connection goes through g.
func (g *Guard) NewHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}
