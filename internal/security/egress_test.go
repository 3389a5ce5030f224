package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string][]string

func (m mapResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	raw, ok := m[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]netip.Addr, 0, len(raw))
	for _, r := range raw {
		out = append(out, netip.MustParseAddr(r))
	}
	return out, nil
}

func TestIsBlocked(t *testing.T) {
	blocked := []string{"127.0.0.1", "10.1.2.3", "172.16.0.9", "192.168.1.1", "169.254.169.254", "100.64.0.1", "::1", "fe80::1", "fd00::1", "::ffff:127.0.0.1"}
	for _, a := range blocked {
		assert.True(t, IsBlocked(netip.MustParseAddr(a)), a)
	}
	public := []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"}
	for _, a := range public {
		assert.False(t, IsBlocked(netip.MustParseAddr(a)), a)
	}
}

func TestGuard_DialRejectsPrivate(t *testing.T) {
	g := &Guard{Resolver: mapResolver{
		"internal.example": {"10.0.0.5"},
		"mixed.example":    {"93.184.216.34", "192.168.0.10"},
	}}

	_, err := g.DialContext(context.Background(), "tcp", "127.0.0.1:80")
	assert.ErrorIs(t, err, ErrBlockedAddress)

	_, err = g.DialContext(context.Background(), "tcp", "internal.example:443")
	assert.ErrorIs(t, err, ErrBlockedAddress)

	_, err = g.DialContext(context.Background(), "tcp", "mixed.example:443")
	assert.ErrorIs(t, err, ErrBlockedAddress)

	_, err = g.DialContext(context.Background(), "tcp", "unknown.example:443")
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g := &Guard{Resolver: mapResolver{"hooks.example": {"93.184.216.34"}}}
	check := g.CheckRedirect(2)

	ok, _ := http.NewRequest(http.MethodPost, "https://hooks.example/next", nil)
	assert.NoError(t, check(ok, []*http.Request{{}}))

	meta, _ := http.NewRequest(http.MethodPost, "http://169.254.169.254/latest", nil)
	assert.ErrorIs(t, check(meta, nil), ErrBlockedAddress)

	assert.ErrorIs(t, check(ok, []*http.Request{{}, {}}), ErrTooManyRedirects)
}

func TestGuard_NewHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	blocked := (&Guard{}).NewHTTPClient(time.Second, 3)
	_, err := blocked.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)

	allowed := (&Guard{AllowPrivate: true}).NewHTTPClient(time.Second, 3)
	resp, err := allowed.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
