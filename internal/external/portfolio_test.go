package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/internal/types"
)

func newPortfolioTestClient(t *testing.T, handler http.HandlerFunc) *PortfolioClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := newTestClient(RetryPolicy{}, BreakerSettings{Name: t.Name()})
	return NewPortfolioClient(base, srv.URL+"/", "api-key")
}

func TestPortfolioClient_AccountEndpoints(t *testing.T) {
	var paths []string
	c := newPortfolioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/accounts/0xabc/risk":
			w.Write([]byte(`{"risk_score":72.5,"utilization":0.4,"warnings":["concentration"]}`))
		default:
			w.Write([]byte(`{"ok":true}`))
		}
	})
	ctx := context.Background()
	acct := types.ManagedAccount{Address: "0xABC"}

	snap, err := c.FetchSnapshot(ctx, acct)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(snap))

	_, err = c.FetchAlerts(ctx, acct)
	require.NoError(t, err)

	risk, err := c.ComputeRiskInsights(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", risk.Account)
	assert.Equal(t, 72.5, risk.RiskScore)
	assert.Equal(t, []string{"concentration"}, risk.Warnings)

	_, err = c.BuildProjection(ctx, acct)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /v1/accounts/0xabc/snapshot",
		"GET /v1/accounts/0xabc/alerts",
		"GET /v1/accounts/0xabc/risk",
		"GET /v1/accounts/0xabc/projection",
	}, paths)
}

func TestPortfolioClient_ExecuteAgentAction(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newPortfolioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte(`{"action":"rebalance","executed":false,"amount_usd":1200}`))
	})

	res, err := c.ExecuteAgentAction(context.Background(),
		types.ManagedAccount{Address: "0xDEF", DelegationID: "del-1", DailyLimit: 5000}, true)
	require.NoError(t, err)

	assert.Equal(t, "/v1/accounts/0xdef/agent/preview", gotPath)
	assert.Equal(t, "del-1", gotBody["delegation_id"])
	assert.True(t, res.Preview)
	assert.Equal(t, "0xdef", res.Account)
	assert.Equal(t, "rebalance", res.Action)
	assert.Equal(t, 1200.0, res.AmountUSD)
}

func TestPortfolioClient_RefreshProtocolMetrics(t *testing.T) {
	c := newPortfolioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/protocols/metrics/refresh", r.URL.Path)
		w.Write([]byte(`{"networks":{"mainnet":{"tvl":1},"base":{"tvl":2}}}`))
	})

	metrics, err := c.RefreshProtocolMetrics(context.Background())
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
	assert.JSONEq(t, `{"tvl":2}`, string(metrics["base"]))
}

func TestPortfolioClient_ErrorMapping(t *testing.T) {
	c := newPortfolioTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/accounts/0x1/snapshot" {
			http.Error(w, "unknown account", http.StatusNotFound)
			return
		}
		w.Write([]byte(`not json`))
	})
	acct := types.ManagedAccount{Address: "0x1"}

	_, err := c.FetchSnapshot(context.Background(), acct)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRejected, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Details["status"])
	assert.Equal(t, "unknown account", appErr.Details["body"])

	_, err = c.ComputeRiskInsights(context.Background(), acct)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPortfolio, appErr.Code)
}
