package cycles

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"treasury/internal/alerts"
	"treasury/internal/spendwindow"
	"treasury/internal/types"
)

type fakeRegistry struct {
	accounts []types.ManagedAccount
	err      error
}

func (f *fakeRegistry) ListManagedAccounts(context.Context) ([]types.ManagedAccount, error) {
	return f.accounts, f.err
}

// fakePortfolio fails any method named in failing.
type fakePortfolio struct {
	failing map[string]bool
	risk    map[string]*types.RiskInsights
}

func (f *fakePortfolio) call(name, address string) (json.RawMessage, error) {
	if f.failing[name] {
		return nil, errors.New(name + " unavailable")
	}
	return json.RawMessage(`{"account":"` + address + `","source":"` + name + `"}`), nil
}

func (f *fakePortfolio) FetchSnapshot(_ context.Context, a types.ManagedAccount) (json.RawMessage, error) {
	return f.call("snapshot", a.Address)
}

func (f *fakePortfolio) FetchAlerts(_ context.Context, a types.ManagedAccount) (json.RawMessage, error) {
	return f.call("alerts", a.Address)
}

func (f *fakePortfolio) ComputeRiskInsights(_ context.Context, a types.ManagedAccount) (*types.RiskInsights, error) {
	if f.failing["risk"] {
		return nil, errors.New("risk unavailable")
	}
	if r, ok := f.risk[a.Address]; ok {
		c := *r
		return &c, nil
	}
	return &types.RiskInsights{RiskScore: 0.1}, nil
}

func (f *fakePortfolio) BuildProjection(_ context.Context, a types.ManagedAccount) (json.RawMessage, error) {
	return f.call("projection", a.Address)
}

type fakeProtocols struct {
	metrics map[string]json.RawMessage
	err     error
}

func (f *fakeProtocols) RefreshProtocolMetrics(context.Context) (map[string]json.RawMessage, error) {
	return f.metrics, f.err
}

type fakeAgent struct {
	mu       sync.Mutex
	previews []bool
	result   types.ExecutionResult
	err      error
}

func (f *fakeAgent) ExecuteAgentAction(_ context.Context, _ types.ManagedAccount, preview bool) (*types.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, preview)
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	r.Preview = preview
	r.Executed = !preview
	return &r, nil
}

type fakeToucher struct {
	calls []string
	err   error
}

func (f *fakeToucher) Touch(_ context.Context, delegationID string, dailyLimit float64) (spendwindow.Result, error) {
	f.calls = append(f.calls, delegationID)
	if f.err != nil {
		return spendwindow.Result{}, f.err
	}
	return spendwindow.Result{Changed: true, Caveats: types.DelegationCaveats{Spent24h: dailyLimit}}, nil
}

type fakeEvaluator struct {
	mu      sync.Mutex
	signals []alerts.Signal
}

func (f *fakeEvaluator) Evaluate(_ context.Context, sig alerts.Signal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	return true
}
