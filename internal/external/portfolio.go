package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"treasury/internal/types"
)

const maxErrorBodyRead = 2048

var (
	_ types.PortfolioSource       = (*PortfolioClient)(nil)
	_ types.AgentExecutor         = (*PortfolioClient)(nil)
	_ types.ProtocolMetricsSource = (*PortfolioClient)(nil)
)

// PortfolioClient calls the portfolio service, which owns snapshot, risk,
// projection and agent-decision logic.
type PortfolioClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
}

// NewPortfolioClient creates a client for the service at baseURL.
func NewPortfolioClient(base *BaseClient, baseURL string, apiKey types.SecretString) *PortfolioClient {
	return &PortfolioClient{
		base:    base,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// FetchSnapshot returns the raw portfolio snapshot for account.
func (c *PortfolioClient) FetchSnapshot(ctx context.Context, account types.ManagedAccount) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, http.MethodGet, accountPath(account, "snapshot"), nil, &out)
	return out, err
}

// FetchAlerts returns the portfolio service's alert list for account.
func (c *PortfolioClient) FetchAlerts(ctx context.Context, account types.ManagedAccount) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, http.MethodGet, accountPath(account, "alerts"), nil, &out)
	return out, err
}

// ComputeRiskInsights returns the risk assessment for account.
func (c *PortfolioClient) ComputeRiskInsights(ctx context.Context, account types.ManagedAccount) (*types.RiskInsights, error) {
	var out types.RiskInsights
	if err := c.call(ctx, http.MethodGet, accountPath(account, "risk"), nil, &out); err != nil {
		return nil, err
	}
	if out.Account == "" {
		out.Account = account.Address
	}
	out.Account = types.NormalizeAddress(out.Account)
	return &out, nil
}

// BuildProjection returns the forward projection for account.
func (c *PortfolioClient) BuildProjection(ctx context.Context, account types.ManagedAccount) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, http.MethodGet, accountPath(account, "projection"), nil, &out)
	return out, err
}

// ExecuteAgentAction asks the service to run the agent's next action, or to
// describe it without executing when preview is set.
func (c *PortfolioClient) ExecuteAgentAction(ctx context.Context, account types.ManagedAccount, preview bool) (*types.ExecutionResult, error) {
	mode := "execute"
	if preview {
		mode = "preview"
	}
	reqBody := map[string]any{
		"delegation_id": account.DelegationID,
		"network":       account.Network,
		"daily_limit":   account.DailyLimit,
	}

	var out types.ExecutionResult
	if err := c.call(ctx, http.MethodPost, accountPath(account, "agent/"+mode), reqBody, &out); err != nil {
		return nil, err
	}
	out.Account = types.NormalizeAddress(account.Address)
	out.Preview = preview
	return &out, nil
}

// RefreshProtocolMetrics refreshes shared protocol metrics and returns them
// keyed by network.
func (c *PortfolioClient) RefreshProtocolMetrics(ctx context.Context) (map[string]json.RawMessage, error) {
	var out struct {
		Networks map[string]json.RawMessage `json:"networks"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/protocols/metrics/refresh", nil, &out); err != nil {
		return nil, err
	}
	if out.Networks == nil {
		out.Networks = map[string]json.RawMessage{}
	}
	return out.Networks, nil
}

func accountPath(account types.ManagedAccount, suffix string) string {
	return "/v1/accounts/" + url.PathEscape(types.NormalizeAddress(account.Address)) + "/" + suffix
}

// call performs one JSON request and decodes a 2xx body into out.
func (c *PortfolioClient) call(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("portfolio: encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("portfolio: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamRejected,
			fmt.Sprintf("portfolio service returned %d for %s %s", resp.StatusCode, method, path),
			nil,
			map[string]any{"status": resp.StatusCode, "body": string(bytes.TrimSpace(snippet))},
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPortfolio, "portfolio: invalid response body", err)
	}
	return nil
}
