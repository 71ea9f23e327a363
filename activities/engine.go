package activities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EngineClient talks to the external order-matching engine over HTTP. Orders
// are submitted with the leader's price as a limit-style pass-through.
type EngineClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEngineClient creates a client for the matching engine API.
func NewEngineClient(baseURL string, timeout time.Duration) *EngineClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EngineClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExecuteOrder submits a copier order. The (OriginalTradeID, CopierID) pair
// doubles as the engine-side dedup key, so a retried submit is safe.
func (c *EngineClient) ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/copy", bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OriginalTradeID+":"+req.CopierID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return OrderResult{}, fmt.Errorf("execute order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return OrderResult{}, fmt.Errorf("execute order: engine returned %d", resp.StatusCode)
	}

	var result OrderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return OrderResult{}, fmt.Errorf("decode order result: %w", err)
	}
	return result, nil
}
