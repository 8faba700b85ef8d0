package azuro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// RelayerClient talks to the Azuro relayer REST API. The relayer takes
// signed bet orders, submits the on-chain transaction on the bettor's
// behalf, and exposes order status for polling.
type RelayerClient struct {
	baseURL     string
	environment string
	httpClient  *http.Client
}

// NewRelayerClient creates a relayer client for the given environment, e.g.
// "PolygonUSDT".
func NewRelayerClient(baseURL, environment string) *RelayerClient {
	return &RelayerClient{
		baseURL:     baseURL,
		environment: environment,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitSingle submits a signed ordinar bet order and returns the relayer
// order id for polling.
func (c *RelayerClient) SubmitSingle(ctx context.Context, req SingleOrderRequest) (string, error) {
	req.Environment = c.environment

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/orders/ordinar", req, &order); err != nil {
		return "", fmt.Errorf("azuro/relayer: submit single: %w", err)
	}
	if order.State == OrderStateRejected {
		return "", fmt.Errorf("azuro/relayer: %w: %s", domain.ErrRelayerRejected, order.ErrorMessage)
	}
	if order.ID == "" {
		return "", fmt.Errorf("azuro/relayer: submit single: %w", domain.ErrMissingOrderID)
	}
	return order.ID, nil
}

// SubmitCombo submits a signed combo bet order. All legs ride in one order,
// so the relayer accepts or rejects the combo atomically.
func (c *RelayerClient) SubmitCombo(ctx context.Context, req ComboOrderRequest) (string, error) {
	req.Environment = c.environment

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/orders/combo", req, &order); err != nil {
		return "", fmt.Errorf("azuro/relayer: submit combo: %w", err)
	}
	if order.State == OrderStateRejected {
		return "", fmt.Errorf("azuro/relayer: %w: %s", domain.ErrRelayerRejected, order.ErrorMessage)
	}
	if order.ID == "" {
		return "", fmt.Errorf("azuro/relayer: submit combo: %w", domain.ErrMissingOrderID)
	}
	return order.ID, nil
}

// GetOrder fetches the current state of a submitted order.
func (c *RelayerClient) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	path := "/orders/" + url.PathEscape(orderID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &order); err != nil {
		return Order{}, fmt.Errorf("azuro/relayer: get order %s: %w", orderID, err)
	}
	return order, nil
}

// GetCashoutAvailability reports whether cashout is currently offered for
// the given on-chain bet.
func (c *RelayerClient) GetCashoutAvailability(ctx context.Context, betID string) (bool, error) {
	var resp struct {
		Available bool `json:"isAvailable"`
	}
	path := "/cashouts/" + url.PathEscape(betID) + "/availability"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, fmt.Errorf("azuro/relayer: cashout availability %s: %w", betID, err)
	}
	return resp.Available, nil
}

// GetCashoutCalculation requests a signed cashout quote for a bet. The quote
// expires quickly; callers should create the cashout order promptly.
func (c *RelayerClient) GetCashoutCalculation(ctx context.Context, betID, owner string) (CashoutCalculation, error) {
	req := map[string]any{
		"environment": c.environment,
		"betId":       betID,
		"owner":       owner,
	}
	var calc CashoutCalculation
	if err := c.doJSON(ctx, http.MethodPost, "/cashouts/calculation", req, &calc); err != nil {
		return CashoutCalculation{}, fmt.Errorf("azuro/relayer: cashout calculation %s: %w", betID, err)
	}
	return calc, nil
}

// CreateCashout submits a cashout order from a previously obtained
// calculation, with the owner's EIP-712 signature over the quote.
func (c *RelayerClient) CreateCashout(ctx context.Context, calc CashoutCalculation, owner, signature string) (CashoutOrder, error) {
	req := map[string]any{
		"environment":   c.environment,
		"calculationId": calc.CalculationID,
		"betId":         calc.BetID,
		"owner":         owner,
		"ownerSignature": signature,
	}
	var order CashoutOrder
	if err := c.doJSON(ctx, http.MethodPost, "/cashouts", req, &order); err != nil {
		return CashoutOrder{}, fmt.Errorf("azuro/relayer: create cashout: %w", err)
	}
	return order, nil
}

// GetCashout fetches the state of a cashout order.
func (c *RelayerClient) GetCashout(ctx context.Context, cashoutID string) (CashoutOrder, error) {
	var order CashoutOrder
	path := "/cashouts/" + url.PathEscape(cashoutID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &order); err != nil {
		return CashoutOrder{}, fmt.Errorf("azuro/relayer: get cashout %s: %w", cashoutID, err)
	}
	return order, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doJSON sends a JSON request and decodes the JSON response into out.
func (c *RelayerClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP 429: %s", domain.ErrRateLimited, string(respBody))
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// A 4xx is the relayer's verdict on the order itself. Surface the
		// reason verbatim so callers can show it to the bettor.
		return fmt.Errorf("%w: %s", domain.ErrRelayerRejected, rejectionReason(resp.StatusCode, respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx and anything else stays ambiguous: the order may or may not
		// have been taken.
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// rejectionReason pulls the relayer's message out of an error body. The
// relayer uses both "error" and "errorMessage" keys depending on the
// endpoint; a body that is not JSON is passed through raw.
func rejectionReason(status int, body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, string(body))
}
