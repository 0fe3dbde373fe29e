package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Error is a rejection from the payment provider, surfaced verbatim to the
// caller. No local state exists when one is returned from order creation.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// Client wraps the payment provider's REST API: order creation, capture and
// shipment tracking submission, plus OAuth2 client-credentials auth.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a gateway client. All outbound calls share the given
// request timeout.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       util.GetLogger(),
	}
}

// AmountBreakdown is the priced cart the gateway order is opened with.
type AmountBreakdown struct {
	Currency string
	Subtotal int64
	Shipping int64
	Tax      int64
	Discount int64
	Total    int64
}

// ReturnURLs are where the provider redirects the buyer after approval.
type ReturnURLs struct {
	Return string
	Cancel string
}

// CreateOrderResult identifies the remote pending payment.
type CreateOrderResult struct {
	OrderID      string
	ApprovalLink string
}

// CaptureResult is the outcome of a capture call. CaptureID is the durable
// reference to the moved funds.
type CaptureResult struct {
	CaptureID string
	PayerID   string
	Status    string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder opens a remote order for the priced cart and returns its id
// plus the buyer approval link.
func (c *Client) CreateOrder(ctx context.Context, amount AmountBreakdown, items []models.CartItem, shipping models.Address, urls ReturnURLs) (*CreateOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues("create_order").Observe(time.Since(start).Seconds())
	}()

	lineItems := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		lineItems = append(lineItems, map[string]interface{}{
			"name":     it.Snapshot.Name,
			"sku":      fmt.Sprintf("%d", it.ProductID),
			"quantity": fmt.Sprintf("%d", it.Quantity),
			"unit_amount": map[string]string{
				"currency_code": amount.Currency,
				"value":         formatAmount(it.UnitPrice),
			},
		})
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"amount": map[string]interface{}{
				"currency_code": amount.Currency,
				"value":         formatAmount(amount.Total),
				"breakdown": map[string]interface{}{
					"item_total": money(amount.Currency, amount.Subtotal),
					"shipping":   money(amount.Currency, amount.Shipping),
					"tax_total":  money(amount.Currency, amount.Tax),
					"discount":   money(amount.Currency, amount.Discount),
				},
			},
			"items": lineItems,
			"shipping": map[string]interface{}{
				"name": map[string]string{"full_name": shipping.Name},
				"address": map[string]string{
					"address_line_1": shipping.Line1,
					"address_line_2": shipping.Line2,
					"admin_area_2":   shipping.City,
					"admin_area_1":   shipping.State,
					"postal_code":    shipping.PostalCode,
					"country_code":   shipping.Country,
				},
			},
		}},
		"application_context": map[string]string{
			"return_url": urls.Return,
			"cancel_url": urls.Cancel,
		},
	}

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", body, &resp); err != nil {
		util.GatewayCallsFailed.WithLabelValues("create_order").Inc()
		return nil, err
	}

	result := &CreateOrderResult{OrderID: resp.ID}
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			result.ApprovalLink = link.Href
		}
	}

	c.logger.Info("Gateway order created",
		zap.String("gateway_order_id", resp.ID),
		zap.String("status", resp.Status))
	return result, nil
}

// CaptureOrder moves the funds for an approved gateway order. Callers must
// not retry this on timeout: a second capture against the same order risks a
// double charge.
func (c *Client) CaptureOrder(ctx context.Context, gatewayOrderID string) (*CaptureResult, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.CaptureOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues("capture_order").Observe(time.Since(start).Seconds())
	}()

	var resp captureResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", gatewayOrderID)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]interface{}{}, &resp); err != nil {
		util.GatewayCallsFailed.WithLabelValues("capture_order").Inc()
		return nil, err
	}

	result := &CaptureResult{
		PayerID: resp.Payer.PayerID,
		Status:  resp.Status,
	}
	for _, pu := range resp.PurchaseUnits {
		for _, capture := range pu.Payments.Captures {
			result.CaptureID = capture.ID
		}
	}
	if result.CaptureID == "" {
		return nil, fmt.Errorf("capture response for %s carried no capture id", gatewayOrderID)
	}

	c.logger.Info("Gateway capture completed",
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("capture_id", result.CaptureID))
	return result, nil
}

// SubmitTracking attaches carrier tracking data to a captured payment.
func (c *Client) SubmitTracking(ctx context.Context, captureID, trackingNumber, carrier string) error {
	ctx, span := util.StartSpan(ctx, "Gateway.SubmitTracking")
	defer span.End()

	start := time.Now()
	defer func() {
		util.GatewayCallLatency.WithLabelValues("submit_tracking").Observe(time.Since(start).Seconds())
	}()

	body := map[string]interface{}{
		"trackers": []map[string]string{{
			"transaction_id":  captureID,
			"tracking_number": trackingNumber,
			"carrier":         carrier,
			"status":          "SHIPPED",
		}},
	}

	if err := c.doJSON(ctx, http.MethodPost, "/v1/shipping/trackers-batch", body, nil); err != nil {
		util.GatewayCallsFailed.WithLabelValues("submit_tracking").Inc()
		return err
	}

	c.logger.Info("Tracking submitted to gateway",
		zap.String("capture_id", captureID),
		zap.String("tracking_number", trackingNumber))
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

// token returns a cached OAuth2 access token, refreshing it when close to
// expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway auth failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func money(currency string, cents int64) map[string]string {
	return map[string]string{
		"currency_code": currency,
		"value":         formatAmount(cents),
	}
}

// formatAmount renders cents as a 2-decimal string at the wire boundary.
func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
