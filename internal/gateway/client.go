package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 64 << 10
)

// Client talks to the payment-broker backend that fronts PhonePe. It never retries;
// callers decide what a failed call means for their checkout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	metrics    *metrics.CheckoutMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithToken overrides the configured bearer token, e.g. with a buyer's access token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a client from config. An empty base URL leaves the client
// unconfigured: every call then fails with ErrGatewayUnavailable.
func NewClient(cfg config.GatewayConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      strings.TrimSpace(cfg.Token),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Configured reports whether the client has somewhere to send requests.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.token != ""
}

// CreatePaymentSession opens a payment page for the intent and returns where to send the buyer.
func (c *Client) CreatePaymentSession(ctx context.Context, intent OrderIntent) (*Session, error) {
	const op = "create payment session"
	if !c.Configured() {
		c.observe("create", "unavailable")
		return nil, unavailable(op, nil)
	}
	if len(intent.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent has no items")
	}

	body := buildCreateRequest(intent)
	var resp createResponse
	if err := c.do(ctx, "create", http.MethodPost, "/api/v1/payments/create", body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.RedirectURL) == "" {
		c.observe("create", "invalid")
		return nil, requestFailed(op, http.StatusOK, "no redirect URL received from payment gateway")
	}
	c.observe("create", "ok")
	return &Session{
		BrokerOrderID:   resp.OrderID,
		MerchantOrderID: resp.MerchantOrderID,
		ProviderOrderID: resp.PhonePeOrderID,
		RedirectURL:     resp.RedirectURL,
		Amount:          resp.Amount,
		Status:          resp.Status,
		ExpiresAt:       resp.ExpiresAt,
	}, nil
}

// CheckPaymentStatus reads the broker's current view of a payment. Safe to repeat.
func (c *Client) CheckPaymentStatus(ctx context.Context, merchantOrderID string) (*Status, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant order id is required")
	}
	if !c.Configured() {
		c.observe("status", "unavailable")
		return nil, unavailable("check payment status", nil)
	}

	var resp statusResponse
	path := "/api/v1/payments/status/" + url.PathEscape(merchantOrderID)
	if err := c.do(ctx, "status", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	c.observe("status", "ok")

	status, err := enums.ParsePaymentStatus(resp.Status)
	if err != nil {
		status = enums.PaymentStatusPending
	}
	if resp.MerchantOrderID == "" {
		resp.MerchantOrderID = merchantOrderID
	}
	return &Status{
		MerchantOrderID: resp.MerchantOrderID,
		Status:          status,
		TransactionID:   resp.TransactionID,
		Amount:          resp.Amount,
		PaymentMethod:   resp.PaymentMethod,
		PaidAt:          resp.PaidAt,
		UTR:             resp.UTR,
		ErrorMessage:    resp.ErrorMessage,
	}, nil
}

// GetOrder fetches an order's current state. Responses may be bare or wrapped in {"data": ...}.
func (c *Client) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderSnapshot, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !c.Configured() {
		c.observe("order", "unavailable")
		return nil, unavailable("get order", nil)
	}

	var raw json.RawMessage
	if err := c.do(ctx, "order", http.MethodGet, "/api/v1/orders/"+orderID.String(), nil, &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 && string(wrapped.Data) != "null" {
		raw = wrapped.Data
	}
	var snapshot OrderSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.observe("order", "invalid")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode order")
	}
	c.observe("order", "ok")
	return &snapshot, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+operation+" request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+operation+" request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, "unavailable")
		return unavailable(operation+" request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		c.observe(operation, "unavailable")
		return unavailable("read "+operation+" response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(operation, "rejected")
		msg := errorMessage(data, fmt.Sprintf("%s failed with status %d", operation, resp.StatusCode))
		return requestFailed(operation+" request", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.observe(operation, "invalid")
		return requestFailed("decode "+operation+" response", resp.StatusCode, "invalid response from payment gateway")
	}
	return nil
}

func (c *Client) observe(operation, result string) {
	c.metrics.IncGatewayRequest(operation, result)
}

func buildCreateRequest(intent OrderIntent) createRequest {
	expireAfter := intent.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = DefaultExpireAfter
	}
	meta := intent.MetaInfo
	if meta.UDF1 == "" {
		meta.UDF1 = "machine_" + intent.MachineCode
	}
	if meta.UDF2 == "" {
		meta.UDF2 = "user_" + intent.UserID.String()
	}
	if meta.UDF3 == "" {
		meta.UDF3 = fmt.Sprintf("items_%d", len(intent.Items))
	}

	items := make([]createItem, 0, len(intent.Items))
	for _, item := range intent.Items {
		items = append(items, createItem{
			ProductID:    item.ProductID.String(),
			ProductName:  item.ProductName,
			ProductPrice: json.Number(item.UnitPrice.StringFixed(2)),
			Quantity:     item.Quantity,
			SlotNumber:   item.SlotNumber,
		})
	}
	return createRequest{
		UserID:      intent.UserID.String(),
		MachineID:   intent.MachineID.String(),
		MachineCode: intent.MachineCode,
		Items:       items,
		RedirectURL: intent.RedirectURL,
		ExpireAfter: int(expireAfter / time.Second),
		MetaInfo:    &meta,
	}
}
