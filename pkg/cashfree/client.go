package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

const (
	defaultBaseURL          = "https://sandbox.cashfree.com/pg"
	defaultAPIVersion       = "2022-09-01"
	defaultTimeout          = 10 * time.Second
	defaultStatusRetryDelay = 250 * time.Millisecond
	responseBodyReadLimit   = int64(1024)

	headerAPIVersion   = "x-api-version"
	headerClientID     = "x-client-id"
	headerClientSecret = "x-client-secret"

	opCreateOrder    = "create_order"
	opGetOrderStatus = "get_order_status"
)

var (
	errClientIDRequired     = errors.New("cashfree client id is required")
	errClientSecretRequired = errors.New("cashfree client secret is required")
)

// LatencyObserver receives one observation per outbound gateway call.
type LatencyObserver interface {
	ObserveGatewayCall(operation, outcome string, duration time.Duration)
}

// Client talks to the Cashfree PG orders API and verifies its webhooks.
// It never persists anything.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	apiVersion       string
	clientID         string
	clientSecret     string
	signingSecret    string
	webhookTolerance time.Duration
	statusRetries    uint64
	statusRetryDelay time.Duration
	observer         LatencyObserver
	logger           *logger.Logger
	now              func() time.Time
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

// WithBaseURL overrides the configured PG base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithStatusRetries sets how many times a failed status GET is retried.
func WithStatusRetries(retries uint64, delay time.Duration) Option {
	return func(c *Client) {
		c.statusRetries = retries
		if delay > 0 {
			c.statusRetryDelay = delay
		}
	}
}

// WithObserver records call latency, typically into prometheus.
func WithObserver(observer LatencyObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithClock overrides the clock used for webhook timestamp tolerance.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds the Cashfree client from configuration.
func NewClient(cfg config.CashfreeConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientSecret == "" {
		return nil, errClientSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:       &http.Client{Timeout: timeout},
		baseURL:          strings.TrimSpace(cfg.BaseURL),
		apiVersion:       strings.TrimSpace(cfg.APIVersion),
		clientID:         clientID,
		clientSecret:     clientSecret,
		signingSecret:    cfg.SigningSecret(),
		webhookTolerance: cfg.WebhookTolerance,
		statusRetries:    1,
		statusRetryDelay: defaultStatusRetryDelay,
		logger:           logg,
		now:              time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.apiVersion == "" {
		client.apiVersion = defaultAPIVersion
	}

	return client, nil
}

// Customer identifies the payer on the gateway order.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// CreateOrderParams describes a new gateway order. OrderID is the local,
// already persisted order identifier.
type CreateOrderParams struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  enums.Currency
	Customer  Customer
	ReturnURL string
	NotifyURL string
	Note      string
}

// CreateOrderResult carries what the frontend needs to open checkout.
type CreateOrderResult struct {
	SessionToken   string
	GatewayOrderID string
	Status         enums.GatewayStatus
	ExpiresAt      *time.Time
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type createOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     json.Number     `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

type orderResponse struct {
	CFOrderID        FlexibleID `json:"cf_order_id"`
	OrderID          string     `json:"order_id"`
	OrderStatus      string     `json:"order_status"`
	PaymentSessionID string     `json:"payment_session_id"`
	OrderExpiryTime  string     `json:"order_expiry_time"`
}

// CreateOrder registers the order with Cashfree. It is never retried: a
// blind retry could open a second gateway order for the same local record.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*CreateOrderResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cashfree client not configured")
	}
	if strings.TrimSpace(params.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyINR
	}

	payload, err := json.Marshal(createOrderRequest{
		OrderID:       params.OrderID,
		OrderAmount:   json.Number(params.Amount.StringFixed(2)),
		OrderCurrency: currency.String(),
		CustomerDetails: customerDetails{
			CustomerID:    params.Customer.ID,
			CustomerName:  params.Customer.Name,
			CustomerEmail: params.Customer.Email,
			CustomerPhone: params.Customer.Phone,
		},
		OrderMeta: orderMeta{
			ReturnURL: params.ReturnURL,
			NotifyURL: params.NotifyURL,
		},
		OrderNote: params.Note,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal create order request")
	}

	c.log(ctx, "request", opCreateOrder, map[string]any{
		"order_id":       params.OrderID,
		"amount":         params.Amount.StringFixed(2),
		"customer_email": params.Customer.Email,
	})

	var resp orderResponse
	if err := c.do(ctx, opCreateOrder, http.MethodPost, c.buildURL("orders"), payload, &resp); err != nil {
		c.log(ctx, "error", opCreateOrder, map[string]any{"order_id": params.OrderID, "error": err.Error()})
		return nil, err
	}
	if strings.TrimSpace(resp.PaymentSessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cashfree create order returned no payment session").
			WithDetails(map[string]any{"orderId": params.OrderID})
	}

	result := &CreateOrderResult{
		SessionToken:   resp.PaymentSessionID,
		GatewayOrderID: resp.CFOrderID.String(),
		Status:         MapOrderStatus(resp.OrderStatus),
	}
	if expiry, err := time.Parse(time.RFC3339, resp.OrderExpiryTime); err == nil {
		expiry = expiry.UTC()
		result.ExpiresAt = &expiry
	}

	c.log(ctx, "response", opCreateOrder, map[string]any{
		"order_id":         params.OrderID,
		"gateway_order_id": result.GatewayOrderID,
		"gateway_status":   result.Status,
	})
	return result, nil
}

// GetOrderStatus fetches the gateway's status for orderID. Transient
// failures are retried up to the configured count.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (enums.GatewayStatus, error) {
	if c == nil {
		return enums.GatewayStatusUnknown, pkgerrors.New(pkgerrors.CodeDependency, "cashfree client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return enums.GatewayStatusUnknown, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	endpoint := c.buildURL("orders/" + url.PathEscape(trimmed))
	backoff := retry.WithMaxRetries(c.statusRetries, retry.NewConstant(c.statusRetryDelay))

	var resp orderResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp = orderResponse{}
		callErr := c.do(ctx, opGetOrderStatus, http.MethodGet, endpoint, nil, &resp)
		if callErr != nil && isTransient(callErr) {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		c.log(ctx, "error", opGetOrderStatus, map[string]any{"order_id": trimmed, "error": err.Error()})
		return enums.GatewayStatusUnknown, err
	}

	status := MapOrderStatus(resp.OrderStatus)
	c.log(ctx, "response", opGetOrderStatus, map[string]any{
		"order_id":       trimmed,
		"gateway_status": status,
		"raw_status":     resp.OrderStatus,
	})
	return status, nil
}

// gatewayError marks a non-2xx response; status is 0 for transport failures.
type gatewayError struct {
	status int
	body   string
}

func (e *gatewayError) Is(target error) bool {
	return target == ErrOrderNotFound && e.status == http.StatusNotFound
}

func (e *gatewayError) Error() string {
	if e.status == 0 {
		return e.body
	}
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// ErrOrderNotFound matches, through errors.Is, a gateway 404 for an order
// id Cashfree has never seen.
var ErrOrderNotFound = errors.New("cashfree order not found")

// IsOrderNotFound reports whether err carries ErrOrderNotFound.
func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

func isTransient(err error) bool {
	var gwErr *gatewayError
	if !errors.As(err, &gwErr) {
		return false
	}
	return gwErr.status == 0 || gwErr.status == http.StatusTooManyRequests || gwErr.status >= http.StatusInternalServerError
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("build cashfree %s request", op))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(headerAPIVersion, c.apiVersion)
	httpReq.Header.Set(headerClientID, c.clientID)
	httpReq.Header.Set(headerClientSecret, c.clientSecret)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(op, "transport_error", time.Since(start))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, &gatewayError{body: err.Error()}, fmt.Sprintf("cashfree %s unavailable", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(op, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, &gatewayError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}, fmt.Sprintf("cashfree %s failed", op)).
			WithDetails(map[string]any{"gatewayStatus": resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.observe(op, "decode_error", time.Since(start))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode cashfree %s response", op))
	}
	c.observe(op, "ok", time.Since(start))
	return nil
}

func (c *Client) observe(op, outcome string, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveGatewayCall(op, outcome, d)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("cashfree %s failed", op))
	default:
		c.logger.Info(ctx, fmt.Sprintf("cashfree %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "session", "email", "phone", "pan"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
