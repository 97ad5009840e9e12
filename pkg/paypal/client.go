package paypal

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

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tiny11/tiny11-backend/pkg/config"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/metrics"
)

const (
	liveBaseURL    = "https://api-m.paypal.com"
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"

	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"

	requestIDHeader             = "PayPal-Request-Id"
	errorBodyReadLimit    int64 = 4096
	defaultRequestTimeout       = 20 * time.Second

	// IssueOrderAlreadyCaptured is returned by the capture endpoint on a replayed capture.
	IssueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

	opCreateOrder  = "create_order"
	opCaptureOrder = "capture_order"
)

var errCredentialsRequired = errors.New("paypal client id and secret are required")

// Client talks to the PayPal Orders v2 API with client-credentials access tokens.
type Client struct {
	httpClient *http.Client
	baseHTTP   *http.Client
	baseURL    string
	brandName  string
	currency   string
	timeout    time.Duration
	metrics    *metrics.PaymentMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for token and API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.baseHTTP = client
		}
	}
}

// WithBaseURL overrides the mode-derived API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithMetrics records processor call latency.
func WithMetrics(m *metrics.PaymentMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a client for the mode selected in cfg.
func NewClient(cfg config.PayPalConfig, opts ...Option) (*Client, error) {
	clientID, clientSecret := cfg.Credentials()
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		baseURL:   sandboxBaseURL,
		brandName: strings.TrimSpace(cfg.BrandName),
		currency:  strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		timeout:   cfg.Timeout,
	}
	if cfg.IsLive() {
		client.baseURL = liveBaseURL
	}
	if client.currency == "" {
		client.currency = "USD"
	}
	if client.timeout <= 0 {
		client.timeout = defaultRequestTimeout
	}
	WithBaseURL(cfg.BaseURLOverride)(client)

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseHTTP == nil {
		client.baseHTTP = &http.Client{Timeout: client.timeout}
	}

	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     client.baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, client.baseHTTP)
	client.httpClient = creds.Client(tokenCtx)
	client.httpClient.Timeout = client.timeout

	return client, nil
}

// BaseURL reports the API host in use.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Money is the PayPal amount object.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// OrderRequest describes a single-unit CAPTURE order.
type OrderRequest struct {
	Amount      decimal.Decimal
	Description string
	CustomID    string
	ReturnURL   string
	CancelURL   string
	RequestID   string
}

// Order is the created order plus the buyer approval link.
type Order struct {
	ID          string
	Status      string
	ApprovalURL string
}

// Capture summarizes a capture call.
type Capture struct {
	OrderID         string
	Status          string
	TransactionID   string
	Amount          *Money
	AlreadyCaptured bool
}

// APIError is a non-2xx answer from PayPal.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	DebugID    string
	Issues     []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("paypal status %d", e.StatusCode)
	if e.Name != "" {
		msg += " " + e.Name
	}
	if len(e.Issues) > 0 {
		msg += " (" + strings.Join(e.Issues, ",") + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// HasIssue reports whether PayPal flagged the given issue code.
func (e *APIError) HasIssue(issue string) bool {
	for _, got := range e.Issues {
		if strings.EqualFold(got, issue) {
			return true
		}
	}
	return false
}

type orderPayload struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type purchaseUnit struct {
	Amount      Money  `json:"amount"`
	Description string `json:"description,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
}

type applicationContext struct {
	BrandName   string `json:"brand_name,omitempty"`
	LandingPage string `json:"landing_page"`
	UserAction  string `json:"user_action"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreateOrder opens an order and returns its approval link.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (order *Order, err error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	if strings.TrimSpace(req.ReturnURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return and cancel urls are required")
	}
	start := time.Now()
	defer func() { c.metrics.ObserveProcessorCall(opCreateOrder, time.Since(start), err) }()

	payload := orderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      Money{CurrencyCode: c.currency, Value: req.Amount.StringFixed(2)},
			Description: req.Description,
			CustomID:    req.CustomID,
		}},
		ApplicationContext: applicationContext{
			BrandName:   c.brandName,
			LandingPage: "NO_PREFERENCE",
			UserAction:  "PAY_NOW",
			ReturnURL:   req.ReturnURL,
			CancelURL:   req.CancelURL,
		},
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []link `json:"links"`
	}
	if err := c.post(ctx, ordersPath, req.RequestID, payload, &resp); err != nil {
		return nil, wrapProcessorError(err, "failed to create paypal order")
	}

	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return &Order{ID: resp.ID, Status: resp.Status, ApprovalURL: l.Href}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodePayment, "no approval url found")
}

// CaptureOrder captures an approved order. A replayed capture is reported as
// captured with AlreadyCaptured set.
func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (capture *Capture, err error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	start := time.Now()
	defer func() { c.metrics.ObserveProcessorCall(opCaptureOrder, time.Since(start), err) }()

	var resp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount *Money `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := fmt.Sprintf("%s/%s/capture", ordersPath, url.PathEscape(orderID))
	if err := c.post(ctx, path, requestID, struct{}{}, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HasIssue(IssueOrderAlreadyCaptured) {
			return &Capture{OrderID: orderID, Status: "COMPLETED", AlreadyCaptured: true}, nil
		}
		return nil, wrapProcessorError(err, "failed to capture payment")
	}

	out := &Capture{OrderID: resp.ID, Status: resp.Status}
	if out.OrderID == "" {
		out.OrderID = orderID
	}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		first := resp.PurchaseUnits[0].Payments.Captures[0]
		out.TransactionID = first.ID
		out.Amount = first.Amount
	}
	return out, nil
}

// CaptureRequestID is the PayPal-Request-Id used to capture orderID. It is
// stable so replayed captures collapse on the processor side.
func CaptureRequestID(orderID string) string {
	return "capture-" + strings.TrimSpace(orderID)
}

func (c *Client) post(ctx context.Context, path, requestID string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		httpReq.Header.Set(requestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		DebugID string `json:"debug_id"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Name = body.Name
	apiErr.Message = body.Message
	apiErr.DebugID = body.DebugID
	for _, d := range body.Details {
		if d.Issue != "" {
			apiErr.Issues = append(apiErr.Issues, d.Issue)
		}
	}
	return apiErr
}

func wrapProcessorError(err error, message string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodePayment, err, message).WithDetails(map[string]any{
			"status":   apiErr.StatusCode,
			"name":     apiErr.Name,
			"issues":   apiErr.Issues,
			"debug_id": apiErr.DebugID,
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
