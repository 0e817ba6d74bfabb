// Package gateway talks to the hosted payment gateway: order creation, the
// checkout script availability probe and signature verification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"commerce-service/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable means the checkout script could not be reached
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected means the gateway refused to create an order
	ErrRejected = errors.New("payment gateway rejected order")
)

// Config holds gateway endpoints and credentials
type Config struct {
	OrderURL  string
	ScriptURL string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

// Customer is forwarded to the gateway for prefill and receipts
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CreateOrderRequest is the body sent to the order endpoint. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Customer Customer          `json:"customer"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's reply
type Order struct {
	OrderID  string `json:"order_id"`
	KeyID    string `json:"key_id"`
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Client is a thin REST client. It is safe for concurrent use.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewClient creates a gateway client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// EnsureReady probes the checkout script once; a success is remembered for the
// life of the client and concurrent callers share a single probe.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready || c.cfg.ScriptURL == "" {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "Gateway.EnsureReady")
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ScriptURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		observe("probe", "error", start)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	observe("probe", strconv.Itoa(res.StatusCode), start)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: script returned %s", ErrUnavailable, res.Status)
	}
	c.ready = true
	c.logger.Info("Payment gateway script reachable", zap.String("url", c.cfg.ScriptURL))
	return nil
}

// CreateOrder asks the gateway for an order id. It is attempted once.
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (*Order, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.CreateOrder")
	defer span.End()

	if in.Currency == "" {
		in.Currency = c.cfg.Currency
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OrderURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.KeyID != "" {
		req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	}

	res, err := c.http.Do(req)
	if err != nil {
		observe("create_order", "error", start)
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer res.Body.Close()
	observe("create_order", strconv.Itoa(res.StatusCode), start)

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, res.Status, bytes.TrimSpace(snippet))
	}

	var out Order
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("%w: response has no order_id", ErrRejected)
	}
	if out.KeyID == "" {
		out.KeyID = c.cfg.KeyID
	}
	return &out, nil
}

func observe(op, status string, start time.Time) {
	util.GatewayRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}
