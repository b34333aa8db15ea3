// Package client calls the orders-service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/CrispyPorkGang/boxpacks/internal/auth"
	orders "github.com/CrispyPorkGang/boxpacks/internal/orders/domain"
	"github.com/CrispyPorkGang/boxpacks/pkg/circuitbreaker"
	"github.com/CrispyPorkGang/boxpacks/pkg/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = logger.RequestIDHeader

	maxResponseBody = 1 << 20
)

// StatusError is a 4xx answer from the orders-service. It does not count
// against the circuit breaker.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orders-service %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("orders-service %d: %s", e.StatusCode, e.Message)
}

// errorBody mirrors the orders-service ErrorResponse.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type response struct {
	status int
	body   []byte
}

type OrdersClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker[response]
	log     *zap.Logger
}

// NewOrdersClient returns a client for the service at baseURL. A zero timeout
// leaves deadlines to the caller's context.
func NewOrdersClient(baseURL string, timeout time.Duration, log *zap.Logger) *OrdersClient {
	if log == nil {
		log = zap.NewNop()
	}
	settings := circuitbreaker.DefaultSettings("orders-service")
	settings.IsSuccessful = func(err error) bool {
		var se *StatusError
		return err == nil || errors.As(err, &se) || errors.Is(err, context.Canceled)
	}
	return &OrdersClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[response](settings, log),
		log:     log,
	}
}

// CreateOrder posts req. A repeated idempotencyKey yields the order created
// by the first call.
func (c *OrdersClient) CreateOrder(ctx context.Context, req orders.CreateOrderRequest, idempotencyKey string) (*orders.Order, error) {
	var order orders.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, idempotencyKey, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *OrdersClient) ListOrders(ctx context.Context) ([]orders.Order, error) {
	var list []orders.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, "", &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

func (c *OrdersClient) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	var order orders.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/orders/%d", id), nil, "", &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *OrdersClient) BreakerState() string {
	return c.breaker.State()
}

func (c *OrdersClient) do(ctx context.Context, method, path string, in any, idempotencyKey string, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		return c.roundTrip(ctx, method, path, payload, idempotencyKey)
	})
	if err != nil {
		logger.FromContext(ctx, c.log).Warn("orders-service call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode orders-service response: %w", err)
	}
	return nil
}

func (c *OrdersClient) roundTrip(ctx context.Context, method, path string, payload []byte, idempotencyKey string) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := auth.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set(HeaderRequestID, id)
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("orders-service %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return response{}, fmt.Errorf("read orders-service response: %w", err)
	}

	if res.StatusCode >= 400 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		if res.StatusCode >= 500 {
			return response{}, fmt.Errorf("orders-service %d: %s", res.StatusCode, msg)
		}
		return response{}, &StatusError{StatusCode: res.StatusCode, Code: eb.Code, Message: msg}
	}
	return response{status: res.StatusCode, body: data}, nil
}
