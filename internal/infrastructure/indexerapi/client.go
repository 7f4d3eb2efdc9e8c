package indexerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payboard/internal/application"
	"payboard/internal/domain"
	"payboard/internal/infrastructure/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrPaymentNotFound is returned when the indexer answers 404 for a tx hash.
	ErrPaymentNotFound = fmt.Errorf("payment %w", application.ErrNotFound)
	// ErrMalformedResponse is returned when a response body fails validation.
	ErrMalformedResponse = errors.New("malformed indexer response")
)

// StatusError carries a non-2xx indexer status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s status %d", e.Endpoint, e.StatusCode)
}

// Observer receives the outcome of every indexer call.
type Observer func(endpoint, outcome string, elapsed time.Duration)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Observer Observer
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	observe    Observer
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("indexer api url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid indexer api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid indexer api url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	observe := cfg.Observer
	if observe == nil {
		observe = func(string, string, time.Duration) {}
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		observe:    observe,
	}, nil
}

func (c *Client) ListPayments(ctx context.Context, query application.PaymentQuery) (domain.PaymentPage, error) {
	params := url.Values{}
	params.Set("receiverEnsPrimaryName", query.Receiver)
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(query.PerPage))
	}
	if query.SortBy != "" {
		params.Set("sortBy", query.SortBy)
	}
	if len(query.TokenSymbols) > 0 {
		params.Set("tokenOutSymbols", strings.Join(query.TokenSymbols, ","))
	}

	var body paymentsResponse
	if err := c.get(ctx, "payments", "/v1/payments", params, &body); err != nil {
		return domain.PaymentPage{}, err
	}
	return body.toDomain()
}

func (c *Client) GetPayment(ctx context.Context, txHash string) (domain.PaymentRecord, error) {
	var body paymentResponse
	if err := c.get(ctx, "payment", "/v1/payments/"+url.PathEscape(txHash), nil, &body); err != nil {
		return domain.PaymentRecord{}, err
	}
	if body.Payment == nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: payment is missing", ErrMalformedResponse)
	}
	return body.Payment.toDomain()
}

func (c *Client) SenderStats(ctx context.Context, receiver string) ([]domain.SenderAggregate, error) {
	params := url.Values{}
	params.Set("receiverEnsPrimaryName", receiver)

	var body statsResponse
	if err := c.get(ctx, "stats", "/v1/stats", params, &body); err != nil {
		return nil, err
	}
	return body.toDomain()
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "indexer."+endpoint,
		attribute.String("indexer.endpoint", endpoint),
	)
	start := time.Now()
	defer func() {
		c.observe(endpoint, outcome(err), time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	target := c.baseURL.JoinPath(path)
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("indexer %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound && endpoint == "payment" {
		return ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, application.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
