// Package remote implements the HTTP client for the fuel-log service. The
// client performs single attempts only; retry and backoff policy belongs to
// the sync engine, which needs to account for retries in its outcomes.
package remote

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

	"fuellog-sync-service/internal/store"
)

// Record is the read-only projection of a fuel event that already exists on
// the server. It is fetched per conflict check and never cached.
type Record struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Quantity  float64   `json:"quantity"`
	Odometer  float64   `json:"odometer"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientError is a 4xx-class rejection: the payload is invalid and retrying
// will not help. The message is surfaced verbatim to the caller.
type ClientError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote rejected request: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("remote rejected request: %s", e.Message)
}

// ServerError is a 5xx-class failure, retryable with backoff.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("remote server error: status=%d message=%s", e.StatusCode, e.Message)
}

// TransportError wraps a network-level failure, retryable with backoff.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client is the contract the sync engine depends on.
type Client interface {
	// CreateFuelEvent submits a payload and returns the server-assigned id.
	CreateFuelEvent(ctx context.Context, payload store.FuelEventPayload, idempotencyKey string) (string, error)

	// ListFuelEventsSince returns up to limit events for the vehicle created
	// strictly after the given time, ascending by creation time.
	ListFuelEventsSince(ctx context.Context, vehicleID string, since time.Time, limit int) ([]Record, error)

	// Ping probes service reachability.
	Ping(ctx context.Context) error
}

type HTTPClientOptions struct {
	BaseURL    string
	AuthToken  string
	UserAgent  string
	HTTPClient *http.Client
}

type HTTPClient struct {
	baseURL    string
	authToken  string
	userAgent  string
	httpClient *http.Client
}

func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		authToken:  strings.TrimSpace(opts.AuthToken),
		userAgent:  strings.TrimSpace(opts.UserAgent),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) CreateFuelEvent(ctx context.Context, payload store.FuelEventPayload, idempotencyKey string) (string, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["X-Idempotency-Key"] = idempotencyKey
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/fuel-events", headers, payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) ListFuelEventsSince(ctx context.Context, vehicleID string, since time.Time, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := fmt.Sprintf("/v1/vehicles/%s/fuel-events?%s", url.PathEscape(vehicleID), q.Encode())

	var out struct {
		Events []Record `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, headers map[string]string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	payloadBytes, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &TransportError{Err: readErr}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payloadBytes) == 0 {
			return nil
		}
		return json.Unmarshal(payloadBytes, out)
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payloadBytes, &errPayload)
	message := errPayload.Message
	if message == "" {
		message = strings.TrimSpace(string(payloadBytes))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	// Throttling is transient, not a payload problem.
	if resp.StatusCode >= 400 && resp.StatusCode <= 499 && resp.StatusCode != http.StatusTooManyRequests {
		return &ClientError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: message}
	}
	return &ServerError{StatusCode: resp.StatusCode, Message: message}
}
