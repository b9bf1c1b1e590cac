// Package gateway talks to the external mobile-money provider over HTTP:
// collections (request-to-pay), disbursements, and status lookups. Calls are
// idempotent per external id — the provider deduplicates on the
// X-Reference-Id header — so a retry never double-charges.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 15 * time.Second
	// refresh the token slightly before the provider expires it
	tokenExpirySlack = 30 * time.Second
)

// Service is the adapter contract used by the settlement engine and poller.
type Service interface {
	RequestCollection(ctx context.Context, amount int64, phoneNumber, externalID string) (string, error)
	RequestDisbursement(ctx context.Context, amount int64, phoneNumber, externalID string) (string, error)
	GetStatus(ctx context.Context, providerReference string) (Status, error)
}

// Client implements Service against the provider's REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a gateway client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "RWF"
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

func (c *Client) RequestCollection(ctx context.Context, amount int64, phoneNumber, externalID string) (string, error) {
	return c.requestPayment(ctx, "/v1/collections", amount, phoneNumber, externalID)
}

func (c *Client) RequestDisbursement(ctx context.Context, amount int64, phoneNumber, externalID string) (string, error) {
	return c.requestPayment(ctx, "/v1/disbursements", amount, phoneNumber, externalID)
}

func (c *Client) requestPayment(ctx context.Context, path string, amount int64, phoneNumber, externalID string) (string, error) {
	body := paymentRequest{
		Amount:      strconv.FormatInt(amount, 10),
		Currency:    c.cfg.Currency,
		PhoneNumber: phoneNumber,
		ExternalID:  externalID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, payload, externalID)
	if err != nil {
		return "", err
	}

	var out paymentResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrGatewayUnavailable, err)
	}
	if out.Reference == "" {
		// Providers that assign no id echo the caller's reference.
		return externalID, nil
	}
	return out.Reference, nil
}

func (c *Client) GetStatus(ctx context.Context, providerReference string) (Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/transactions/"+providerReference, nil, "")
	if err != nil {
		return "", err
	}

	var out statusResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrGatewayUnavailable, err)
	}

	switch strings.ToLower(out.Status) {
	case "pending", "created", "processing":
		return StatusPending, nil
	case "successful", "succeeded", "success":
		return StatusSuccessful, nil
	case "failed", "rejected", "expired":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("%w: status %q", ErrGatewayUnavailable, out.Status)
	}
}

// do performs one authenticated request, refreshing the bearer token when
// needed. Provider 5xx and transport errors surface as ErrGatewayUnavailable;
// 4xx as ErrGatewayRejected.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, referenceID string) ([]byte, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if referenceID != "" {
		req.Header.Set("X-Reference-Id", referenceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnknownReference
	case resp.StatusCode == http.StatusUnauthorized:
		// Token may have been revoked early; drop it so the next call
		// re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: unauthorized", ErrGatewayUnavailable)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   path,
		}).Warn("gateway rejected request")
		return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
}

// bearerToken returns the cached token, fetching a fresh one when the cache
// is empty or about to expire.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrGatewayUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token: empty access token", ErrGatewayUnavailable)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}
