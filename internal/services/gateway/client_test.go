package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:         baseURL,
		APIUser:         "user",
		APIKey:          "key",
		SubscriptionKey: "sub",
	}, newQuietLogger())
}

func tokenHandler(calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "ext-1", r.Header.Get("X-Reference-Id"))
		json.NewEncoder(w).Encode(map[string]string{"reference": "prov-1", "status": "pending"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	ref, err := c.RequestCollection(ctx, 1000, "250788000001", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "prov-1", ref)

	_, err = c.RequestCollection(ctx, 2000, "250788000001", "ext-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestRequestDisbursementEchoesExternalIDWhenProviderAssignsNone(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v1/disbursements", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ref, err := newTestClient(srv.URL).RequestDisbursement(context.Background(), 1000, "250788000001", "ext-9")
	require.NoError(t, err)
	assert.Equal(t, "ext-9", ref)
}

func TestErrorTaxonomy(t *testing.T) {
	var tokenCalls int32
	var status int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	t.Run("5xx is transient", func(t *testing.T) {
		status = http.StatusInternalServerError
		_, err := c.RequestCollection(ctx, 1000, "250788000001", "e1")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("4xx is terminal", func(t *testing.T) {
		status = http.StatusBadRequest
		_, err := c.RequestCollection(ctx, 1000, "250788000001", "e2")
		assert.ErrorIs(t, err, ErrGatewayRejected)
	})

	t.Run("404 is unknown reference", func(t *testing.T) {
		status = http.StatusNotFound
		_, err := c.RequestCollection(ctx, 1000, "250788000001", "e3")
		assert.ErrorIs(t, err, ErrUnknownReference)
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		dead := newTestClient("http://127.0.0.1:1")
		_, err := dead.RequestCollection(ctx, 1000, "250788000001", "e4")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})
}

func TestGetStatusMapping(t *testing.T) {
	var tokenCalls int32
	var body string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v1/transactions/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	tests := []struct {
		provider string
		want     Status
	}{
		{"PENDING", StatusPending},
		{"processing", StatusPending},
		{"SUCCESSFUL", StatusSuccessful},
		{"succeeded", StatusSuccessful},
		{"FAILED", StatusFailed},
		{"expired", StatusFailed},
	}
	for _, tt := range tests {
		body = `{"reference":"r","status":"` + tt.provider + `"}`
		got, err := c.GetStatus(ctx, "r")
		require.NoError(t, err, "status %q", tt.provider)
		assert.Equal(t, tt.want, got, "status %q", tt.provider)
	}

	t.Run("unknown provider status is transient", func(t *testing.T) {
		body = `{"reference":"r","status":"weird"}`
		_, err := c.GetStatus(ctx, "r")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})
}
