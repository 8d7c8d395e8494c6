package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepoutside/internal/remote"
)

func newClient(t *testing.T, srv *httptest.Server, threshold uint32) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Options{
		Name:             "test",
		BaseURL:          srv.URL,
		Timeout:          2 * time.Second,
		FailureThreshold: threshold,
		OpenFor:          time.Minute,
	})
	require.NoError(t, err)
	return c
}

func TestGetJSON_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/search/tents", r.URL.Path)
		_, _ = w.Write([]byte(`{"Result":[]}`))
	}))
	defer srv.Close()

	body, err := newClient(t, srv, 3).GetJSON(context.Background(), "products/search/tents")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result":[]}`, string(body))
}

func TestGetJSON_NonSuccessCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"cardNumber":"Invalid Card Number"}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 3).GetJSON(context.Background(), "product/x")
	var te *remote.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Contains(t, string(te.Body), "Invalid Card Number")
}

func TestGetJSON_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 3).GetJSON(context.Background(), "product/x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrMalformed))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(t, srv, 2)
	for i := 0; i < 5; i++ {
		_, err := c.GetJSON(context.Background(), "products/search/tents")
		var te *remote.TransportError
		require.True(t, errors.As(err, &te), "attempt %d", i)
	}
	assert.Equal(t, int32(2), hits.Load(), "breaker should stop calling the upstream")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(t, srv, 2)
	for i := 0; i < 4; i++ {
		_, _ = c.GetJSON(context.Background(), "product/missing")
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		var got map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "Ada", got["fname"])
		_, _ = w.Write([]byte(`{"orderId":"42","message":"Order Placed"}`))
	}))
	defer srv.Close()

	body, err := newClient(t, srv, 3).PostJSON(context.Background(), "/checkout", map[string]string{"fname": "Ada"})
	require.NoError(t, err)
	assert.Contains(t, string(body), "Order Placed")
}

func TestURLKeepsBasePath(t *testing.T) {
	c, err := remote.New(remote.Options{BaseURL: "https://api.example.test/v2"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v2/product/"+remote.Segment("a b"), c.URL("product/"+remote.Segment("a b")))
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := remote.New(remote.Options{BaseURL: "/api"})
	require.Error(t, err)
}
