package client_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lightninglabs/toll"
	"github.com/lightninglabs/toll/client"
	"github.com/lightninglabs/toll/wallet"
	"github.com/stretchr/testify/require"
)

var testSecret = bytes.Repeat([]byte{0x42}, 32)

// newTestServer spins up a gated echo server backed by a mock wallet. The
// same wallet instance is handed to the client transport, so paying an
// invoice settles it on the server side.
func newTestServer(t *testing.T,
	opts toll.RouteOptions) (*httptest.Server, *wallet.MockWallet) {

	t.Helper()

	mockWallet := wallet.NewMockWallet()
	cfg := toll.DefaultConfig()
	cfg.Wallet = mockWallet
	cfg.Secret = testSecret

	booth, err := toll.New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, booth.Close())
	})

	mux := http.NewServeMux()
	mux.Handle("/api/echo", booth.Gate(opts)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if len(body) == 0 {
				body = []byte("ok")
			}
			_, _ = w.Write(body)
		},
	)))
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("open"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, mockWallet
}

// TestTransportAutoPay asserts the full detect-pay-retry round trip.
func TestTransportAutoPay(t *testing.T) {
	t.Parallel()

	server, mockWallet := newTestServer(t, toll.RouteOptions{Sats: 5})
	httpClient := &http.Client{
		Transport: &client.Transport{Wallet: mockWallet},
	}

	resp, err := httpClient.Get(server.URL + "/api/echo")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))

	// Exactly one invoice was created and paid.
	require.Equal(t, 1, mockWallet.NumInvoices())
}

// TestTransportPassThrough asserts that unchallenged responses are returned
// untouched and no payment happens.
func TestTransportPassThrough(t *testing.T) {
	t.Parallel()

	server, mockWallet := newTestServer(t, toll.RouteOptions{Sats: 5})
	httpClient := &http.Client{
		Transport: &client.Transport{Wallet: mockWallet},
	}

	resp, err := httpClient.Get(server.URL + "/open")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, mockWallet.NumInvoices())
}

// TestTransportBudget asserts that a challenge above the budget cap is not
// paid.
func TestTransportBudget(t *testing.T) {
	t.Parallel()

	server, mockWallet := newTestServer(t, toll.RouteOptions{Sats: 50})
	httpClient := &http.Client{
		Transport: &client.Transport{
			Wallet:      mockWallet,
			MaxCostSats: 10,
		},
	}

	_, err := httpClient.Get(server.URL + "/api/echo") //nolint:bodyclose
	require.ErrorContains(t, err, "exceeds budget")
}

// TestTransportPreservesBody asserts that the retried request carries the
// original body again.
func TestTransportPreservesBody(t *testing.T) {
	t.Parallel()

	server, mockWallet := newTestServer(t, toll.RouteOptions{Sats: 5})
	httpClient := &http.Client{
		Transport: &client.Transport{Wallet: mockWallet},
	}

	resp, err := httpClient.Post(
		server.URL+"/api/echo", "text/plain",
		strings.NewReader("hello toll"),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello toll", string(body))
}
