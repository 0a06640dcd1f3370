// Package client implements the peer side of the payment gate protocol: an
// http.RoundTripper that detects 402 challenges, pays the invoice through a
// wallet and transparently retries the request with the credential attached.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lightninglabs/toll/l402"
	"github.com/lightninglabs/toll/wallet"
)

// DefaultMaxCostSats is the budget cap applied when the transport is used
// without configuring one.
const DefaultMaxCostSats = 1000

// challengeBody is the part of the 402 response body the client needs.
type challengeBody struct {
	Invoice    string `json:"invoice"`
	Macaroon   string `json:"macaroon"`
	AmountSats int64  `json:"amountSats"`
}

// Transport is an http.RoundTripper that automatically pays L402 challenges.
// Responses other than 402 pass through untouched.
type Transport struct {
	// Base executes the actual requests, http.DefaultTransport when nil.
	Base http.RoundTripper

	// Wallet pays the invoices.
	Wallet wallet.Wallet

	// MaxCostSats is the highest challenge amount the transport is
	// willing to pay. Zero applies DefaultMaxCostSats.
	MaxCostSats int64
}

// A compile time flag to ensure the Transport satisfies the RoundTripper
// interface.
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip executes the request and, if it is challenged, pays and retries.
//
// NOTE: This is part of the http.RoundTripper interface.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// The original body is consumed by the first attempt, so a retry is
	// only possible if the request can re-create it.
	if req.Body != nil && req.GetBody == nil {
		return nil, fmt.Errorf("request body cannot be replayed, " +
			"GetBody is not set")
	}

	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}

	// We consume the challenge response fully, it is replaced by the
	// retry's response.
	challenge := &challengeBody{}
	err = json.NewDecoder(resp.Body).Decode(challenge)
	drainAndClose(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse payment challenge: "+
			"%w", err)
	}
	if challenge.Invoice == "" || challenge.Macaroon == "" {
		return nil, fmt.Errorf("payment challenge is missing invoice " +
			"or macaroon")
	}

	maxCost := t.MaxCostSats
	if maxCost == 0 {
		maxCost = DefaultMaxCostSats
	}
	if challenge.AmountSats > maxCost {
		return nil, fmt.Errorf("challenge amount of %d sat exceeds "+
			"budget of %d sat", challenge.AmountSats, maxCost)
	}

	log.Debugf("Paying %d sat to access %s %s", challenge.AmountSats,
		req.Method, req.URL.Path)

	payResult, err := t.Wallet.PayInvoice(req.Context(), challenge.Invoice)
	if err != nil {
		return nil, fmt.Errorf("unable to pay invoice: %w", err)
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("unable to replay request "+
				"body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set(
		l402.HeaderAuthorization, l402.FormatAuthorization(
			challenge.Macaroon, payResult.Preimage.String(),
		),
	)

	return base.RoundTrip(retry)
}

// drainAndClose makes the underlying connection reusable after an aborted
// response.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
