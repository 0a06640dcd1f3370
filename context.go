package toll

import (
	"context"
	"net/http"

	"github.com/lightningnetwork/lnd/lntypes"
)

// contextKey is the type used for toll specific values in the request
// context. We wrap the string inside a struct because of this comment in the
// context API: "The provided key must be comparable and should not be of
// type string or any other built-in type to avoid collisions between
// packages using context."
type contextKey struct {
	name string
}

// keyRequestInfo is the key under which the admission annotation is stored
// in the request context.
var keyRequestInfo = contextKey{"toll_request_info"}

// RequestInfo is the per-request annotation a downstream handler can inspect
// after the gate admitted the request.
type RequestInfo struct {
	// Paid is true when the request carried a valid macaroon and
	// preimage.
	Paid bool

	// Free is true when the request was admitted on the free tier.
	Free bool

	// PaymentHash is the payment hash of the credential, only set for
	// paid admissions.
	PaymentHash lntypes.Hash

	// AmountSats is the price charged, only set for paid admissions.
	AmountSats int64

	// ClientID identifies the client for free tier accounting and the ip
	// caveat.
	ClientID string
}

// InfoFromContext extracts the admission annotation from a request context.
// The second return value is false for requests that did not pass a gate.
func InfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(keyRequestInfo).(*RequestInfo)
	return info, ok
}

// withInfo attaches the admission annotation to the request.
func withInfo(r *http.Request, info *RequestInfo) *http.Request {
	return r.WithContext(
		context.WithValue(r.Context(), keyRequestInfo, info),
	)
}
