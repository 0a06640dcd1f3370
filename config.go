package toll

import (
	"net/http"
	"time"

	"github.com/lightninglabs/toll/wallet"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// MinSecretLen is the minimum length of the minting secret in bytes.
	// Anything shorter is rejected at construction time since the secret
	// is the only thing standing between an attacker and free credentials.
	MinSecretLen = 32

	// DefaultSats is the price charged for a route that configures
	// neither a fixed price nor a price function.
	DefaultSats = 10

	// DefaultInvoiceExpiry is how long issued invoices stay payable.
	DefaultInvoiceExpiry = 5 * time.Minute

	// DefaultMacaroonExpiry bounds the lifetime of minted credentials
	// through the expires_at caveat.
	DefaultMacaroonExpiry = time.Hour
)

// Config holds all settings of a toll booth. Use DefaultConfig as the
// starting point, the zero value turns off the endpoint and method binding
// that should normally stay on.
type Config struct {
	// Wallet creates the invoices backing the payment challenges.
	// Required.
	Wallet wallet.Wallet

	// Secret is the HMAC key all credentials are minted and verified
	// with. Required, at least MinSecretLen random bytes.
	Secret []byte

	// DefaultSats is the price for routes that don't set their own.
	DefaultSats int64

	// InvoiceExpiry is how long issued invoices stay payable. It also
	// bounds how long a payment watcher waits for settlement.
	InvoiceExpiry time.Duration

	// MacaroonExpiry is the lifetime of minted credentials.
	MacaroonExpiry time.Duration

	// BindEndpoint restricts minted credentials to the request path they
	// were issued for. Turning it off also disables the endpoint check
	// for credentials that still carry the caveat.
	BindEndpoint bool

	// BindMethod restricts minted credentials to the request method.
	BindMethod bool

	// BindIP restricts minted credentials to the client identifier.
	BindIP bool

	// OnPayment, if set, is invoked from a background watcher whenever an
	// invoice issued by a challenge settles. The callback is fire and
	// forget, it runs off the request path and panics are swallowed.
	OnPayment func(Payment)

	// ReplayProtection rejects a second paid admission with the same
	// payment hash. The seen set is in-memory only and does not survive
	// restarts.
	ReplayProtection bool

	// Clock is the time source for caveat expiry, free tier windows and
	// stats timestamps. Defaults to wall time.
	Clock clock.Clock
}

// DefaultConfig returns a config with all defaults populated. Wallet and
// Secret still need to be set by the caller.
func DefaultConfig() Config {
	return Config{
		DefaultSats:    DefaultSats,
		InvoiceExpiry:  DefaultInvoiceExpiry,
		MacaroonExpiry: DefaultMacaroonExpiry,
		BindEndpoint:   true,
		BindMethod:     true,
	}
}

// RouteOptions customizes the gate of a single route.
type RouteOptions struct {
	// Sats is the fixed price of the route. Zero falls back to the
	// booth's default price.
	Sats int64

	// Price computes the price per request. Takes precedence over Sats.
	Price func(*http.Request) int64

	// Description is the invoice description. Empty falls back to
	// "API access: <METHOD> <path>".
	Description string

	// DescriptionFunc computes the description per request. Takes
	// precedence over Description.
	DescriptionFunc func(*http.Request) string

	// FreeRequests is how many requests per window a client may make
	// without paying. Zero means every request is paid.
	FreeRequests int

	// FreeWindow is the free tier window, either a duration with an
	// ms/s/m/h/d suffix or a raw millisecond count. Defaults to one hour.
	FreeWindow string
}

// price resolves the amount to charge for the given request.
func (o *RouteOptions) price(r *http.Request, defaultSats int64) int64 {
	switch {
	case o.Price != nil:
		return o.Price(r)

	case o.Sats > 0:
		return o.Sats

	default:
		return defaultSats
	}
}

// description resolves the invoice description for the given request.
func (o *RouteOptions) description(r *http.Request) string {
	switch {
	case o.DescriptionFunc != nil:
		return o.DescriptionFunc(r)

	case o.Description != "":
		return o.Description

	default:
		return "API access: " + r.Method + " " + r.URL.Path
	}
}
