package mint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

const (
	// CondExpiresAt is the caveat condition that bounds the lifetime of a
	// macaroon, expressed in unix seconds.
	CondExpiresAt = "expires_at"

	// CondEndpoint is the caveat condition that binds a macaroon to a
	// single request path.
	CondEndpoint = "endpoint"

	// CondMethod is the caveat condition that binds a macaroon to a single
	// HTTP method.
	CondMethod = "method"

	// CondIP is the caveat condition that binds a macaroon to a single
	// client identifier.
	CondIP = "ip"

	// condSeparator separates a caveat's condition from its value. A
	// caveat is split on the first occurrence only.
	condSeparator = " = "
)

// The error messages below surface verbatim in 401 response bodies, which is
// why they deviate from the usual lowercase convention.
var (
	// ErrInvalidSignature is returned when the recomputed HMAC chain does
	// not match the signature carried by the macaroon.
	ErrInvalidSignature = errors.New("Invalid macaroon signature")

	// ErrMacaroonExpired is returned when the expires_at caveat lies in
	// the past.
	ErrMacaroonExpired = errors.New("Macaroon expired")

	// ErrEndpointMismatch is returned when the endpoint caveat does not
	// match the request path.
	ErrEndpointMismatch = errors.New("Endpoint mismatch")

	// ErrMethodMismatch is returned when the method caveat does not match
	// the request method.
	ErrMethodMismatch = errors.New("Method mismatch")

	// ErrClientMismatch is returned when the ip caveat does not match the
	// client identifier of the request.
	ErrClientMismatch = errors.New("Client mismatch")
)

// Params describes the restrictions a new macaroon is minted with. The
// payment hash is mandatory, all other fields are skipped when empty.
type Params struct {
	// PaymentHash is the payment hash of the invoice the macaroon is
	// bound to.
	PaymentHash lntypes.Hash

	// ExpiresAt is the unix second after which the macaroon is no longer
	// valid. Zero means no expiry caveat.
	ExpiresAt int64

	// Endpoint is the request path the macaroon is restricted to.
	Endpoint string

	// Method is the HTTP method the macaroon is restricted to.
	Method string

	// ClientIP is the client identifier the macaroon is restricted to.
	ClientIP string
}

// VerifyContext carries the request dimensions the caveats are checked
// against. A nil pointer disables the corresponding check, which is how the
// server's binding knobs are turned off without invalidating older
// credentials that still carry the caveat.
type VerifyContext struct {
	// Endpoint is the path of the current request.
	Endpoint *string

	// Method is the HTTP method of the current request.
	Method *string

	// ClientIP is the client identifier of the current request.
	ClientIP *string

	// Now is the wall time the expiry caveat is evaluated at.
	Now time.Time
}

// Caveat formats a single restriction string.
func Caveat(condition, value string) string {
	return condition + condSeparator + value
}

// Mint creates a new macaroon bound to the given payment hash, with the
// caveats assembled in the fixed order expires_at, endpoint, method, ip.
// Minting without a secret or payment hash is a programmer error and panics,
// the middleware validates both at construction time.
func Mint(secret []byte, params Params) *Macaroon {
	if len(secret) == 0 {
		panic("mint: minting with empty secret")
	}
	if params.PaymentHash == lntypes.ZeroHash {
		panic("mint: minting with zero payment hash")
	}

	var caveats []string
	if params.ExpiresAt != 0 {
		caveats = append(caveats, Caveat(
			CondExpiresAt,
			strconv.FormatInt(params.ExpiresAt, 10),
		))
	}
	if params.Endpoint != "" {
		caveats = append(caveats, Caveat(CondEndpoint, params.Endpoint))
	}
	if params.Method != "" {
		caveats = append(caveats, Caveat(
			CondMethod, strings.ToUpper(params.Method),
		))
	}
	if params.ClientIP != "" {
		caveats = append(caveats, Caveat(CondIP, params.ClientIP))
	}

	id := params.PaymentHash.String()
	signature := chainedSignature(secret, id, caveats)

	return &Macaroon{
		ID:        id,
		Caveats:   caveats,
		Signature: hex.EncodeToString(signature),
	}
}

// chainedSignature computes sig_0 = HMAC-SHA256(secret, id) and then folds
// every caveat into the chain with sig_i+1 = HMAC-SHA256(sig_i, caveat_i).
func chainedSignature(secret []byte, id string, caveats []string) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(id))
	signature := mac.Sum(nil)

	for _, caveat := range caveats {
		mac = hmac.New(sha256.New, signature)
		_, _ = mac.Write([]byte(caveat))
		signature = mac.Sum(nil)
	}

	return signature
}

// Verify recomputes the signature chain over the macaroon's ID and caveats in
// their encoded order, compares it in constant time against the carried
// signature and then checks every caveat predicate against the given context.
// On success the payment hash the macaroon is bound to is returned.
func Verify(secret []byte, mac *Macaroon,
	verifyCtx *VerifyContext) (lntypes.Hash, error) {

	expected := chainedSignature(secret, mac.ID, mac.Caveats)
	carried, err := hex.DecodeString(mac.Signature)
	if err != nil || !hmac.Equal(expected, carried) {
		return lntypes.ZeroHash, ErrInvalidSignature
	}

	// The signature is only ever computed over hashes we handed out, so a
	// malformed ID at this point means the credential wasn't minted by us.
	paymentHash, err := lntypes.MakeHashFromStr(mac.ID)
	if err != nil {
		return lntypes.ZeroHash, ErrInvalidSignature
	}

	for _, caveat := range mac.Caveats {
		if err := checkCaveat(caveat, verifyCtx); err != nil {
			return lntypes.ZeroHash, err
		}
	}

	return paymentHash, nil
}

// checkCaveat evaluates a single caveat predicate. Unknown conditions are
// tolerated for forward compatibility but carry no semantic effect.
func checkCaveat(caveat string, verifyCtx *VerifyContext) error {
	condition, value, found := strings.Cut(caveat, condSeparator)
	if !found {
		return fmt.Errorf("malformed caveat: %q", caveat)
	}

	switch condition {
	case CondExpiresAt:
		expiry, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed caveat: %q", caveat)
		}
		if verifyCtx.Now.Unix() > expiry {
			return ErrMacaroonExpired
		}

	case CondEndpoint:
		if verifyCtx.Endpoint != nil && *verifyCtx.Endpoint != value {
			return ErrEndpointMismatch
		}

	case CondMethod:
		if verifyCtx.Method != nil &&
			!strings.EqualFold(*verifyCtx.Method, value) {

			return ErrMethodMismatch
		}

	case CondIP:
		if verifyCtx.ClientIP != nil && *verifyCtx.ClientIP != value {
			return ErrClientMismatch
		}
	}

	return nil
}
