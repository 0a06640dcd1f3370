package mint

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Macaroon is the bearer credential handed out alongside a payment challenge.
// Its ID is the payment hash of the invoice it was minted for, the caveats
// narrow where and for how long it is valid and the signature is the chained
// HMAC over the ID and all caveats in their encoded order. The order is part
// of the credential, reordering caveats invalidates the signature.
type Macaroon struct {
	// ID is the lowercase hex encoded payment hash of the invoice this
	// credential is bound to.
	ID string `json:"id"`

	// Caveats is the ordered list of restrictions, each one of the form
	// "<key> = <value>".
	Caveats []string `json:"caveats"`

	// Signature is the hex encoded chained HMAC-SHA256 over the ID and
	// all caveats.
	Signature string `json:"signature"`
}

// EncodeToString serializes the macaroon to its wire form, the JSON object
// encoded as unpadded base64url.
func (m *Macaroon) EncodeToString() (string, error) {
	rawJSON, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(rawJSON), nil
}

// Decode parses a serialized macaroon. Any structural failure results in an
// error, never a panic, since this runs on the unauthenticated request path.
func Decode(raw string) (*Macaroon, error) {
	rawJSON, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("base64 decode of macaroon failed: %v",
			err)
	}

	mac := &Macaroon{}
	if err := json.Unmarshal(rawJSON, mac); err != nil {
		return nil, fmt.Errorf("unable to unmarshal macaroon: %v", err)
	}

	// All three fields are required. A missing caveats field decodes to a
	// nil slice while an empty list is valid, so we can tell them apart.
	if mac.ID == "" || mac.Signature == "" || mac.Caveats == nil {
		return nil, fmt.Errorf("macaroon is missing required fields")
	}

	return mac, nil
}
