package l402

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lightningnetwork/lnd/lntypes"
)

// Challenge bundles everything the client needs to satisfy a payment
// challenge: the invoice to pay and the macaroon to come back with.
type Challenge struct {
	// Invoice is the bolt11 payment request, treated as opaque here.
	Invoice string

	// Macaroon is the serialized macaroon bound to the invoice's payment
	// hash.
	Macaroon string

	// PaymentHash is the payment hash the invoice and macaroon share.
	PaymentHash lntypes.Hash

	// AmountSats is the invoice amount in satoshis.
	AmountSats int64

	// Description is the invoice description, may be empty.
	Description string
}

// instructions spells out the protocol steps for clients that hit the
// challenge without knowing L402.
type instructions struct {
	Step1 string `json:"step1"`
	Step2 string `json:"step2"`
	Step3 string `json:"step3"`
}

// challengeBody is the JSON document sent as the 402 response body.
type challengeBody struct {
	Status       int          `json:"status"`
	Message      string       `json:"message"`
	PaymentHash  string       `json:"paymentHash"`
	Invoice      string       `json:"invoice"`
	Macaroon     string       `json:"macaroon"`
	AmountSats   int64        `json:"amountSats"`
	Description  *string      `json:"description"`
	Protocol     string       `json:"protocol"`
	Instructions instructions `json:"instructions"`
}

// Header renders the WWW-Authenticate header value. The format is an exact
// literal, a single space after the scheme, comma plus space between the
// fields and double-quoted values.
func (c *Challenge) Header() string {
	return fmt.Sprintf(`%s invoice="%s", macaroon="%s"`, authScheme,
		c.Invoice, c.Macaroon)
}

// Body serializes the 402 response body.
func (c *Challenge) Body() ([]byte, error) {
	var description *string
	if c.Description != "" {
		description = &c.Description
	}

	return json.Marshal(&challengeBody{
		Status:      http.StatusPaymentRequired,
		Message:     "Payment Required",
		PaymentHash: c.PaymentHash.String(),
		Invoice:     c.Invoice,
		Macaroon:    c.Macaroon,
		AmountSats:  c.AmountSats,
		Description: description,
		Protocol:    authScheme,
		Instructions: instructions{
			Step1: "Pay the Lightning invoice to obtain the " +
				"payment preimage",
			Step2: "Retry the request with the header " +
				"'Authorization: L402 <macaroon>:<preimage>'",
			Step3: "Your wallet reveals the preimage once the " +
				"invoice settles",
		},
	})
}
