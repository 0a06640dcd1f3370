package wallet

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

// InvoiceParams describes the invoice to create for a payment challenge.
type InvoiceParams struct {
	// AmountSats is the invoice amount in satoshis.
	AmountSats int64

	// Description is the invoice memo.
	Description string

	// Expiry is how long the invoice stays payable.
	Expiry time.Duration
}

// InvoiceHandle is an opaque reference to a created invoice. The payment
// hash is returned alongside the payment request so callers don't need to
// decode the invoice to bind a credential to it.
type InvoiceHandle struct {
	// Invoice is the bolt11 payment request.
	Invoice string

	// PaymentHash is the hash the invoice commits to.
	PaymentHash lntypes.Hash
}

// Payment is the result of waiting for an invoice to settle.
type Payment struct {
	// Paid is true if the invoice settled.
	Paid bool

	// Preimage is the preimage revealed on settlement.
	Preimage lntypes.Preimage

	// SettledAt is the settlement time reported by the backend.
	SettledAt time.Time
}

// PayResult is the result of paying an invoice.
type PayResult struct {
	// Preimage is the proof of payment.
	Preimage lntypes.Preimage
}

// Wallet is the narrow Lightning wallet contract the toll gate depends on.
// Implementations must be safe for concurrent use.
type Wallet interface {
	// CreateInvoice adds a new invoice to the backing wallet.
	CreateInvoice(ctx context.Context,
		params *InvoiceParams) (*InvoiceHandle, error)

	// WaitForPayment blocks until the invoice identified by the given
	// payment hash settles, the timeout elapses or the context is
	// canceled. A timeout yields a non-nil error, not a Payment with
	// Paid set to false.
	WaitForPayment(ctx context.Context, paymentHash lntypes.Hash,
		timeout time.Duration) (*Payment, error)

	// PayInvoice pays a bolt11 invoice and returns the preimage. Only
	// the client side helper uses this, the gate itself never pays.
	PayInvoice(ctx context.Context, invoice string) (*PayResult, error)

	// Close releases the connection to the backing wallet and stops all
	// background work.
	Close() error
}
