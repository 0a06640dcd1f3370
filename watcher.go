package toll

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

// Payment is the settlement notification passed to the OnPayment callback.
type Payment struct {
	// PaymentHash is the hash of the settled invoice.
	PaymentHash lntypes.Hash

	// AmountSats is the amount the challenge asked for.
	AmountSats int64

	// Endpoint is the route the challenge was issued for.
	Endpoint string

	// Preimage is the proof of payment revealed on settlement.
	Preimage lntypes.Preimage

	// SettledAt is the settlement time reported by the wallet.
	SettledAt time.Time

	// ClientID identifies the client the challenge was issued to.
	ClientID string
}

// spawnWatcher starts a detached goroutine that waits for the invoice behind
// a challenge to settle and then fires the payment callback. The watcher is
// independent of the originating request, it carries its own timeout equal
// to the invoice expiry. Timeouts and wallet errors are dropped, the watcher
// is not on the admission path.
func (t *Toll) spawnWatcher(paymentHash lntypes.Hash, amountSats int64,
	endpoint, client string) {

	t.watcherWg.Add(1)
	go func() {
		defer t.watcherWg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Release the wait when the booth shuts down.
		go func() {
			select {
			case <-t.quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		payment, err := t.cfg.Wallet.WaitForPayment(
			ctx, paymentHash, t.cfg.InvoiceExpiry,
		)
		if err != nil || !payment.Paid {
			return
		}

		t.deliverPayment(Payment{
			PaymentHash: paymentHash,
			AmountSats:  amountSats,
			Endpoint:    endpoint,
			Preimage:    payment.Preimage,
			SettledAt:   payment.SettledAt,
			ClientID:    client,
		})
	}()
}

// deliverPayment invokes the payment callback, swallowing panics so a
// misbehaving callback cannot take down the server.
func (t *Toll) deliverPayment(payment Payment) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Payment callback panicked for hash %v: %v",
				payment.PaymentHash, r)
		}
	}()

	t.cfg.OnPayment(payment)
}
