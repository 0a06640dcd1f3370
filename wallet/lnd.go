package wallet

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"google.golang.org/grpc"
)

// InvoiceClient is an interface that only implements part of a full lnd
// client, namely the calls around invoices and payments the wallet adapter
// needs.
type InvoiceClient interface {
	// AddInvoice adds a new invoice to lnd.
	AddInvoice(ctx context.Context, in *lnrpc.Invoice,
		opts ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error)

	// SubscribeInvoices subscribes to updates on invoices.
	SubscribeInvoices(ctx context.Context, in *lnrpc.InvoiceSubscription,
		opts ...grpc.CallOption) (
		lnrpc.Lightning_SubscribeInvoicesClient, error)

	// SendPaymentSync pays an invoice and blocks until the payment
	// either succeeds or fails.
	SendPaymentSync(ctx context.Context, in *lnrpc.SendRequest,
		opts ...grpc.CallOption) (*lnrpc.SendResponse, error)
}

// LndWallet is a Wallet backed by an lnd node. Settlements are tracked
// through a single invoice subscription that is shared by all concurrent
// WaitForPayment calls, which block on a condition variable until their
// payment hash shows up as settled.
type LndWallet struct {
	client InvoiceClient

	// settled maps payment hashes to their settlement result. Entries
	// are only ever added, invoices that never settle don't show up.
	settled     map[lntypes.Hash]*Payment
	settledMtx  *sync.Mutex
	settledCond *sync.Cond

	subCancel func()

	quit chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

// A compile time flag to ensure the LndWallet satisfies the Wallet
// interface.
var _ Wallet = (*LndWallet)(nil)

// NewLndWallet creates a wallet that builds its own connection to lnd from
// the given connection parameters.
func NewLndWallet(host, tlsPath, macDir, network string) (*LndWallet, error) {
	client, err := lndclient.NewBasicClient(host, tlsPath, macDir, network)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to lnd: %w", err)
	}

	return NewLndWalletFromClient(client)
}

// NewLndWalletFromClient wraps an already constructed lnd client. The wallet
// takes over the invoice subscription but not the connection lifecycle, so
// closing a wallet built this way does not close the underlying client.
func NewLndWalletFromClient(client InvoiceClient) (*LndWallet, error) {
	settledMtx := &sync.Mutex{}
	wallet := &LndWallet{
		client:      client,
		settled:     make(map[lntypes.Hash]*Payment),
		settledMtx:  settledMtx,
		settledCond: sync.NewCond(settledMtx),
		quit:        make(chan struct{}),
	}

	if err := wallet.start(); err != nil {
		return nil, fmt.Errorf("unable to start invoice "+
			"subscription: %w", err)
	}

	return wallet, nil
}

// start subscribes to invoice updates and spawns the goroutine that feeds
// the settled map.
func (l *LndWallet) start() error {
	ctxc, cancel := context.WithCancel(context.Background())
	l.subCancel = cancel

	subscription, err := l.client.SubscribeInvoices(
		ctxc, &lnrpc.InvoiceSubscription{},
	)
	if err != nil {
		cancel()
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		l.readInvoiceStream(subscription)
	}()

	return nil
}

// readInvoiceStream reads invoice update messages until the stream is
// aborted or the wallet is shutting down. A broken stream is logged and the
// reader exits, outstanding WaitForPayment calls then run into their
// timeouts.
func (l *LndWallet) readInvoiceStream(
	stream lnrpc.Lightning_SubscribeInvoicesClient) {

	for {
		// In case we receive the shutdown signal right after
		// receiving an update, we can exit early.
		select {
		case <-l.quit:
			return
		default:
		}

		invoice, err := stream.Recv()
		switch {
		case err == io.EOF:
			log.Errorf("Invoice subscription closed by lnd")
			return

		case err != nil && strings.Contains(
			err.Error(), context.Canceled.Error(),
		):

			// The context has been canceled, we are shutting
			// down.
			return

		case err != nil:
			log.Errorf("Received error from invoice "+
				"subscription: %v", err)
			return
		}

		if invoice.State != lnrpc.Invoice_SETTLED {
			continue
		}

		// Some invoices like AMP invoices may not have a payment hash
		// populated.
		if invoice.RHash == nil {
			continue
		}
		hash, err := lntypes.MakeHash(invoice.RHash)
		if err != nil {
			log.Errorf("Error parsing invoice hash: %v", err)
			continue
		}
		preimage, err := lntypes.MakePreimage(invoice.RPreimage)
		if err != nil {
			log.Errorf("Error parsing preimage of %v: %v", hash,
				err)
			continue
		}

		log.Debugf("Invoice %v settled", hash)

		l.settledMtx.Lock()
		l.settled[hash] = &Payment{
			Paid:      true,
			Preimage:  preimage,
			SettledAt: time.Unix(invoice.SettleDate, 0),
		}

		// Before releasing the lock, notify all waiters that listen
		// for updates on the settled map.
		l.settledCond.Broadcast()
		l.settledMtx.Unlock()
	}
}

// CreateInvoice adds a new invoice to lnd.
//
// NOTE: This is part of the Wallet interface.
func (l *LndWallet) CreateInvoice(ctx context.Context,
	params *InvoiceParams) (*InvoiceHandle, error) {

	response, err := l.client.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:   params.Description,
		Value:  params.AmountSats,
		Expiry: int64(params.Expiry.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to add invoice: %w", err)
	}

	paymentHash, err := lntypes.MakeHash(response.RHash)
	if err != nil {
		return nil, fmt.Errorf("error parsing payment hash: %w", err)
	}

	return &InvoiceHandle{
		Invoice:     response.PaymentRequest,
		PaymentHash: paymentHash,
	}, nil
}

// WaitForPayment blocks until the invoice with the given payment hash
// settles or the timeout elapses.
//
// NOTE: This is part of the Wallet interface.
func (l *LndWallet) WaitForPayment(ctx context.Context,
	paymentHash lntypes.Hash, timeout time.Duration) (*Payment, error) {

	// Prevent the wallet from shutting down while we're still waiting
	// for updates.
	l.wg.Add(1)
	defer l.wg.Done()

	var (
		condWg         sync.WaitGroup
		doneChan       = make(chan struct{})
		timeoutReached bool
		payment        *Payment
	)

	// Spawn a goroutine that will signal the condition on timeout,
	// cancellation or shutdown. Without it, a waiter for an invoice that
	// never settles would block forever when there is no other activity.
	condWg.Add(1)
	go func() {
		defer condWg.Done()

		select {
		case <-doneChan:
		case <-time.After(timeout):
		case <-ctx.Done():
		case <-l.quit:
		}

		l.settledCond.L.Lock()
		timeoutReached = true
		l.settledCond.Broadcast()
		l.settledCond.L.Unlock()
	}()

	// The main goroutine blocks until the invoice settles or the allowed
	// time is up. The Wait() returns whenever a signal is broadcast.
	condWg.Add(1)
	go func() {
		defer condWg.Done()
		l.settledCond.L.Lock()

		payment = l.settled[paymentHash]
		for payment == nil && !timeoutReached {
			l.settledCond.Wait()

			// The Wait() above has re-acquired the lock so we can
			// safely access the settled map.
			payment = l.settled[paymentHash]
		}

		l.settledCond.L.Unlock()
		close(doneChan)
	}()

	condWg.Wait()

	if payment == nil {
		return nil, fmt.Errorf("invoice %v not settled before "+
			"timeout", paymentHash)
	}

	return payment, nil
}

// PayInvoice pays a bolt11 invoice through lnd.
//
// NOTE: This is part of the Wallet interface.
func (l *LndWallet) PayInvoice(ctx context.Context,
	invoice string) (*PayResult, error) {

	response, err := l.client.SendPaymentSync(ctx, &lnrpc.SendRequest{
		PaymentRequest: invoice,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to send payment: %w", err)
	}
	if response.PaymentError != "" {
		return nil, fmt.Errorf("payment failed: %s",
			response.PaymentError)
	}

	preimage, err := lntypes.MakePreimage(response.PaymentPreimage)
	if err != nil {
		return nil, fmt.Errorf("error parsing preimage: %w", err)
	}

	return &PayResult{Preimage: preimage}, nil
}

// Close shuts down the invoice subscription and waits for all waiters to
// drain.
//
// NOTE: This is part of the Wallet interface.
func (l *LndWallet) Close() error {
	l.stop.Do(func() {
		l.subCancel()
		close(l.quit)
	})
	l.wg.Wait()

	return nil
}
