package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

// mockInvoice is the in-memory record of one invoice created on the mock.
type mockInvoice struct {
	preimage lntypes.Preimage
	handle   *InvoiceHandle
	params   InvoiceParams
}

// MockWallet is an in-memory Wallet for tests. Invoices are generated
// deterministically from a counter and settle only when the test calls
// Settle, which unblocks any WaitForPayment call for that hash.
type MockWallet struct {
	// CreateErr, if set, is returned by the next CreateInvoice call and
	// cleared afterwards.
	CreateErr error

	mtx      sync.Mutex
	counter  uint64
	invoices map[lntypes.Hash]*mockInvoice
	byBolt11 map[string]*mockInvoice
	settled  map[lntypes.Hash]*Payment
	waiters  map[lntypes.Hash][]chan *Payment
}

// A compile time flag to ensure the MockWallet satisfies the Wallet
// interface.
var _ Wallet = (*MockWallet)(nil)

// NewMockWallet creates an empty mock wallet.
func NewMockWallet() *MockWallet {
	return &MockWallet{
		invoices: make(map[lntypes.Hash]*mockInvoice),
		byBolt11: make(map[string]*mockInvoice),
		settled:  make(map[lntypes.Hash]*Payment),
		waiters:  make(map[lntypes.Hash][]chan *Payment),
	}
}

// CreateInvoice creates a deterministic fake invoice.
//
// NOTE: This is part of the Wallet interface.
func (m *MockWallet) CreateInvoice(_ context.Context,
	params *InvoiceParams) (*InvoiceHandle, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.CreateErr != nil {
		err := m.CreateErr
		m.CreateErr = nil
		return nil, err
	}

	m.counter++

	var preimage lntypes.Preimage
	binary.BigEndian.PutUint64(preimage[:8], m.counter)
	hash := lntypes.Hash(sha256.Sum256(preimage[:]))

	handle := &InvoiceHandle{
		Invoice:     fmt.Sprintf("lnmock%d%s", params.AmountSats, hash),
		PaymentHash: hash,
	}
	invoice := &mockInvoice{
		preimage: preimage,
		handle:   handle,
		params:   *params,
	}
	m.invoices[hash] = invoice
	m.byBolt11[handle.Invoice] = invoice

	return handle, nil
}

// Settle marks the invoice with the given hash as paid and wakes up all
// waiters. It returns the preimage so tests can present it as proof of
// payment.
func (m *MockWallet) Settle(hash lntypes.Hash) (lntypes.Preimage, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	invoice, ok := m.invoices[hash]
	if !ok {
		return lntypes.Preimage{}, fmt.Errorf("unknown invoice %v",
			hash)
	}

	payment := &Payment{
		Paid:      true,
		Preimage:  invoice.preimage,
		SettledAt: time.Now(),
	}
	m.settled[hash] = payment

	for _, waiter := range m.waiters[hash] {
		waiter <- payment
	}
	delete(m.waiters, hash)

	return invoice.preimage, nil
}

// WaitForPayment blocks until Settle is called for the hash or the timeout
// elapses.
//
// NOTE: This is part of the Wallet interface.
func (m *MockWallet) WaitForPayment(ctx context.Context,
	paymentHash lntypes.Hash, timeout time.Duration) (*Payment, error) {

	m.mtx.Lock()
	if payment, ok := m.settled[paymentHash]; ok {
		m.mtx.Unlock()
		return payment, nil
	}

	waiter := make(chan *Payment, 1)
	m.waiters[paymentHash] = append(m.waiters[paymentHash], waiter)
	m.mtx.Unlock()

	select {
	case payment := <-waiter:
		return payment, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("invoice %v not settled before "+
			"timeout", paymentHash)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PayInvoice settles the referenced invoice as if it was paid over the
// network and returns its preimage.
//
// NOTE: This is part of the Wallet interface.
func (m *MockWallet) PayInvoice(_ context.Context,
	invoice string) (*PayResult, error) {

	m.mtx.Lock()
	record, ok := m.byBolt11[invoice]
	m.mtx.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown invoice %s", invoice)
	}

	if _, err := m.Settle(record.handle.PaymentHash); err != nil {
		return nil, err
	}

	return &PayResult{Preimage: record.preimage}, nil
}

// InvoiceParams returns the parameters the invoice with the given hash was
// created with.
func (m *MockWallet) InvoiceParams(hash lntypes.Hash) (InvoiceParams, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	invoice, ok := m.invoices[hash]
	if !ok {
		return InvoiceParams{}, fmt.Errorf("unknown invoice %v", hash)
	}

	return invoice.params, nil
}

// NumInvoices returns the number of invoices created so far.
func (m *MockWallet) NumInvoices() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.invoices)
}

// Close implements the Wallet interface, the mock holds no resources.
//
// NOTE: This is part of the Wallet interface.
func (m *MockWallet) Close() error {
	return nil
}
