package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

var defaultTimeout = 100 * time.Millisecond

type invoiceStreamMock struct {
	lnrpc.Lightning_SubscribeInvoicesClient

	updateChan chan *lnrpc.Invoice
	errChan    chan error
	quit       chan struct{}
}

func (i *invoiceStreamMock) Recv() (*lnrpc.Invoice, error) {
	select {
	case msg := <-i.updateChan:
		return msg, nil

	case err := <-i.errChan:
		return nil, err

	case <-i.quit:
		return nil, context.Canceled
	}
}

type mockInvoiceClient struct {
	invoices   []*lnrpc.Invoice
	updateChan chan *lnrpc.Invoice
	errChan    chan error
	quit       chan struct{}

	sendResponse *lnrpc.SendResponse
}

// SubscribeInvoices subscribes to updates on invoices.
func (m *mockInvoiceClient) SubscribeInvoices(_ context.Context,
	_ *lnrpc.InvoiceSubscription, _ ...grpc.CallOption) (
	lnrpc.Lightning_SubscribeInvoicesClient, error) {

	return &invoiceStreamMock{
		updateChan: m.updateChan,
		errChan:    m.errChan,
		quit:       m.quit,
	}, nil
}

// AddInvoice adds a new invoice to lnd.
func (m *mockInvoiceClient) AddInvoice(_ context.Context, in *lnrpc.Invoice,
	_ ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error) {

	hash := lntypes.Hash{11, 22, 33, byte(len(m.invoices))}
	in.RHash = hash[:]
	in.PaymentRequest = fmt.Sprintf("lnbc%d", in.Value)
	m.invoices = append(m.invoices, in)

	return &lnrpc.AddInvoiceResponse{
		RHash:          in.RHash,
		PaymentRequest: in.PaymentRequest,
		AddIndex:       uint64(len(m.invoices) - 1),
	}, nil
}

// SendPaymentSync pays an invoice.
func (m *mockInvoiceClient) SendPaymentSync(_ context.Context,
	_ *lnrpc.SendRequest, _ ...grpc.CallOption) (*lnrpc.SendResponse,
	error) {

	return m.sendResponse, nil
}

func (m *mockInvoiceClient) stop() {
	close(m.quit)
}

func newTestWallet(t *testing.T) (*LndWallet, *mockInvoiceClient) {
	t.Helper()

	mockClient := &mockInvoiceClient{
		updateChan: make(chan *lnrpc.Invoice),
		errChan:    make(chan error, 1),
		quit:       make(chan struct{}),
	}
	wallet, err := NewLndWalletFromClient(mockClient)
	require.NoError(t, err)

	return wallet, mockClient
}

func settledInvoice(preimage lntypes.Preimage) *lnrpc.Invoice {
	hash := preimage.Hash()
	return &lnrpc.Invoice{
		RHash:      hash[:],
		RPreimage:  preimage[:],
		State:      lnrpc.Invoice_SETTLED,
		SettleDate: time.Now().Unix(),
	}
}

// TestLndWalletCreateInvoice asserts that invoice creation passes the
// parameters through to lnd and hands back the parsed payment hash.
func TestLndWalletCreateInvoice(t *testing.T) {
	defer leaktest.Check(t)()

	wallet, mockClient := newTestWallet(t)
	defer func() {
		mockClient.stop()
		require.NoError(t, wallet.Close())
	}()

	handle, err := wallet.CreateInvoice(
		context.Background(), &InvoiceParams{
			AmountSats:  21,
			Description: "API access",
			Expiry:      5 * time.Minute,
		},
	)
	require.NoError(t, err)
	require.Equal(t, "lnbc21", handle.Invoice)

	require.Len(t, mockClient.invoices, 1)
	added := mockClient.invoices[0]
	require.Equal(t, "API access", added.Memo)
	require.Equal(t, int64(21), added.Value)
	require.Equal(t, int64(300), added.Expiry)
	require.Equal(t, added.RHash, handle.PaymentHash[:])
}

// TestLndWalletWaitForPayment asserts that a waiter is released when the
// settlement update arrives on the invoice subscription, that the settlement
// is remembered for late waiters and that unrelated invoices keep waiting
// until their timeout.
func TestLndWalletWaitForPayment(t *testing.T) {
	defer leaktest.Check(t)()

	wallet, mockClient := newTestWallet(t)
	defer func() {
		mockClient.stop()
		require.NoError(t, wallet.Close())
	}()

	preimage := lntypes.Preimage{1, 2, 3}
	hash := preimage.Hash()

	// Let the waiter block first, then settle.
	resultChan := make(chan *Payment, 1)
	errChan := make(chan error, 1)
	go func() {
		payment, err := wallet.WaitForPayment(
			context.Background(), hash, time.Second,
		)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- payment
	}()

	mockClient.updateChan <- settledInvoice(preimage)

	select {
	case payment := <-resultChan:
		require.True(t, payment.Paid)
		require.Equal(t, preimage, payment.Preimage)

	case err := <-errChan:
		t.Fatalf("unexpected error: %v", err)

	case <-time.After(time.Second):
		t.Fatalf("waiter not released before timeout")
	}

	// A waiter arriving after the settlement returns immediately.
	payment, err := wallet.WaitForPayment(
		context.Background(), hash, defaultTimeout,
	)
	require.NoError(t, err)
	require.Equal(t, preimage, payment.Preimage)

	// An invoice that never settles runs into the timeout.
	otherHash := lntypes.Hash{9, 9, 9}
	_, err = wallet.WaitForPayment(
		context.Background(), otherHash, defaultTimeout,
	)
	require.ErrorContains(t, err, "not settled before timeout")
}

// TestLndWalletWaitCanceled asserts that canceling the context releases a
// waiter before its timeout.
func TestLndWalletWaitCanceled(t *testing.T) {
	defer leaktest.Check(t)()

	wallet, mockClient := newTestWallet(t)
	defer func() {
		mockClient.stop()
		require.NoError(t, wallet.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := wallet.WaitForPayment(ctx, lntypes.Hash{1}, time.Minute)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Minute)
}

// TestLndWalletPayInvoice asserts the payment error surface of the sync
// send call.
func TestLndWalletPayInvoice(t *testing.T) {
	defer leaktest.Check(t)()

	wallet, mockClient := newTestWallet(t)
	defer func() {
		mockClient.stop()
		require.NoError(t, wallet.Close())
	}()

	preimage := lntypes.Preimage{4, 5, 6}
	mockClient.sendResponse = &lnrpc.SendResponse{
		PaymentPreimage: preimage[:],
	}
	result, err := wallet.PayInvoice(context.Background(), "lnbc1")
	require.NoError(t, err)
	require.Equal(t, preimage, result.Preimage)

	mockClient.sendResponse = &lnrpc.SendResponse{
		PaymentError: "no route",
	}
	_, err = wallet.PayInvoice(context.Background(), "lnbc1")
	require.ErrorContains(t, err, "no route")
}

// TestLndWalletClose asserts that Close drains the subscription goroutine
// and may be called more than once.
func TestLndWalletClose(t *testing.T) {
	defer leaktest.Check(t)()

	wallet, mockClient := newTestWallet(t)

	mockClient.stop()
	require.NoError(t, wallet.Close())
	require.NoError(t, wallet.Close())
}
