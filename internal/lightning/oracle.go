// Package lightning abstracts the external Lightning payment provider
// behind two operations: mint an invoice and check whether it is paid.
// Two REST backends are provided, LNbits and LND.
package lightning

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProvider is returned when the provider is unreachable or
	// replies with malformed or unsuccessful data.
	ErrProvider = errors.New("lightning provider error")
	// ErrProviderTimeout is returned when the provider does not reply
	// within the client's deadline.
	ErrProviderTimeout = errors.New("lightning provider timeout")
)

// Invoice is a freshly minted payment request.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
}

// InvoiceStatus is the provider's view of an invoice. PaidAmount is
// reported in whatever unit the backend uses (LNbits reports msat,
// LND reports sats); the deposit reconciler normalizes it.
type InvoiceStatus struct {
	Paid       bool
	PaidAmount int64
}

// Oracle is the payment provider contract. Both operations must
// return within a bounded time; implementations surface ErrProvider
// or ErrProviderTimeout instead of blocking the caller.
type Oracle interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error)
	InvoiceStatus(ctx context.Context, paymentHash string) (InvoiceStatus, error)
}

// DefaultTimeout bounds a single round trip to the provider.
const DefaultTimeout = 10 * time.Second
