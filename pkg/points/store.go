package points

import (
	"context"
	"time"
)

// ClaimStore persists the per-user claim ledger.
type ClaimStore interface {
	// GetClaim returns ErrClaimNotFound when the user has never claimed.
	GetClaim(ctx context.Context, userID UserID) (ClaimRecord, error)
	// CompareAndSwapClaim writes next only when the stored LastClaimAt equals expectedLastClaimAt.
	// A zero expectedLastClaimAt means the record must not exist yet.
	CompareAndSwapClaim(ctx context.Context, expectedLastClaimAt time.Time, next ClaimRecord) (bool, error)
}

// InvoiceStore keeps the last invoice session per user.
type InvoiceStore interface {
	SavePendingInvoice(ctx context.Context, invoice PendingInvoice) error
	// GetPendingInvoice returns ErrPendingInvoiceNotFound when no session exists.
	GetPendingInvoice(ctx context.Context, userID UserID) (PendingInvoice, error)
}

// ReceiptStore keeps settled payments keyed by charge id.
type ReceiptStore interface {
	// InsertReceiptIfAbsent reports false when the charge id was already settled or refunded.
	InsertReceiptIfAbsent(ctx context.Context, receipt Receipt) (bool, error)
	// GetReceipt returns ErrReceiptNotFound for unknown or refunded charges.
	GetReceipt(ctx context.Context, chargeID ChargeID) (Receipt, error)
	// RemoveReceipt reports false when no live receipt existed.
	RemoveReceipt(ctx context.Context, chargeID ChargeID) (bool, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	ClaimStore
	InvoiceStore
	ReceiptStore
	Ping(ctx context.Context) error
}
