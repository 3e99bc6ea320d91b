package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClaimRecord mirrors the claim_records table.
type ClaimRecord struct {
	UserID          int64     `gorm:"primaryKey;autoIncrement:false"`
	LastClaimUnixMs int64     `gorm:"not null"`
	DisplayName     string    `gorm:"not null;default:''"`
	ClaimCount      int64     `gorm:"not null;default:0"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (ClaimRecord) TableName() string { return "claim_records" }

// PendingInvoice mirrors the pending_invoices table.
type PendingInvoice struct {
	UserID        int64  `gorm:"primaryKey;autoIncrement:false"`
	InvoiceID     string `gorm:"type:uuid;not null"`
	AmountPoints  int64  `gorm:"not null"`
	PriceStars    int64  `gorm:"not null"`
	CreatedUnixMs int64  `gorm:"not null"`
}

func (PendingInvoice) TableName() string { return "pending_invoices" }

func (invoice *PendingInvoice) BeforeCreate(tx *gorm.DB) error {
	if invoice.InvoiceID == "" {
		invoice.InvoiceID = uuid.NewString()
	}
	return nil
}

// Receipt mirrors the receipts table. Refunded rows keep their charge id as a tombstone.
type Receipt struct {
	ChargeID     string         `gorm:"primaryKey"`
	UserID       int64          `gorm:"not null;index:idx_receipts_user"`
	AmountPoints int64          `gorm:"not null"`
	PriceStars   int64          `gorm:"not null"`
	Payload      datatypes.JSON `gorm:"not null"`
	SettledAt    time.Time      `gorm:"not null"`
	RefundedAt   *time.Time     `gorm:""`
}

func (Receipt) TableName() string { return "receipts" }
