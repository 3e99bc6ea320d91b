package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPayloadJSON      = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "gormstore"
	errorSubjectClaim       = "claim"
	errorSubjectInvoice     = "invoice"
	errorSubjectReceipt     = "receipt"
	errorSubjectConnection  = "connection"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeMigrate        = "migrate"
	errorCodePing           = "ping"
	errorCodeRemove         = "remove"
	errorCodeSave           = "save"
	errorCodeCompareAndSwap = "compare_and_swap"
)

// Store implements points.Store using GORM.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, nowFn: time.Now}
}

// AutoMigrate creates or updates the tables for the gorm models.
func (store *Store) AutoMigrate(ctx context.Context) error {
	err := store.db.WithContext(ctx).AutoMigrate(&ClaimRecord{}, &PendingInvoice{}, &Receipt{})
	if err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodeMigrate, err)
	}
	return nil
}

// Ping checks the underlying connection.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	return nil
}

func (store *Store) GetClaim(ctx context.Context, userID points.UserID) (points.ClaimRecord, error) {
	var model ClaimRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.Int64()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeGet, points.ErrClaimNotFound)
	}
	if err != nil {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeGet, err)
	}
	record, err := mapClaimRecord(model)
	if err != nil {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	return record, nil
}

func (store *Store) CompareAndSwapClaim(ctx context.Context, expectedLastClaimAt time.Time, next points.ClaimRecord) (bool, error) {
	model := ClaimRecord{
		UserID:          next.UserID.Int64(),
		LastClaimUnixMs: next.LastClaimAt.UnixMilli(),
		DisplayName:     next.DisplayName,
		ClaimCount:      next.ClaimCount,
		UpdatedAt:       store.nowFn().UTC(),
	}
	if expectedLastClaimAt.IsZero() {
		err := store.db.WithContext(ctx).Create(&model).Error
		if isUniqueViolation(err) {
			return false, nil
		}
		if err != nil {
			return false, wrapStoreError(errorSubjectClaim, errorCodeInsert, err)
		}
		return true, nil
	}
	result := store.db.WithContext(ctx).
		Model(&ClaimRecord{}).
		Where("user_id = ? AND last_claim_unix_ms = ?", model.UserID, expectedLastClaimAt.UnixMilli()).
		Updates(map[string]interface{}{
			"last_claim_unix_ms": model.LastClaimUnixMs,
			"display_name":       model.DisplayName,
			"claim_count":        model.ClaimCount,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectClaim, errorCodeCompareAndSwap, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) SavePendingInvoice(ctx context.Context, invoice points.PendingInvoice) error {
	model := PendingInvoice{
		UserID:        invoice.UserID.Int64(),
		InvoiceID:     invoice.InvoiceID.String(),
		AmountPoints:  invoice.Amount.Int64(),
		PriceStars:    invoice.Price.Int64(),
		CreatedUnixMs: invoice.CreatedAt.UnixMilli(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"invoice_id", "amount_points", "price_stars", "created_unix_ms"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectInvoice, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetPendingInvoice(ctx context.Context, userID points.UserID) (points.PendingInvoice, error) {
	var model PendingInvoice
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.Int64()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, points.ErrPendingInvoiceNotFound)
	}
	if err != nil {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, err)
	}
	invoice, err := mapPendingInvoice(model)
	if err != nil {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	return invoice, nil
}

func (store *Store) InsertReceiptIfAbsent(ctx context.Context, receipt points.Receipt) (bool, error) {
	model := Receipt{
		ChargeID:     receipt.ChargeID.String(),
		UserID:       receipt.UserID.Int64(),
		AmountPoints: receipt.Amount.Int64(),
		PriceStars:   receipt.Price.Int64(),
		Payload:      datatypesJSON(receipt.Payload),
		SettledAt:    receipt.SettledAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectReceipt, errorCodeInsert, err)
	}
	return true, nil
}

func (store *Store) GetReceipt(ctx context.Context, chargeID points.ChargeID) (points.Receipt, error) {
	var model Receipt
	err := store.db.WithContext(ctx).
		Where("charge_id = ? AND refunded_at IS NULL", chargeID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeGet, points.ErrReceiptNotFound)
	}
	if err != nil {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeGet, err)
	}
	receipt, err := mapReceipt(model)
	if err != nil {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeInvalid, err)
	}
	return receipt, nil
}

func (store *Store) RemoveReceipt(ctx context.Context, chargeID points.ChargeID) (bool, error) {
	refundedAt := store.nowFn().UTC()
	result := store.db.WithContext(ctx).
		Model(&Receipt{}).
		Where("charge_id = ? AND refunded_at IS NULL", chargeID.String()).
		Update("refunded_at", refundedAt)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectReceipt, errorCodeRemove, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

func mapClaimRecord(model ClaimRecord) (points.ClaimRecord, error) {
	userID, err := points.NewUserID(model.UserID)
	if err != nil {
		return points.ClaimRecord{}, err
	}
	return points.ClaimRecord{
		UserID:      userID,
		LastClaimAt: time.UnixMilli(model.LastClaimUnixMs).UTC(),
		DisplayName: model.DisplayName,
		ClaimCount:  model.ClaimCount,
	}, nil
}

func mapPendingInvoice(model PendingInvoice) (points.PendingInvoice, error) {
	userID, err := points.NewUserID(model.UserID)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	invoiceID, err := points.ParseInvoiceID(model.InvoiceID)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	amount, err := points.NewPointsAmount(model.AmountPoints)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	price, err := points.NewStarsPrice(model.PriceStars)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	return points.PendingInvoice{
		InvoiceID: invoiceID,
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		CreatedAt: time.UnixMilli(model.CreatedUnixMs).UTC(),
	}, nil
}

func mapReceipt(model Receipt) (points.Receipt, error) {
	chargeID, err := points.NewChargeID(model.ChargeID)
	if err != nil {
		return points.Receipt{}, err
	}
	userID, err := points.NewUserID(model.UserID)
	if err != nil {
		return points.Receipt{}, err
	}
	amount, err := points.NewPointsAmount(model.AmountPoints)
	if err != nil {
		return points.Receipt{}, err
	}
	price, err := points.NewStarsPrice(model.PriceStars)
	if err != nil {
		return points.Receipt{}, err
	}
	return points.Receipt{
		ChargeID:  chargeID,
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		Payload:   string(model.Payload),
		SettledAt: model.SettledAt.UTC(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultPayloadJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
