package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore     = "pgstore"
	errorSubjectClaim       = "claim"
	errorSubjectInvoice     = "invoice"
	errorSubjectReceipt     = "receipt"
	errorSubjectConnection  = "connection"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodePing           = "ping"
	errorCodeRemove         = "remove"
	errorCodeSave           = "save"
	errorCodeCompareAndSwap = "compare_and_swap"

	sqlSelectClaim = `
		select user_id, last_claim_unix_ms, display_name, claim_count
		from claim_records
		where user_id = $1
	`

	sqlInsertClaim = `
		insert into claim_records(user_id, last_claim_unix_ms, display_name, claim_count)
		values ($1, $2, $3, $4)
		on conflict (user_id) do nothing
	`

	sqlSwapClaim = `
		update claim_records
		set last_claim_unix_ms = $3, display_name = $4, claim_count = $5, updated_at = now()
		where user_id = $1 and last_claim_unix_ms = $2
	`

	sqlUpsertPendingInvoice = `
		insert into pending_invoices(user_id, invoice_id, amount_points, price_stars, created_unix_ms)
		values ($1, $2, $3, $4, $5)
		on conflict (user_id) do update set
			invoice_id = excluded.invoice_id,
			amount_points = excluded.amount_points,
			price_stars = excluded.price_stars,
			created_unix_ms = excluded.created_unix_ms
	`

	sqlSelectPendingInvoice = `
		select user_id, invoice_id::text, amount_points, price_stars, created_unix_ms
		from pending_invoices
		where user_id = $1
	`

	sqlInsertReceipt = `
		insert into receipts(charge_id, user_id, amount_points, price_stars, payload, settled_at)
		values ($1, $2, $3, $4, coalesce(nullif($5,''),'{}')::jsonb, $6)
		on conflict (charge_id) do nothing
	`

	sqlSelectLiveReceipt = `
		select charge_id, user_id, amount_points, price_stars, payload::text, settled_at
		from receipts
		where charge_id = $1 and refunded_at is null
	`

	sqlRefundReceipt = `
		update receipts
		set refunded_at = now()
		where charge_id = $1 and refunded_at is null
	`
)

// Store implements points.Store using a pgx connection pool (autocommit).
// Every mutation is a single conditional statement.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks a pooled connection.
func (store *Store) Ping(ctx context.Context) error {
	if err := store.pool.Ping(ctx); err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	return nil
}

func (store *Store) GetClaim(ctx context.Context, userID points.UserID) (points.ClaimRecord, error) {
	var (
		userIDValue     int64
		lastClaimUnixMs int64
		displayName     string
		claimCount      int64
	)
	err := store.pool.QueryRow(ctx, sqlSelectClaim, userID.Int64()).Scan(&userIDValue, &lastClaimUnixMs, &displayName, &claimCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeGet, points.ErrClaimNotFound)
	}
	if err != nil {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeGet, err)
	}
	parsedUserID, err := points.NewUserID(userIDValue)
	if err != nil {
		return points.ClaimRecord{}, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
	}
	return points.ClaimRecord{
		UserID:      parsedUserID,
		LastClaimAt: time.UnixMilli(lastClaimUnixMs).UTC(),
		DisplayName: displayName,
		ClaimCount:  claimCount,
	}, nil
}

func (store *Store) CompareAndSwapClaim(ctx context.Context, expectedLastClaimAt time.Time, next points.ClaimRecord) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expectedLastClaimAt.IsZero() {
		tag, err = store.pool.Exec(ctx, sqlInsertClaim, next.UserID.Int64(), next.LastClaimAt.UnixMilli(), next.DisplayName, next.ClaimCount)
	} else {
		tag, err = store.pool.Exec(ctx, sqlSwapClaim, next.UserID.Int64(), expectedLastClaimAt.UnixMilli(), next.LastClaimAt.UnixMilli(), next.DisplayName, next.ClaimCount)
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectClaim, errorCodeCompareAndSwap, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *Store) SavePendingInvoice(ctx context.Context, invoice points.PendingInvoice) error {
	_, err := store.pool.Exec(ctx, sqlUpsertPendingInvoice,
		invoice.UserID.Int64(),
		invoice.InvoiceID.String(),
		invoice.Amount.Int64(),
		invoice.Price.Int64(),
		invoice.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectInvoice, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetPendingInvoice(ctx context.Context, userID points.UserID) (points.PendingInvoice, error) {
	var (
		userIDValue   int64
		invoiceID     string
		amountPoints  int64
		priceStars    int64
		createdUnixMs int64
	)
	err := store.pool.QueryRow(ctx, sqlSelectPendingInvoice, userID.Int64()).Scan(&userIDValue, &invoiceID, &amountPoints, &priceStars, &createdUnixMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, points.ErrPendingInvoiceNotFound)
	}
	if err != nil {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, err)
	}
	invoice, err := mapPendingInvoice(userIDValue, invoiceID, amountPoints, priceStars, createdUnixMs)
	if err != nil {
		return points.PendingInvoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	return invoice, nil
}

func (store *Store) InsertReceiptIfAbsent(ctx context.Context, receipt points.Receipt) (bool, error) {
	tag, err := store.pool.Exec(ctx, sqlInsertReceipt,
		receipt.ChargeID.String(),
		receipt.UserID.Int64(),
		receipt.Amount.Int64(),
		receipt.Price.Int64(),
		receipt.Payload,
		receipt.SettledAt.UTC(),
	)
	if err != nil {
		return false, wrapStoreError(errorSubjectReceipt, errorCodeInsert, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *Store) GetReceipt(ctx context.Context, chargeID points.ChargeID) (points.Receipt, error) {
	var (
		chargeIDValue string
		userIDValue   int64
		amountPoints  int64
		priceStars    int64
		payload       string
		settledAt     time.Time
	)
	err := store.pool.QueryRow(ctx, sqlSelectLiveReceipt, chargeID.String()).Scan(&chargeIDValue, &userIDValue, &amountPoints, &priceStars, &payload, &settledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeGet, points.ErrReceiptNotFound)
	}
	if err != nil {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeGet, err)
	}
	receipt, err := mapReceipt(chargeIDValue, userIDValue, amountPoints, priceStars, payload, settledAt)
	if err != nil {
		return points.Receipt{}, wrapStoreError(errorSubjectReceipt, errorCodeInvalid, err)
	}
	return receipt, nil
}

func (store *Store) RemoveReceipt(ctx context.Context, chargeID points.ChargeID) (bool, error) {
	tag, err := store.pool.Exec(ctx, sqlRefundReceipt, chargeID.String())
	if err != nil {
		return false, wrapStoreError(errorSubjectReceipt, errorCodeRemove, err)
	}
	return tag.RowsAffected() == 1, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return points.WrapError(errorOperationStore, subject, code, err)
}

func mapPendingInvoice(userIDValue int64, invoiceIDValue string, amountPoints int64, priceStars int64, createdUnixMs int64) (points.PendingInvoice, error) {
	userID, err := points.NewUserID(userIDValue)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	invoiceID, err := points.ParseInvoiceID(invoiceIDValue)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	amount, err := points.NewPointsAmount(amountPoints)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	price, err := points.NewStarsPrice(priceStars)
	if err != nil {
		return points.PendingInvoice{}, err
	}
	return points.PendingInvoice{
		InvoiceID: invoiceID,
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		CreatedAt: time.UnixMilli(createdUnixMs).UTC(),
	}, nil
}

func mapReceipt(chargeIDValue string, userIDValue int64, amountPoints int64, priceStars int64, payload string, settledAt time.Time) (points.Receipt, error) {
	chargeID, err := points.NewChargeID(chargeIDValue)
	if err != nil {
		return points.Receipt{}, err
	}
	userID, err := points.NewUserID(userIDValue)
	if err != nil {
		return points.Receipt{}, err
	}
	amount, err := points.NewPointsAmount(amountPoints)
	if err != nil {
		return points.Receipt{}, err
	}
	price, err := points.NewStarsPrice(priceStars)
	if err != nil {
		return points.Receipt{}, err
	}
	return points.Receipt{
		ChargeID:  chargeID,
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		Payload:   payload,
		SettledAt: settledAt.UTC(),
	}, nil
}

var _ points.Store = (*Store)(nil)
