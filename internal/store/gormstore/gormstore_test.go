package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/starpoints/internal/store/storetest"
	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(test *testing.T) *Store {
	test.Helper()
	databasePath := filepath.Join(test.TempDir(), "points.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	store := New(db)
	if err := store.AutoMigrate(context.Background()); err != nil {
		test.Fatalf("auto migrate: %v", err)
	}
	return store
}

func TestStoreConformance(test *testing.T) {
	storetest.Run(test, func(test *testing.T) points.Store {
		return newSQLiteStore(test)
	})
}

func TestRemoveReceiptKeepsTombstone(test *testing.T) {
	store := newSQLiteStore(test)
	ctx := context.Background()
	chargeID, err := points.NewChargeID("stxTombstone")
	if err != nil {
		test.Fatalf("charge id: %v", err)
	}
	userID, err := points.NewUserID(77)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	receipt := points.Receipt{ChargeID: chargeID, UserID: userID, Amount: 10, Price: 1, Payload: `{"userId":77}`}
	if _, err := store.InsertReceiptIfAbsent(ctx, receipt); err != nil {
		test.Fatalf("insert: %v", err)
	}
	if _, err := store.RemoveReceipt(ctx, chargeID); err != nil {
		test.Fatalf("remove: %v", err)
	}
	var row Receipt
	if err := store.db.Where("charge_id = ?", chargeID.String()).Take(&row).Error; err != nil {
		test.Fatalf("tombstone row: %v", err)
	}
	if row.RefundedAt == nil {
		test.Fatalf("expected refunded_at to be set")
	}
}

func TestStoreErrorsCarryOperationCodes(test *testing.T) {
	store := newSQLiteStore(test)
	sqlDB, err := store.db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()
	userID, err := points.NewUserID(1)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}

	_, err = store.GetClaim(context.Background(), userID)
	var operationError points.OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("expected OperationError, got %v", err)
	}
	if operationError.Subject() != errorSubjectClaim || operationError.Code() != errorCodeGet {
		test.Fatalf("unexpected error metadata %s.%s", operationError.Subject(), operationError.Code())
	}
	if errors.Is(err, points.ErrClaimNotFound) {
		test.Fatalf("a closed database must not look like a missing claim")
	}
	if store.Ping(context.Background()) == nil {
		test.Fatalf("expected ping failure on a closed database")
	}
}

func TestIsUniqueViolation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm duplicated key", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres unique violation", err: &pgconn.PgError{Code: pgUniqueViolationCode}, want: true},
		{name: "postgres other error", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, testCase := range testCases {
		if got := isUniqueViolation(testCase.err); got != testCase.want {
			test.Fatalf("%s: expected %t, got %t", testCase.name, testCase.want, got)
		}
	}
}
