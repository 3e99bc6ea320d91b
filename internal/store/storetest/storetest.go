// Package storetest holds the behavioural checks every points.Store must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
)

const (
	racers           = 8
	userIDValue      = 1001
	otherUserIDValue = 2002
	chargeIDValue    = "stxConformance-1"
	payloadValue     = `{"userId":1001,"amount":250,"price":15,"timestamp":1767225600000}`
)

var baseTime = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// Factory returns a fresh, empty store for one subtest.
type Factory func(test *testing.T) points.Store

// Run exercises the claim, invoice, and receipt ledgers of the store built by factory.
func Run(test *testing.T, factory Factory) {
	test.Run("ping", func(test *testing.T) {
		if err := factory(test).Ping(context.Background()); err != nil {
			test.Fatalf("ping: %v", err)
		}
	})
	test.Run("claim compare and swap", func(test *testing.T) { testClaimCompareAndSwap(test, factory(test)) })
	test.Run("claim insert race", func(test *testing.T) { testClaimInsertRace(test, factory(test)) })
	test.Run("pending invoice last write wins", func(test *testing.T) { testPendingInvoices(test, factory(test)) })
	test.Run("receipt lifecycle", func(test *testing.T) { testReceiptLifecycle(test, factory(test)) })
	test.Run("receipt insert race", func(test *testing.T) { testReceiptInsertRace(test, factory(test)) })
}

func testClaimCompareAndSwap(test *testing.T, store points.Store) {
	ctx := context.Background()
	userID := mustUserID(test, userIDValue)

	if _, err := store.GetClaim(ctx, userID); !errors.Is(err, points.ErrClaimNotFound) {
		test.Fatalf("expected ErrClaimNotFound, got %v", err)
	}
	first := points.ClaimRecord{UserID: userID, LastClaimAt: baseTime.Add(123 * time.Millisecond), DisplayName: "alice", ClaimCount: 1}
	mustSwap(test, store, time.Time{}, first, true)
	mustSwap(test, store, time.Time{}, first, false)

	stored, err := store.GetClaim(ctx, userID)
	if err != nil {
		test.Fatalf("get claim: %v", err)
	}
	if !stored.LastClaimAt.Equal(first.LastClaimAt) || stored.DisplayName != "alice" || stored.ClaimCount != 1 {
		test.Fatalf("unexpected stored claim %+v", stored)
	}

	second := points.ClaimRecord{UserID: userID, LastClaimAt: first.LastClaimAt.Add(points.ClaimCooldown), DisplayName: "alice", ClaimCount: 2}
	mustSwap(test, store, first.LastClaimAt.Add(time.Millisecond), second, false)
	mustSwap(test, store, stored.LastClaimAt, second, true)
	mustSwap(test, store, stored.LastClaimAt, second, false)

	stored, err = store.GetClaim(ctx, userID)
	if err != nil {
		test.Fatalf("get claim: %v", err)
	}
	if !stored.LastClaimAt.Equal(second.LastClaimAt) || stored.ClaimCount != 2 {
		test.Fatalf("expected second claim, got %+v", stored)
	}
	if _, err := store.GetClaim(ctx, mustUserID(test, otherUserIDValue)); !errors.Is(err, points.ErrClaimNotFound) {
		test.Fatalf("claims must be keyed per user, got %v", err)
	}
}

func testClaimInsertRace(test *testing.T, store points.Store) {
	userID := mustUserID(test, userIDValue)
	wins := race(test, func(index int) (bool, error) {
		record := points.ClaimRecord{UserID: userID, LastClaimAt: baseTime.Add(time.Duration(index) * time.Millisecond), ClaimCount: 1}
		return store.CompareAndSwapClaim(context.Background(), time.Time{}, record)
	})
	if wins != 1 {
		test.Fatalf("expected exactly one winning insert, got %d", wins)
	}
}

func testPendingInvoices(test *testing.T, store points.Store) {
	ctx := context.Background()
	userID := mustUserID(test, userIDValue)

	if _, err := store.GetPendingInvoice(ctx, userID); !errors.Is(err, points.ErrPendingInvoiceNotFound) {
		test.Fatalf("expected ErrPendingInvoiceNotFound, got %v", err)
	}
	first := points.PendingInvoice{InvoiceID: points.NewInvoiceID(), UserID: userID, Amount: 100, Price: 5, CreatedAt: baseTime}
	second := points.PendingInvoice{InvoiceID: points.NewInvoiceID(), UserID: userID, Amount: 500, Price: 20, CreatedAt: baseTime.Add(time.Minute)}
	for _, invoice := range []points.PendingInvoice{first, second} {
		if err := store.SavePendingInvoice(ctx, invoice); err != nil {
			test.Fatalf("save invoice: %v", err)
		}
	}
	stored, err := store.GetPendingInvoice(ctx, userID)
	if err != nil {
		test.Fatalf("get invoice: %v", err)
	}
	if stored.InvoiceID != second.InvoiceID || stored.Amount != 500 || stored.Price != 20 || !stored.CreatedAt.Equal(second.CreatedAt) {
		test.Fatalf("expected last invoice, got %+v", stored)
	}
}

func testReceiptLifecycle(test *testing.T, store points.Store) {
	ctx := context.Background()
	receipt := newReceipt(test)

	if _, err := store.GetReceipt(ctx, receipt.ChargeID); !errors.Is(err, points.ErrReceiptNotFound) {
		test.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
	mustInsert(test, store, receipt, true)
	duplicate := receipt
	duplicate.Amount = 999
	mustInsert(test, store, duplicate, false)

	stored, err := store.GetReceipt(ctx, receipt.ChargeID)
	if err != nil {
		test.Fatalf("get receipt: %v", err)
	}
	if stored.UserID != receipt.UserID || stored.Amount != receipt.Amount || stored.Price != receipt.Price || !stored.SettledAt.Equal(receipt.SettledAt) {
		test.Fatalf("unexpected receipt %+v", stored)
	}

	mustRemove(test, store, receipt.ChargeID, true)
	mustRemove(test, store, receipt.ChargeID, false)
	if _, err := store.GetReceipt(ctx, receipt.ChargeID); !errors.Is(err, points.ErrReceiptNotFound) {
		test.Fatalf("expected refunded receipt to be gone, got %v", err)
	}
	mustInsert(test, store, receipt, false)
}

func testReceiptInsertRace(test *testing.T, store points.Store) {
	receipt := newReceipt(test)
	wins := race(test, func(int) (bool, error) {
		return store.InsertReceiptIfAbsent(context.Background(), receipt)
	})
	if wins != 1 {
		test.Fatalf("expected exactly one winning insert, got %d", wins)
	}
}

func race(test *testing.T, attempt func(index int) (bool, error)) int {
	test.Helper()
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		wins      int
		failures  []error
	)
	start := make(chan struct{})
	for index := 0; index < racers; index++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			<-start
			won, err := attempt(index)
			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if won {
				wins++
			}
		}(index)
	}
	close(start)
	waitGroup.Wait()
	if len(failures) > 0 {
		test.Fatalf("racing attempts failed: %v", failures)
	}
	return wins
}

func newReceipt(test *testing.T) points.Receipt {
	test.Helper()
	chargeID, err := points.NewChargeID(chargeIDValue)
	if err != nil {
		test.Fatalf("charge id: %v", err)
	}
	return points.Receipt{
		ChargeID:  chargeID,
		UserID:    mustUserID(test, userIDValue),
		Amount:    250,
		Price:     15,
		Payload:   payloadValue,
		SettledAt: baseTime,
	}
}

func mustUserID(test *testing.T, raw int64) points.UserID {
	test.Helper()
	userID, err := points.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustSwap(test *testing.T, store points.Store, expected time.Time, next points.ClaimRecord, want bool) {
	test.Helper()
	swapped, err := store.CompareAndSwapClaim(context.Background(), expected, next)
	if err != nil {
		test.Fatalf("compare and swap: %v", err)
	}
	if swapped != want {
		test.Fatalf("compare and swap from %v: expected %t, got %t", expected, want, swapped)
	}
}

func mustInsert(test *testing.T, store points.Store, receipt points.Receipt, want bool) {
	test.Helper()
	inserted, err := store.InsertReceiptIfAbsent(context.Background(), receipt)
	if err != nil {
		test.Fatalf("insert receipt: %v", err)
	}
	if inserted != want {
		test.Fatalf("insert receipt: expected %t, got %t", want, inserted)
	}
}

func mustRemove(test *testing.T, store points.Store, chargeID points.ChargeID, want bool) {
	test.Helper()
	removed, err := store.RemoveReceipt(context.Background(), chargeID)
	if err != nil {
		test.Fatalf("remove receipt: %v", err)
	}
	if removed != want {
		test.Fatalf("remove receipt: expected %t, got %t", want, removed)
	}
}
