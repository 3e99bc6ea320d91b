// Package memstore keeps the points ledgers in process memory.
package memstore

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
)

const (
	shardCount          = 32
	errorOperationStore = "memstore"
	errorSubjectClaim   = "claim"
	errorSubjectInvoice = "invoice"
	errorSubjectReceipt = "receipt"
	errorCodeGet        = "get"
)

// Store implements points.Store with per-key sharded locks. Nothing survives a restart.
type Store struct {
	shards [shardCount]shard
}

type shard struct {
	mutex    sync.Mutex
	claims   map[points.UserID]points.ClaimRecord
	invoices map[points.UserID]points.PendingInvoice
	receipts map[points.ChargeID]points.Receipt
	refunded map[points.ChargeID]struct{}
}

// New returns an empty Store.
func New() *Store {
	store := &Store{}
	for index := range store.shards {
		bucket := &store.shards[index]
		bucket.claims = map[points.UserID]points.ClaimRecord{}
		bucket.invoices = map[points.UserID]points.PendingInvoice{}
		bucket.receipts = map[points.ChargeID]points.Receipt{}
		bucket.refunded = map[points.ChargeID]struct{}{}
	}
	return store
}

// Ping always succeeds.
func (store *Store) Ping(context.Context) error {
	return nil
}

func (store *Store) GetClaim(_ context.Context, userID points.UserID) (points.ClaimRecord, error) {
	bucket := store.shardFor(userID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	record, ok := bucket.claims[userID]
	if !ok {
		return points.ClaimRecord{}, points.WrapError(errorOperationStore, errorSubjectClaim, errorCodeGet, points.ErrClaimNotFound)
	}
	return record, nil
}

func (store *Store) CompareAndSwapClaim(_ context.Context, expectedLastClaimAt time.Time, next points.ClaimRecord) (bool, error) {
	bucket := store.shardFor(next.UserID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	current, exists := bucket.claims[next.UserID]
	if expectedLastClaimAt.IsZero() {
		if exists {
			return false, nil
		}
	} else if !exists || current.LastClaimAt.UnixMilli() != expectedLastClaimAt.UnixMilli() {
		return false, nil
	}
	bucket.claims[next.UserID] = next
	return true, nil
}

func (store *Store) SavePendingInvoice(_ context.Context, invoice points.PendingInvoice) error {
	bucket := store.shardFor(invoice.UserID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	bucket.invoices[invoice.UserID] = invoice
	return nil
}

func (store *Store) GetPendingInvoice(_ context.Context, userID points.UserID) (points.PendingInvoice, error) {
	bucket := store.shardFor(userID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	invoice, ok := bucket.invoices[userID]
	if !ok {
		return points.PendingInvoice{}, points.WrapError(errorOperationStore, errorSubjectInvoice, errorCodeGet, points.ErrPendingInvoiceNotFound)
	}
	return invoice, nil
}

func (store *Store) InsertReceiptIfAbsent(_ context.Context, receipt points.Receipt) (bool, error) {
	bucket := store.shardFor(receipt.ChargeID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	if _, exists := bucket.receipts[receipt.ChargeID]; exists {
		return false, nil
	}
	if _, refunded := bucket.refunded[receipt.ChargeID]; refunded {
		return false, nil
	}
	bucket.receipts[receipt.ChargeID] = receipt
	return true, nil
}

func (store *Store) GetReceipt(_ context.Context, chargeID points.ChargeID) (points.Receipt, error) {
	bucket := store.shardFor(chargeID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	receipt, ok := bucket.receipts[chargeID]
	if !ok {
		return points.Receipt{}, points.WrapError(errorOperationStore, errorSubjectReceipt, errorCodeGet, points.ErrReceiptNotFound)
	}
	return receipt, nil
}

func (store *Store) RemoveReceipt(_ context.Context, chargeID points.ChargeID) (bool, error) {
	bucket := store.shardFor(chargeID.String())
	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()
	if _, ok := bucket.receipts[chargeID]; !ok {
		return false, nil
	}
	delete(bucket.receipts, chargeID)
	bucket.refunded[chargeID] = struct{}{}
	return true, nil
}

// Claims and invoices shard by user id, receipts by charge id. Each map is only
// touched under the lock of the shard its own key hashes to.
func (store *Store) shardFor(key string) *shard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return &store.shards[hasher.Sum32()%shardCount]
}

var _ points.Store = (*Store)(nil)
