package points

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const (
	userIDValue      = 4242
	otherUserIDValue = 5151
	chargeIDValue    = "stxCharge-1"
	displayNameValue = "alice"
	errStoreMessage  = "store error"
)

var (
	errStoreFailure = errors.New(errStoreMessage)
	baseTime        = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
)

type stubStore struct {
	mutex    sync.Mutex
	claims   map[UserID]ClaimRecord
	invoices map[UserID]PendingInvoice
	receipts map[ChargeID]Receipt
	refunded map[ChargeID]bool

	getClaimError   error
	swapClaimError  error
	saveInvoiceErr  error
	insertErr       error
	getReceiptErr   error
	removeErr       error
	swapCalls       int
	rejectNextSwaps int
	beforeSwap      func()
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		claims:   map[UserID]ClaimRecord{},
		invoices: map[UserID]PendingInvoice{},
		receipts: map[ChargeID]Receipt{},
		refunded: map[ChargeID]bool{},
	}
}

func (store *stubStore) GetClaim(_ context.Context, userID UserID) (ClaimRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.getClaimError != nil {
		return ClaimRecord{}, store.getClaimError
	}
	record, ok := store.claims[userID]
	if !ok {
		return ClaimRecord{}, ErrClaimNotFound
	}
	return record, nil
}

func (store *stubStore) CompareAndSwapClaim(_ context.Context, expected time.Time, next ClaimRecord) (bool, error) {
	if store.beforeSwap != nil {
		store.beforeSwap()
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.swapCalls++
	if store.swapClaimError != nil {
		return false, store.swapClaimError
	}
	if store.rejectNextSwaps > 0 {
		store.rejectNextSwaps--
		return false, nil
	}
	current, ok := store.claims[next.UserID]
	if expected.IsZero() {
		if ok {
			return false, nil
		}
	} else if !ok || !current.LastClaimAt.Equal(expected) {
		return false, nil
	}
	store.claims[next.UserID] = next
	return true, nil
}

func (store *stubStore) SavePendingInvoice(_ context.Context, invoice PendingInvoice) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.saveInvoiceErr != nil {
		return store.saveInvoiceErr
	}
	store.invoices[invoice.UserID] = invoice
	return nil
}

func (store *stubStore) GetPendingInvoice(_ context.Context, userID UserID) (PendingInvoice, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	invoice, ok := store.invoices[userID]
	if !ok {
		return PendingInvoice{}, ErrPendingInvoiceNotFound
	}
	return invoice, nil
}

func (store *stubStore) InsertReceiptIfAbsent(_ context.Context, receipt Receipt) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.insertErr != nil {
		return false, store.insertErr
	}
	if _, exists := store.receipts[receipt.ChargeID]; exists || store.refunded[receipt.ChargeID] {
		return false, nil
	}
	store.receipts[receipt.ChargeID] = receipt
	return true, nil
}

func (store *stubStore) GetReceipt(_ context.Context, chargeID ChargeID) (Receipt, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.getReceiptErr != nil {
		return Receipt{}, store.getReceiptErr
	}
	receipt, ok := store.receipts[chargeID]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return receipt, nil
}

func (store *stubStore) RemoveReceipt(_ context.Context, chargeID ChargeID) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.removeErr != nil {
		return false, store.removeErr
	}
	if _, ok := store.receipts[chargeID]; !ok {
		return false, nil
	}
	delete(store.receipts, chargeID)
	store.refunded[chargeID] = true
	return true, nil
}

func (store *stubStore) receiptCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.receipts)
}

type stubGateway struct {
	mutex           sync.Mutex
	invoiceLink     string
	invoiceErr      error
	answerErr       error
	refundErr       error
	invoiceRequests []InvoiceLinkRequest
	answers         []string
	refunds         []ChargeID
}

func (gateway *stubGateway) CreateInvoiceLink(_ context.Context, request InvoiceLinkRequest) (string, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.invoiceRequests = append(gateway.invoiceRequests, request)
	if gateway.invoiceErr != nil {
		return "", gateway.invoiceErr
	}
	return gateway.invoiceLink, nil
}

func (gateway *stubGateway) AnswerPreCheckoutQuery(_ context.Context, queryID string, ok bool, _ string) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if ok {
		gateway.answers = append(gateway.answers, queryID)
	}
	return gateway.answerErr
}

func (gateway *stubGateway) RefundStarPayment(_ context.Context, _ UserID, chargeID ChargeID) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.refunds = append(gateway.refunds, chargeID)
	return gateway.refundErr
}

type recordingNotifier struct {
	mutex    sync.Mutex
	messages []Message
}

func (notifier *recordingNotifier) Notify(_ context.Context, message Message) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.messages = append(notifier.messages, message)
}

func (notifier *recordingNotifier) snapshot() []Message {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]Message(nil), notifier.messages...)
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) withStatus(operation string, status string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation && entry.Status == status {
			matched = append(matched, entry)
		}
	}
	return matched
}

type manualClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (clock *manualClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(duration)
}

func mustUserID(test *testing.T, raw int64) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustChargeID(test *testing.T, raw string) ChargeID {
	test.Helper()
	chargeID, err := NewChargeID(raw)
	if err != nil {
		test.Fatalf("charge id: %v", err)
	}
	return chargeID
}

func mustPointsAmount(test *testing.T, raw int64) PointsAmount {
	test.Helper()
	amount, err := NewPointsAmount(raw)
	if err != nil {
		test.Fatalf("points amount: %v", err)
	}
	return amount
}

func mustStarsPrice(test *testing.T, raw int64) StarsPrice {
	test.Helper()
	price, err := NewStarsPrice(raw)
	if err != nil {
		test.Fatalf("stars price: %v", err)
	}
	return price
}

func mustPayload(test *testing.T, userID UserID, amount int64, price int64, timestamp time.Time) string {
	test.Helper()
	payload, err := EncodeInvoicePayload(InvoicePayload{
		UserID:    userID,
		Amount:    mustPointsAmount(test, amount),
		Price:     mustStarsPrice(test, price),
		Timestamp: timestamp,
	})
	if err != nil {
		test.Fatalf("payload: %v", err)
	}
	return payload
}
