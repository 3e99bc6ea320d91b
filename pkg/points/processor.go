package points

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RefundRequest is a user asking to reverse one of their payments.
type RefundRequest struct {
	Requester UserID
	ChatID    int64
	ChargeID  string
}

// PaymentProcessor drives the payment lifecycle from gateway events.
type PaymentProcessor struct {
	receipts ReceiptStore
	invoices InvoiceStore
	gateway  Gateway
	notifier Notifier
	nowFn    func() time.Time
	logger   OperationLogger
	appURL   string
}

// NewPaymentProcessor wires a PaymentProcessor.
func NewPaymentProcessor(receipts ReceiptStore, gateway Gateway, notifier Notifier, now func() time.Time, options ...ServiceOption) (*PaymentProcessor, error) {
	if receipts == nil {
		return nil, fmt.Errorf("%w: receipt store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(options)
	return &PaymentProcessor{
		receipts: receipts,
		invoices: resolved.invoiceLookup,
		gateway:  gateway,
		notifier: notifier,
		nowFn:    now,
		logger:   resolved.logger,
		appURL:   resolved.appURL,
	}, nil
}

// Process dispatches one decoded event. Denials and malformed input are answered to the
// user and return nil; only failures worth a gateway redelivery are returned.
func (processor *PaymentProcessor) Process(ctx context.Context, event Event) error {
	switch event.Kind {
	case EventPreCheckout:
		if event.PreCheckout == nil {
			return processor.dropMalformed(ctx, "pre-checkout event without body")
		}
		return processor.HandlePreCheckout(ctx, *event.PreCheckout)
	case EventPayment:
		if event.Payment == nil {
			return processor.dropMalformed(ctx, "payment event without body")
		}
		_, err := processor.HandlePayment(ctx, *event.Payment)
		if errors.Is(err, ErrMalformedEvent) {
			return nil
		}
		return err
	case EventCommand:
		if event.Command == nil {
			return processor.dropMalformed(ctx, "command event without body")
		}
		return processor.handleCommand(ctx, *event.Command)
	default:
		return nil
	}
}

// HandlePreCheckout approves every checkout. An unreadable payload is only logged.
func (processor *PaymentProcessor) HandlePreCheckout(ctx context.Context, event PreCheckoutEvent) error {
	entry := OperationLog{Operation: operationPreCheckout, UserID: event.From, Detail: event.QueryID}
	if payload, err := DecodeInvoicePayload(event.Payload); err != nil {
		logOperation(ctx, processor.logger, OperationLog{
			Operation: operationPreCheckout,
			UserID:    event.From,
			Status:    operationStatusWarning,
			Detail:    "approving checkout with unreadable payload",
			Error:     err,
		})
	} else {
		entry.Amount = payload.Amount
		entry.Price = payload.Price
	}
	err := processor.gateway.AnswerPreCheckoutQuery(ctx, event.QueryID, true, "")
	entry.Error = asGatewayError("answerPreCheckoutQuery", err)
	logOperation(ctx, processor.logger, entry)
	return entry.Error
}

// HandlePayment records the receipt for a settled payment exactly once.
func (processor *PaymentProcessor) HandlePayment(ctx context.Context, event PaymentEvent) (Settlement, error) {
	chatID := chatOrUser(event.ChatID, event.Payer)
	chargeID, err := NewChargeID(event.ChargeID)
	if err != nil {
		return Settlement{}, processor.rejectPayment(ctx, event, chatID, err)
	}
	payload, err := DecodeInvoicePayload(event.Payload)
	if err != nil {
		return Settlement{}, processor.rejectPayment(ctx, event, chatID, err)
	}
	receipt := Receipt{
		ChargeID:  chargeID,
		UserID:    payload.UserID,
		Amount:    payload.Amount,
		Price:     payload.Price,
		Payload:   event.Payload,
		SettledAt: processor.nowFn().UTC().Truncate(time.Millisecond),
	}
	inserted, err := processor.receipts.InsertReceiptIfAbsent(ctx, receipt)
	entry := OperationLog{
		Operation: operationSettle,
		UserID:    receipt.UserID,
		ChargeID:  chargeID,
		Amount:    receipt.Amount,
		Price:     receipt.Price,
		Error:     err,
	}
	if err == nil && !inserted {
		entry.Status = operationStatusDuplicate
	}
	logOperation(ctx, processor.logger, entry)
	if err != nil {
		return Settlement{}, err
	}
	if !inserted {
		return Settlement{Receipt: receipt, Duplicate: true}, nil
	}
	processor.auditSettlement(ctx, event, payload, receipt)
	processor.notifier.Notify(ctx, paymentMessage(chatID, receipt))
	return Settlement{Receipt: receipt}, nil
}

// HandleRefund authorizes and executes a refund, then tells the requester the outcome.
func (processor *PaymentProcessor) HandleRefund(ctx context.Context, request RefundRequest) (Receipt, error) {
	chatID := chatOrUser(request.ChatID, request.Requester)
	receipt, err := processor.refund(ctx, request)
	entry := OperationLog{
		Operation: operationRefund,
		UserID:    request.Requester,
		ChargeID:  receipt.ChargeID,
		Amount:    receipt.Amount,
		Price:     receipt.Price,
		Detail:    request.ChargeID,
		Error:     err,
	}
	switch {
	case err == nil:
		processor.notifier.Notify(ctx, refundedMessage(chatID, receipt))
	case errors.Is(err, ErrReceiptNotFound), errors.Is(err, ErrInvalidChargeID):
		entry.Status = operationStatusDenied
		processor.notifier.Notify(ctx, markdownMessage(chatID, receiptMissingText))
	case errors.Is(err, ErrNotOwner):
		entry.Status = operationStatusDenied
		processor.notifier.Notify(ctx, markdownMessage(chatID, notOwnerText))
	case errors.Is(err, ErrGateway):
		processor.notifier.Notify(ctx, refundFailedMessage(chatID, err))
	}
	logOperation(ctx, processor.logger, entry)
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (processor *PaymentProcessor) refund(ctx context.Context, request RefundRequest) (Receipt, error) {
	chargeID, err := NewChargeID(request.ChargeID)
	if err != nil {
		return Receipt{}, err
	}
	receipt, err := processor.receipts.GetReceipt(ctx, chargeID)
	if err != nil {
		return Receipt{}, err
	}
	if receipt.UserID != request.Requester {
		return Receipt{}, fmt.Errorf("%w: charge %s", ErrNotOwner, chargeID)
	}
	if err := processor.gateway.RefundStarPayment(ctx, receipt.UserID, chargeID); err != nil {
		return receipt, asGatewayError("refundStarPayment", err)
	}
	removed, err := processor.receipts.RemoveReceipt(ctx, chargeID)
	if err != nil {
		return receipt, err
	}
	if !removed {
		logOperation(ctx, processor.logger, OperationLog{
			Operation: operationRefund,
			UserID:    request.Requester,
			ChargeID:  chargeID,
			Status:    operationStatusWarning,
			Detail:    "receipt already removed by a concurrent refund",
		})
	}
	return receipt, nil
}

func (processor *PaymentProcessor) handleCommand(ctx context.Context, command CommandEvent) error {
	chatID := chatOrUser(command.ChatID, command.From)
	logOperation(ctx, processor.logger, OperationLog{
		Operation: operationCommand,
		UserID:    command.From,
		Detail:    command.Name,
	})
	switch command.Name {
	case CommandRefund:
		if command.Argument == "" {
			processor.notifier.Notify(ctx, markdownMessage(chatID, refundUsageText))
			return nil
		}
		_, err := processor.HandleRefund(ctx, RefundRequest{
			Requester: command.From,
			ChatID:    chatID,
			ChargeID:  command.Argument,
		})
		if isUserFacing(err) {
			return nil
		}
		return err
	case CommandStart:
		processor.notifier.Notify(ctx, welcomeMessage(chatID, processor.appURL))
	case CommandHelp:
		processor.notifier.Notify(ctx, markdownMessage(chatID, helpText))
	}
	return nil
}

func (processor *PaymentProcessor) rejectPayment(ctx context.Context, event PaymentEvent, chatID int64, cause error) error {
	err := fmt.Errorf("%w: %v", ErrMalformedEvent, cause)
	logOperation(ctx, processor.logger, OperationLog{
		Operation: operationSettle,
		UserID:    event.Payer,
		Status:    operationStatusDropped,
		Detail:    event.ChargeID,
		Error:     err,
	})
	if chatID != 0 {
		processor.notifier.Notify(ctx, Message{ChatID: chatID, Text: malformedEventText})
	}
	return err
}

func (processor *PaymentProcessor) dropMalformed(ctx context.Context, detail string) error {
	logOperation(ctx, processor.logger, OperationLog{
		Operation: operationCommand,
		Status:    operationStatusDropped,
		Detail:    detail,
		Error:     ErrMalformedEvent,
	})
	return nil
}

// auditSettlement logs settlements whose payload disagrees with the payer or the pending session.
// The payload stays authoritative either way.
func (processor *PaymentProcessor) auditSettlement(ctx context.Context, event PaymentEvent, payload InvoicePayload, receipt Receipt) {
	warn := func(detail string) {
		logOperation(ctx, processor.logger, OperationLog{
			Operation: operationSettle,
			UserID:    receipt.UserID,
			ChargeID:  receipt.ChargeID,
			Status:    operationStatusWarning,
			Detail:    detail,
		})
	}
	if !event.Payer.IsZero() && event.Payer != payload.UserID {
		warn(fmt.Sprintf("payer %s differs from payload user %s", event.Payer, payload.UserID))
	}
	if event.TotalAmount != 0 && event.TotalAmount != payload.Price.Int64() {
		warn(fmt.Sprintf("charged %d differs from payload price %d", event.TotalAmount, payload.Price.Int64()))
	}
	if processor.invoices == nil {
		return
	}
	pending, err := processor.invoices.GetPendingInvoice(ctx, payload.UserID)
	switch {
	case errors.Is(err, ErrPendingInvoiceNotFound):
		warn("no pending invoice for payload user")
	case err != nil:
		warn(fmt.Sprintf("pending invoice lookup failed: %v", err))
	case pending.CreatedAt.UnixMilli() != payload.Timestamp.UnixMilli():
		warn(fmt.Sprintf("settled a stale invoice; latest is %s", pending.InvoiceID))
	}
}

func isUserFacing(err error) bool {
	return err == nil ||
		errors.Is(err, ErrReceiptNotFound) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrInvalidChargeID) ||
		errors.Is(err, ErrGateway)
}

func chatOrUser(chatID int64, userID UserID) int64 {
	if chatID != 0 {
		return chatID
	}
	return userID.Int64()
}
