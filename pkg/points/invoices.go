package points

import (
	"context"
	"fmt"
	"time"
)

// LabeledPrice is one line of an invoice.
type LabeledPrice struct {
	Label  string
	Amount int64
}

// InvoiceLinkRequest describes the invoice the gateway should mint.
type InvoiceLinkRequest struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Prices      []LabeledPrice
}

// Gateway is the payment gateway collaborator.
type Gateway interface {
	CreateInvoiceLink(ctx context.Context, request InvoiceLinkRequest) (string, error)
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
	RefundStarPayment(ctx context.Context, userID UserID, chargeID ChargeID) error
}

// InvoiceService mints payable invoice links.
type InvoiceService struct {
	store   InvoiceStore
	gateway Gateway
	nowFn   func() time.Time
	logger  OperationLogger
}

// NewInvoiceService wires an InvoiceService.
func NewInvoiceService(store InvoiceStore, gateway Gateway, now func() time.Time, options ...ServiceOption) (*InvoiceService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: invoice store dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(options)
	return &InvoiceService{store: store, gateway: gateway, nowFn: now, logger: resolved.logger}, nil
}

// CreateInvoice records the session and asks the gateway for a payable link.
func (service *InvoiceService) CreateInvoice(ctx context.Context, userID UserID, amount PointsAmount, price StarsPrice) (Invoice, error) {
	invoice, err := service.createInvoice(ctx, userID, amount, price)
	logOperation(ctx, service.logger, OperationLog{
		Operation: operationCreateInvoice,
		UserID:    userID,
		InvoiceID: invoice.InvoiceID,
		Amount:    amount,
		Price:     price,
		Error:     err,
	})
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

func (service *InvoiceService) createInvoice(ctx context.Context, userID UserID, amount PointsAmount, price StarsPrice) (Invoice, error) {
	if userID.IsZero() {
		return Invoice{}, fmt.Errorf("%w: missing user", ErrInvalidUserID)
	}
	if _, err := NewPointsAmount(amount.Int64()); err != nil {
		return Invoice{}, err
	}
	if _, err := NewStarsPrice(price.Int64()); err != nil {
		return Invoice{}, err
	}
	createdAt := service.nowFn().UTC().Truncate(time.Millisecond)
	payload, err := EncodeInvoicePayload(InvoicePayload{
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		Timestamp: createdAt,
	})
	if err != nil {
		return Invoice{}, err
	}
	pending := PendingInvoice{
		InvoiceID: NewInvoiceID(),
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		CreatedAt: createdAt,
	}
	if err := service.store.SavePendingInvoice(ctx, pending); err != nil {
		return Invoice{}, err
	}
	formattedAmount := formatThousands(amount.Int64())
	link, err := service.gateway.CreateInvoiceLink(ctx, InvoiceLinkRequest{
		Title:       fmt.Sprintf(invoiceTitleFormat, formattedAmount),
		Description: fmt.Sprintf(invoiceDescriptionFormat, formattedAmount),
		Payload:     payload,
		Currency:    StarsCurrency,
		Prices:      []LabeledPrice{{Label: invoicePriceLabel, Amount: price.Int64()}},
	})
	if err != nil {
		return Invoice{InvoiceID: pending.InvoiceID}, asGatewayError("createInvoiceLink", err)
	}
	return Invoice{InvoiceID: pending.InvoiceID, URL: link, Payload: payload}, nil
}
