package points

import (
	"encoding/json"
	"fmt"
	"time"
)

// InvoicePayload is the self-describing blob the gateway echoes back on settlement.
type InvoicePayload struct {
	UserID    UserID
	Amount    PointsAmount
	Price     StarsPrice
	Timestamp time.Time
}

type invoicePayloadWire struct {
	UserID    int64 `json:"userId"`
	Amount    int64 `json:"amount"`
	Price     int64 `json:"price"`
	Timestamp int64 `json:"timestamp"`
}

// EncodeInvoicePayload renders the payload within the gateway size limit.
func EncodeInvoicePayload(payload InvoicePayload) (string, error) {
	encoded, err := json.Marshal(invoicePayloadWire{
		UserID:    payload.UserID.Int64(),
		Amount:    payload.Amount.Int64(),
		Price:     payload.Price.Int64(),
		Timestamp: payload.Timestamp.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(encoded) > maxPayloadBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidPayload, len(encoded), maxPayloadBytes)
	}
	return string(encoded), nil
}

// DecodeInvoicePayload parses and validates a payload echoed by the gateway.
func DecodeInvoicePayload(raw string) (InvoicePayload, error) {
	if raw == "" {
		return InvoicePayload{}, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	var wire invoicePayloadWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return InvoicePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	userID, err := NewUserID(wire.UserID)
	if err != nil {
		return InvoicePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	amount, err := NewPointsAmount(wire.Amount)
	if err != nil {
		return InvoicePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	price, err := NewStarsPrice(wire.Price)
	if err != nil {
		return InvoicePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return InvoicePayload{
		UserID:    userID,
		Amount:    amount,
		Price:     price,
		Timestamp: time.UnixMilli(wire.Timestamp).UTC(),
	}, nil
}
