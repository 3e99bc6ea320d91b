package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DecodeUpdate maps one webhook body to a points event.
// Updates the game does not act on decode to points.EventIgnored.
func DecodeUpdate(raw []byte) (points.Event, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return points.Event{}, fmt.Errorf("%w: %v", points.ErrMalformedEvent, err)
	}
	if query := update.PreCheckoutQuery; query != nil {
		return points.Event{
			Kind: points.EventPreCheckout,
			PreCheckout: &points.PreCheckoutEvent{
				QueryID:     query.ID,
				From:        userOf(query.From),
				Payload:     query.InvoicePayload,
				TotalAmount: int64(query.TotalAmount),
				Currency:    query.Currency,
			},
		}, nil
	}
	message := update.Message
	if message == nil {
		return points.Event{Kind: points.EventIgnored}, nil
	}
	chatID := int64(0)
	if message.Chat != nil {
		chatID = message.Chat.ID
	}
	if payment := message.SuccessfulPayment; payment != nil {
		return points.Event{
			Kind: points.EventPayment,
			Payment: &points.PaymentEvent{
				ChargeID:         payment.TelegramPaymentChargeID,
				ProviderChargeID: payment.ProviderPaymentChargeID,
				Payer:            userOf(message.From),
				ChatID:           chatID,
				Payload:          payment.InvoicePayload,
				TotalAmount:      int64(payment.TotalAmount),
				Currency:         payment.Currency,
			},
		}, nil
	}
	name, argument, ok := points.ParseCommand(message.Text)
	if !ok {
		return points.Event{Kind: points.EventIgnored}, nil
	}
	from := userOf(message.From)
	if from.IsZero() {
		return points.Event{Kind: points.EventIgnored}, nil
	}
	return points.Event{
		Kind: points.EventCommand,
		Command: &points.CommandEvent{
			Name:     name,
			Argument: argument,
			From:     from,
			ChatID:   chatID,
		},
	}, nil
}

// userOf returns the zero UserID for a missing or invalid sender.
func userOf(user *tgbotapi.User) points.UserID {
	if user == nil {
		return points.UserID{}
	}
	userID, err := points.NewUserID(user.ID)
	if err != nil {
		return points.UserID{}
	}
	return userID
}
