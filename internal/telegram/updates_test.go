package telegram

import (
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
)

const (
	preCheckoutUpdate = `{"update_id":1,"pre_checkout_query":{"id":"pcq-1","from":{"id":4242,"is_bot":false,"first_name":"Ada"},"currency":"XTR","total_amount":50,"invoice_payload":"{\"userId\":4242}"}}`
	paymentUpdate     = `{"update_id":2,"message":{"message_id":9,"date":1700000000,"from":{"id":4242,"is_bot":false,"first_name":"Ada"},"chat":{"id":777,"type":"private"},"successful_payment":{"currency":"XTR","total_amount":50,"invoice_payload":"{\"userId\":4242}","telegram_payment_charge_id":"stxCharge","provider_payment_charge_id":"prov-1"}}}`
	refundUpdate      = `{"update_id":3,"message":{"message_id":10,"date":1700000000,"from":{"id":4242,"is_bot":false,"first_name":"Ada"},"chat":{"id":777,"type":"private"},"text":"/refund@points_bot stxCharge"}}`
	chatterUpdate     = `{"update_id":4,"message":{"message_id":11,"date":1700000000,"from":{"id":4242,"is_bot":false,"first_name":"Ada"},"chat":{"id":777,"type":"private"},"text":"hello there"}}`
	callbackUpdate    = `{"update_id":5,"callback_query":{"id":"cb","from":{"id":4242,"is_bot":false,"first_name":"Ada"},"chat_instance":"x","data":"y"}}`
)

func TestDecodeUpdateKinds(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		raw      string
		wantKind points.EventKind
	}{
		{name: "pre checkout", raw: preCheckoutUpdate, wantKind: points.EventPreCheckout},
		{name: "successful payment", raw: paymentUpdate, wantKind: points.EventPayment},
		{name: "refund command", raw: refundUpdate, wantKind: points.EventCommand},
		{name: "plain chatter", raw: chatterUpdate, wantKind: points.EventIgnored},
		{name: "callback query", raw: callbackUpdate, wantKind: points.EventIgnored},
	}
	for _, testCase := range testCases {
		event, err := DecodeUpdate([]byte(testCase.raw))
		if err != nil {
			test.Fatalf("%s: decode: %v", testCase.name, err)
		}
		if event.Kind != testCase.wantKind {
			test.Fatalf("%s: expected kind %s, got %s", testCase.name, testCase.wantKind, event.Kind)
		}
	}
}

func TestDecodeUpdateMapsPaymentFields(test *testing.T) {
	test.Parallel()
	event, err := DecodeUpdate([]byte(paymentUpdate))
	if err != nil {
		test.Fatalf("decode: %v", err)
	}
	payment := event.Payment
	if payment == nil {
		test.Fatalf("expected payment body")
	}
	if payment.ChargeID != "stxCharge" || payment.ProviderChargeID != "prov-1" {
		test.Fatalf("unexpected charge ids %+v", payment)
	}
	if payment.Payer.Int64() != 4242 || payment.ChatID != 777 {
		test.Fatalf("unexpected payer/chat %+v", payment)
	}
	if payment.TotalAmount != 50 || payment.Currency != points.StarsCurrency {
		test.Fatalf("unexpected amount %+v", payment)
	}
	if payment.Payload != `{"userId":4242}` {
		test.Fatalf("unexpected payload %q", payment.Payload)
	}
}

func TestDecodeUpdateMapsCommand(test *testing.T) {
	test.Parallel()
	event, err := DecodeUpdate([]byte(refundUpdate))
	if err != nil {
		test.Fatalf("decode: %v", err)
	}
	command := event.Command
	if command == nil || command.Name != points.CommandRefund || command.Argument != "stxCharge" {
		test.Fatalf("unexpected command %+v", command)
	}
	if command.From.Int64() != 4242 || command.ChatID != 777 {
		test.Fatalf("unexpected sender %+v", command)
	}
}

func TestDecodeUpdateRejectsInvalidJSON(test *testing.T) {
	test.Parallel()
	if _, err := DecodeUpdate([]byte("{not json")); !errors.Is(err, points.ErrMalformedEvent) {
		test.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}
