package points

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestInvoicePayloadRoundTrip(test *testing.T) {
	test.Parallel()
	userID := mustUserID(test, userIDValue)
	encoded := mustPayload(test, userID, purchaseAmountValue, purchasePriceValue, baseTime)
	if !strings.Contains(encoded, `"userId":4242`) || !strings.Contains(encoded, `"timestamp":`) {
		test.Fatalf("unexpected wire form %s", encoded)
	}
	decoded, err := DecodeInvoicePayload(encoded)
	if err != nil {
		test.Fatalf("decode: %v", err)
	}
	if decoded.UserID != userID || decoded.Amount != purchaseAmountValue || decoded.Price != purchasePriceValue || !decoded.Timestamp.Equal(baseTime) {
		test.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestInvoicePayloadFitsGatewayLimitAtExtremes(test *testing.T) {
	test.Parallel()
	_, err := EncodeInvoicePayload(InvoicePayload{
		UserID:    UserID{value: 9_223_372_036_854_775_807},
		Amount:    PointsAmount(9_223_372_036_854_775_807),
		Price:     StarsPrice(MaxStarsPrice),
		Timestamp: time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		test.Fatalf("expected extreme payload to fit, got %v", err)
	}
}

func TestDecodeInvoicePayloadRejectsInvalidInput(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not json", raw: "points"},
		{name: "missing user", raw: `{"amount":1,"price":1,"timestamp":1}`},
		{name: "negative amount", raw: `{"userId":1,"amount":-5,"price":1,"timestamp":1}`},
		{name: "price over cap", raw: `{"userId":1,"amount":5,"price":10001,"timestamp":1}`},
		{name: "string amount", raw: `{"userId":1,"amount":"5","price":1,"timestamp":1}`},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := DecodeInvoicePayload(testCase.raw); !errors.Is(err, ErrInvalidPayload) {
				test.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}
