package points

import (
	"errors"
	"testing"
	"time"
)

func TestValueObjectValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		build   func() error
		wantErr error
	}{
		{name: "zero user", build: func() error { _, err := NewUserID(0); return err }, wantErr: ErrInvalidUserID},
		{name: "negative user", build: func() error { _, err := NewUserID(-3); return err }, wantErr: ErrInvalidUserID},
		{name: "non numeric user", build: func() error { _, err := ParseUserID("abc"); return err }, wantErr: ErrInvalidUserID},
		{name: "blank user", build: func() error { _, err := ParseUserID("  "); return err }, wantErr: ErrInvalidUserID},
		{name: "blank charge", build: func() error { _, err := NewChargeID("\t"); return err }, wantErr: ErrInvalidChargeID},
		{name: "bad invoice id", build: func() error { _, err := ParseInvoiceID("inv-1"); return err }, wantErr: ErrInvalidInvoiceID},
		{name: "zero amount", build: func() error { _, err := NewPointsAmount(0); return err }, wantErr: ErrInvalidPointsAmount},
		{name: "zero price", build: func() error { _, err := NewStarsPrice(0); return err }, wantErr: ErrInvalidStarsPrice},
		{name: "price over cap", build: func() error { _, err := NewStarsPrice(MaxStarsPrice + 1); return err }, wantErr: ErrInvalidStarsPrice},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if err := testCase.build(); !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestParseUserIDTrimsInput(test *testing.T) {
	test.Parallel()
	userID, err := ParseUserID(" 4242 ")
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if userID.Int64() != userIDValue || userID.String() != "4242" {
		test.Fatalf("unexpected user id %v", userID)
	}
}

func TestInvoiceIDRoundTrip(test *testing.T) {
	test.Parallel()
	invoiceID := NewInvoiceID()
	parsed, err := ParseInvoiceID(invoiceID.String())
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if parsed != invoiceID {
		test.Fatalf("expected %s, got %s", invoiceID, parsed)
	}
	if (InvoiceID{}).String() != "" {
		test.Fatalf("zero invoice id must render empty")
	}
}

func TestNewCountdownRoundsUpToMinute(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		remaining time.Duration
		want      Countdown
	}{
		{name: "expired", remaining: 0, want: Countdown{}},
		{name: "one second", remaining: time.Second, want: Countdown{Minutes: 1}},
		{name: "exact minute", remaining: time.Minute, want: Countdown{Minutes: 1}},
		{name: "just over an hour", remaining: time.Hour + time.Millisecond, want: Countdown{Hours: 1, Minutes: 1}},
		{name: "fifty nine and a half minutes", remaining: 59*time.Minute + 30*time.Second, want: Countdown{Hours: 1}},
		{name: "full window", remaining: ClaimCooldown, want: Countdown{Hours: 24}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := NewCountdown(testCase.remaining); got != testCase.want {
				test.Fatalf("expected %s, got %s", testCase.want, got)
			}
		})
	}
}

func TestFormatThousands(test *testing.T) {
	test.Parallel()
	testCases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		25000:    "25,000",
		1234567:  "1,234,567",
		-1000000: "-1,000,000",
	}
	for value, want := range testCases {
		if got := formatThousands(value); got != want {
			test.Fatalf("formatThousands(%d): expected %q, got %q", value, want, got)
		}
	}
}
