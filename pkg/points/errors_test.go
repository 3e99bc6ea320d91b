package points

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const (
	operationName    = "gormstore"
	subjectName      = "receipt"
	codeName         = "insert_failed"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	if !errors.Is(wrappedError, baseError) {
		test.Fatalf("expected wrapped error to unwrap")
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName || operationError.Subject() != subjectName || operationError.Operation() != operationName {
		test.Fatalf("unexpected operation error %+v", operationError)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestAlreadyClaimedErrorMatchesSentinel(test *testing.T) {
	test.Parallel()
	claimError := &AlreadyClaimedError{NextClaimAt: baseTime, Remaining: NewCountdown(90 * time.Minute)}
	wrapped := fmt.Errorf("claim: %w", claimError)
	if !errors.Is(wrapped, ErrAlreadyClaimed) {
		test.Fatalf("expected sentinel match")
	}
	if claimError.Error() != "already claimed: next claim in 1h 30m" {
		test.Fatalf("unexpected message %q", claimError.Error())
	}
}

func TestGatewayDescription(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "gateway description", err: &GatewayError{Method: "refundStarPayment", Code: 400, Description: "CHARGE_NOT_FOUND"}, want: "CHARGE_NOT_FOUND"},
		{name: "wrapped gateway description", err: fmt.Errorf("refund: %w", &GatewayError{Description: "Too Many Requests"}), want: "Too Many Requests"},
		{name: "empty description", err: &GatewayError{Method: "refundStarPayment"}, want: "Unknown error"},
		{name: "plain error", err: errors.New("boom"), want: "Unknown error"},
	}
	for _, testCase := range testCases {
		if got := GatewayDescription(testCase.err); got != testCase.want {
			test.Fatalf("%s: expected %q, got %q", testCase.name, testCase.want, got)
		}
	}
}

func TestAsGatewayErrorKeepsExistingGatewayErrors(test *testing.T) {
	test.Parallel()
	original := &GatewayError{Method: "createInvoiceLink", Description: "bad"}
	if asGatewayError("other", original) != error(original) {
		test.Fatalf("expected the original gateway error")
	}
	if asGatewayError("other", nil) != nil {
		test.Fatalf("expected nil")
	}
}
