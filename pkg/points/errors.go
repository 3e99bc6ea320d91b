package points

import (
	"errors"
	"fmt"
	"time"
)

// Domain-level error values returned by the points services.
var (
	ErrAlreadyClaimed          = errors.New("already claimed")
	ErrClaimContention         = errors.New("claim contention")
	ErrClaimNotFound           = errors.New("claim not found")
	ErrPendingInvoiceNotFound  = errors.New("pending invoice not found")
	ErrReceiptNotFound         = errors.New("receipt not found")
	ErrNotOwner                = errors.New("receipt not owned by requester")
	ErrGateway                 = errors.New("gateway error")
	ErrMalformedEvent          = errors.New("malformed event")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidChargeID         = errors.New("invalid charge id")
	ErrInvalidInvoiceID        = errors.New("invalid invoice id")
	ErrInvalidPointsAmount     = errors.New("invalid points amount")
	ErrInvalidStarsPrice       = errors.New("invalid stars price")
	ErrInvalidPayload          = errors.New("invalid invoice payload")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrNotificationQueueClosed = errors.New("notification queue closed")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// AlreadyClaimedError reports a claim attempted inside the cooldown window.
type AlreadyClaimedError struct {
	LastClaimAt time.Time
	NextClaimAt time.Time
	Remaining   Countdown
}

func (claimError *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("%v: next claim in %s", ErrAlreadyClaimed, claimError.Remaining)
}

// Is matches ErrAlreadyClaimed.
func (claimError *AlreadyClaimedError) Is(target error) bool {
	return target == ErrAlreadyClaimed
}

// GatewayError is a failure reported by (or while reaching) the payment gateway.
type GatewayError struct {
	Method      string
	Code        int
	Description string
	Err         error
}

func (gatewayError *GatewayError) Error() string {
	if gatewayError.Code != 0 {
		return fmt.Sprintf("%v: %s: %d %s", ErrGateway, gatewayError.Method, gatewayError.Code, gatewayError.Description)
	}
	return fmt.Sprintf("%v: %s: %s", ErrGateway, gatewayError.Method, gatewayError.Description)
}

// Unwrap returns the transport cause, if any.
func (gatewayError *GatewayError) Unwrap() error {
	return gatewayError.Err
}

// Is matches ErrGateway.
func (gatewayError *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// GatewayDescription extracts the gateway's own message for user-facing text.
func GatewayDescription(err error) string {
	var gatewayError *GatewayError
	if errors.As(err, &gatewayError) && gatewayError.Description != "" {
		return gatewayError.Description
	}
	return "Unknown error"
}

func asGatewayError(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGateway) {
		return err
	}
	return &GatewayError{Method: method, Description: err.Error(), Err: err}
}
