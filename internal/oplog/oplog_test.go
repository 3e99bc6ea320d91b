package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationLevels(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		status    string
		wantLevel zapcore.Level
	}{
		{status: "ok", wantLevel: zapcore.InfoLevel},
		{status: "duplicate", wantLevel: zapcore.InfoLevel},
		{status: "denied", wantLevel: zapcore.InfoLevel},
		{status: "warning", wantLevel: zapcore.WarnLevel},
		{status: "dropped", wantLevel: zapcore.WarnLevel},
		{status: "error", wantLevel: zapcore.ErrorLevel},
	}
	for _, testCase := range testCases {
		core, logs := observer.New(zapcore.DebugLevel)
		New(zap.New(core)).LogOperation(context.Background(), points.OperationLog{Operation: "claim", Status: testCase.status})
		entries := logs.All()
		if len(entries) != 1 {
			test.Fatalf("%s: expected one entry, got %d", testCase.status, len(entries))
		}
		if entries[0].Level != testCase.wantLevel {
			test.Fatalf("%s: expected level %s, got %s", testCase.status, testCase.wantLevel, entries[0].Level)
		}
	}
}

func TestLogOperationFields(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	userID, err := points.NewUserID(4242)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	chargeID, err := points.NewChargeID("stxCharge")
	if err != nil {
		test.Fatalf("charge id: %v", err)
	}

	New(zap.New(core)).LogOperation(context.Background(), points.OperationLog{
		Operation: "settle",
		UserID:    userID,
		ChargeID:  chargeID,
		Amount:    1000,
		Price:     50,
		Status:    "error",
		Detail:    "insert failed",
		Error:     errors.New("boom"),
	})

	entry := logs.All()[0]
	if entry.LoggerName != "points" {
		test.Fatalf("unexpected logger name %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["user_id"] != int64(4242) || fields["charge_id"] != "stxCharge" {
		test.Fatalf("unexpected identity fields %v", fields)
	}
	if fields["amount_points"] != int64(1000) || fields["price_stars"] != int64(50) {
		test.Fatalf("unexpected amount fields %v", fields)
	}
	if fields["error"] != "boom" {
		test.Fatalf("unexpected error field %v", fields["error"])
	}
	if _, hasInvoice := fields["invoice_id"]; hasInvoice {
		test.Fatalf("zero invoice id must be omitted")
	}
}

func TestNilLoggerDiscards(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), points.OperationLog{Operation: "claim", Status: "ok"})
}
