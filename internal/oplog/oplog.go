// Package oplog writes points operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	statusError   = "error"
	statusWarning = "warning"
	statusDropped = "dropped"
)

// ZapLogger implements points.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger. A nil logger discards entries.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("points")}
}

// LogOperation writes one entry at a level derived from its status.
func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry points.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.Int64("user_id", entry.UserID.Int64()))
	}
	if !entry.ChargeID.IsZero() {
		fields = append(fields, zap.String("charge_id", entry.ChargeID.String()))
	}
	if !entry.InvoiceID.IsZero() {
		fields = append(fields, zap.String("invoice_id", entry.InvoiceID.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_points", entry.Amount.Int64()))
	}
	if entry.Price != 0 {
		fields = append(fields, zap.Int64("price_stars", entry.Price.Int64()))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	if checked := zapLogger.logger.Check(levelFor(entry.Status), "points operation"); checked != nil {
		checked.Write(fields...)
	}
}

func levelFor(status string) zapcore.Level {
	switch status {
	case statusError:
		return zapcore.ErrorLevel
	case statusWarning, statusDropped:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

var _ points.OperationLogger = (*ZapLogger)(nil)
