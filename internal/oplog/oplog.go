// Package oplog adapts the booking service's operation callbacks onto zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

// ZapLogger implements booking.OperationLogger on a zap logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wires a ZapLogger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation writes one structured line per operation. Failures log at
// warn, everything else at info.
func (adapter *ZapLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.BookingID != "" {
		fields = append(fields, zap.String("booking_id", entry.BookingID))
	}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	if entry.FromStatus != "" {
		fields = append(fields, zap.String("from_status", entry.FromStatus.String()))
	}
	if entry.ToStatus != "" {
		fields = append(fields, zap.String("to_status", entry.ToStatus.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount))
	}
	if entry.Reason != "" {
		fields = append(fields, zap.String("reason", entry.Reason))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("booking operation", fields...)
		return
	}
	adapter.logger.Info("booking operation", fields...)
}

// Tee fans one operation log out to several loggers.
type Tee []booking.OperationLogger

// LogOperation forwards the entry to every logger in order.
func (tee Tee) LogOperation(ctx context.Context, entry booking.OperationLog) {
	for _, logger := range tee {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
