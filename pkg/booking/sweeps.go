package booking

import (
	"context"
	"errors"
	"time"
)

// expiryRule pairs a waiting status with its TTL and forced outcome.
type expiryRule struct {
	from   Status
	ttl    time.Duration
	to     Status
	reason string
}

func (service *Service) expiryRules() []expiryRule {
	return []expiryRule{
		{from: StatusRequested, ttl: service.config.RequestResponseTTL, to: StatusCancelled, reason: ReasonNoResponse},
		{from: StatusPendingPayment, ttl: service.config.PaymentTTL, to: StatusFailed, reason: ReasonPaymentTimeout},
	}
}

// RunExpirySweeper polls for time-expired bookings until ctx is cancelled.
// A failed sweep is logged and the loop keeps ticking; it never terminates
// the process.
func (service *Service) RunExpirySweeper(ctx context.Context) {
	service.runLoop(ctx, "expiry", service.sweepExpired)
}

// RunNoShowSweeper polls for overdue confirmed bookings without a provider
// arrival and drives each through the backup reassignment path.
func (service *Service) RunNoShowSweeper(ctx context.Context) {
	service.runLoop(ctx, "no_show", service.sweepNoShows)
}

// RunRefundSweeper polls for cancelled-without-backup bookings that have not
// been refunded yet.
func (service *Service) RunRefundSweeper(ctx context.Context) {
	service.runLoop(ctx, "guarantee_refund", service.sweepRefunds)
}

func (service *Service) runLoop(ctx context.Context, name string, sweep func(ctx context.Context) error) {
	ticker := time.NewTicker(service.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				service.logOperation(ctx, OperationLog{Operation: operationSweep, Reason: name, Error: err})
			}
		}
	}
}

// sweepExpired applies each expiry rule to one bounded batch. A stale
// conditional write means another actor already moved the booking and is
// skipped silently; other per-item failures are logged and do not abort the
// rest of the batch.
func (service *Service) sweepExpired(ctx context.Context) error {
	now := service.nowFn()
	for _, rule := range service.expiryRules() {
		cutoff := now - int64(rule.ttl/time.Second)
		batch, err := service.store.ListStatusOlderThan(ctx, rule.from, cutoff, service.config.ExpiryBatchSize)
		if err != nil {
			return err
		}
		for _, record := range batch {
			err := service.store.UpdateStatus(ctx, record.BookingID, rule.from, rule.to, rule.reason)
			if errors.Is(err, ErrStaleStatus) {
				continue
			}
			if err != nil {
				service.logOperation(ctx, OperationLog{
					Operation:  operationSweep,
					BookingID:  record.BookingID,
					FromStatus: rule.from,
					ToStatus:   rule.to,
					Reason:     rule.reason,
					Error:      err,
				})
				continue
			}
			service.emitBookingUpdate(ctx, record, rule.to, statusMessage(rule.to, rule.reason))
			service.logOperation(ctx, OperationLog{
				Operation:  operationSweep,
				BookingID:  record.BookingID,
				FromStatus: rule.from,
				ToStatus:   rule.to,
				Reason:     rule.reason,
			})
		}
	}
	return nil
}

func (service *Service) sweepNoShows(ctx context.Context) error {
	batch, err := service.store.ListOverdueConfirmed(ctx, service.nowFn(), service.config.NoShowBatchSize)
	if err != nil {
		return err
	}
	for _, record := range batch {
		if _, err := service.HandleProviderNoShow(ctx, record.BookingID); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationSweep, BookingID: record.BookingID, Reason: "no_show", Error: err})
		}
	}
	return nil
}

func (service *Service) sweepRefunds(ctx context.Context) error {
	batch, err := service.store.ListRefundCandidates(ctx, ReasonNoBackup, service.config.RefundBatchSize)
	if err != nil {
		return err
	}
	for _, record := range batch {
		if _, err := service.ProcessGuaranteeRefund(ctx, record.BookingID, ReasonNoBackup); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationSweep, BookingID: record.BookingID, Reason: "guarantee_refund", Error: err})
		}
	}
	return nil
}
