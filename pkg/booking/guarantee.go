package booking

import (
	"context"
	"errors"
	"fmt"
)

// RefundResult reports what a guarantee-refund request did. A request for an
// already-refunded booking is a success with Refunded=false, never an error:
// the sweeps depend on that distinction to keep batches moving.
type RefundResult struct {
	Refunded bool
	Reason   string
	Refund   GuaranteeRefund
}

// ProcessGuaranteeRefund makes the requester whole when the platform could
// not deliver the booked service. At most one refund is ever issued per
// booking; the refund record is the idempotency guard and is written before
// the wallet credit.
func (service *Service) ProcessGuaranteeRefund(ctx context.Context, bookingID, reason string) (RefundResult, error) {
	record, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return RefundResult{}, service.logged(ctx, OperationLog{Operation: operationRefund, BookingID: bookingID, Error: err})
	}
	if existing, err := service.store.GetRefundByBooking(ctx, bookingID); err == nil {
		return RefundResult{Refunded: false, Reason: "Already refunded", Refund: existing}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return RefundResult{}, service.logged(ctx, OperationLog{Operation: operationRefund, BookingID: bookingID, Error: err})
	}
	if record.PaymentStatus == PaymentRefunded {
		return RefundResult{Refunded: false, Reason: "Already refunded"}, nil
	}
	if record.PaymentStatus != PaymentPaid {
		// Pending, failed, or not-required: no money was ever collected.
		return RefundResult{Refunded: false, Reason: "no captured payment to refund"}, nil
	}
	if record.TotalAmountCents <= 0 {
		return RefundResult{Refunded: false, Reason: "nothing to refund"}, nil
	}

	refund := GuaranteeRefund{
		BookingID:      bookingID,
		RequesterID:    record.RequesterID,
		ProviderID:     record.ProviderID,
		AmountCents:    record.TotalAmountCents,
		Reason:         reason,
		Status:         RefundIssued,
		CreatedUnixUTC: service.nowFn(),
	}
	stored, err := service.store.InsertRefund(ctx, refund)
	if errors.Is(err, ErrAlreadyRefunded) {
		// Lost the insert race to a concurrent refund; same outcome.
		return RefundResult{Refunded: false, Reason: "Already refunded"}, nil
	}
	if err != nil {
		return RefundResult{}, service.logged(ctx, OperationLog{Operation: operationRefund, BookingID: bookingID, Amount: refund.AmountCents, Error: err})
	}

	if err := service.ledger.Credit(ctx, record.RequesterID, stored.AmountCents, "guarantee-refund:"+bookingID); err != nil {
		return RefundResult{}, service.logged(ctx, OperationLog{Operation: operationRefund, BookingID: bookingID, UserID: record.RequesterID, Amount: stored.AmountCents, Error: err})
	}
	if err := service.store.SetPaymentStatus(ctx, bookingID, PaymentRefunded, reason, service.nowFn()); err != nil && !errors.Is(err, ErrStaleStatus) {
		return RefundResult{}, service.logged(ctx, OperationLog{Operation: operationRefund, BookingID: bookingID, Error: err})
	}

	service.notify(ctx, record.RequesterID, Event{
		Type:      EventRefundIssued,
		BookingID: bookingID,
		Status:    record.Status,
		Message:   fmt.Sprintf("A full refund of %d.%02d has been credited to your wallet", stored.AmountCents/100, stored.AmountCents%100),
		AtUnixUTC: service.nowFn(),
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRefund,
		BookingID: bookingID,
		UserID:    record.RequesterID,
		Amount:    stored.AmountCents,
		Reason:    reason,
	})
	return RefundResult{Refunded: true, Refund: stored}, nil
}
