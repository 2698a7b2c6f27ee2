package booking

import (
	"context"
	"errors"
)

// NoShowOutcome reports how a provider no-show was resolved.
type NoShowOutcome struct {
	Reassigned    bool
	NewProviderID string
	Cancelled     bool
	Skipped       bool
	Penalty       Penalty
}

// HandleProviderNoShow resolves a confirmed booking whose provider never
// arrived: find the best substitute in the same city with an overlapping
// specialization and reassign, or cancel with the no-backup reason that
// triggers the guarantee refund. The original provider is penalized either
// way. Reassignment does not touch the status; it is an out-of-band field
// mutation guarded on the booking not having been reassigned already.
//
// The penalty lands before the resolution write and an active penalty for the
// same provider and booking is reused, so a failed resolution can be retried
// by the next sweep without charging twice. If the resolution write loses to
// a concurrent actor, a penalty assessed in this call is rolled back.
func (service *Service) HandleProviderNoShow(ctx context.Context, bookingID string) (NoShowOutcome, error) {
	record, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return NoShowOutcome{}, service.logged(ctx, OperationLog{Operation: operationReassign, BookingID: bookingID, Error: err})
	}
	if record.Status != StatusConfirmed || record.Reassigned || record.Attendance.ProviderConfirmed {
		// Another actor already resolved this booking.
		return NoShowOutcome{Skipped: true}, nil
	}
	originalProviderID := record.ProviderID

	penalty, assessedNow, err := service.noShowPenalty(ctx, originalProviderID, bookingID)
	if err != nil {
		return NoShowOutcome{}, service.logged(ctx, OperationLog{Operation: operationReassign, BookingID: bookingID, Error: err})
	}

	candidate, found, err := service.directory.FindBackupProvider(ctx, BackupCriteria{
		ExcludeProviderID: originalProviderID,
		City:              record.City,
		ServiceType:       record.ServiceType,
	})
	if err != nil {
		return NoShowOutcome{}, service.logged(ctx, OperationLog{Operation: operationReassign, BookingID: bookingID, Error: err})
	}

	outcome := NoShowOutcome{Penalty: penalty}
	if found {
		reassignment := ReassignmentRecord{
			BookingID:          bookingID,
			OriginalProviderID: originalProviderID,
			NewProviderID:      candidate.ProviderID,
			Reason:             ReasonProviderNoShow,
			ReassignedUnixUTC:  service.nowFn(),
		}
		err = service.store.ReassignProvider(ctx, reassignment)
		if errors.Is(err, ErrStaleStatus) {
			service.rollbackNoShowPenalty(ctx, penalty, assessedNow)
			return NoShowOutcome{Skipped: true}, nil
		}
		if err != nil {
			return NoShowOutcome{}, service.logged(ctx, OperationLog{Operation: operationReassign, BookingID: bookingID, Error: err})
		}
		outcome.Reassigned = true
		outcome.NewProviderID = candidate.ProviderID
		service.notify(ctx, record.RequesterID, Event{
			Type:      EventReassigned,
			BookingID: bookingID,
			Status:    record.Status,
			Message:   "Your provider was unavailable; a replacement has been assigned to your booking",
			AtUnixUTC: service.nowFn(),
		})
		service.notify(ctx, candidate.ProviderID, Event{
			Type:      EventReassigned,
			BookingID: bookingID,
			Status:    record.Status,
			Message:   "A booking has been reassigned to you",
			AtUnixUTC: service.nowFn(),
		})
		service.logOperation(ctx, OperationLog{
			Operation: operationReassign,
			BookingID: bookingID,
			UserID:    candidate.ProviderID,
			Reason:    ReasonProviderNoShow,
		})
	} else {
		err = service.store.UpdateStatus(ctx, bookingID, StatusConfirmed, StatusCancelled, ReasonNoBackup)
		if errors.Is(err, ErrStaleStatus) {
			service.rollbackNoShowPenalty(ctx, penalty, assessedNow)
			return NoShowOutcome{Skipped: true}, nil
		}
		if err != nil {
			return NoShowOutcome{}, service.logged(ctx, OperationLog{Operation: operationReassign, BookingID: bookingID, Error: err})
		}
		outcome.Cancelled = true
		service.emitBookingUpdate(ctx, record, StatusCancelled, statusMessage(StatusCancelled, ReasonNoBackup))
		service.logOperation(ctx, OperationLog{
			Operation:  operationReassign,
			BookingID:  bookingID,
			FromStatus: StatusConfirmed,
			ToStatus:   StatusCancelled,
			Reason:     ReasonNoBackup,
		})
	}

	return outcome, nil
}

// noShowPenalty assesses the no-show penalty, or reuses the active one a
// previous attempt on this booking already charged.
func (service *Service) noShowPenalty(ctx context.Context, providerID, bookingID string) (Penalty, bool, error) {
	existing, err := service.store.FindActivePenalty(ctx, providerID, bookingID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Penalty{}, false, err
	}
	penalty, err := service.AssessPenalty(ctx, providerID, bookingID, ViolationNoShow)
	return penalty, true, err
}

// rollbackNoShowPenalty undoes a penalty assessed within the current call
// when the resolution write lost to a concurrent actor: the booking may have
// been resolved by an actual arrival, in which case the charge is wrong. A
// penalty inherited from an earlier attempt is left standing.
func (service *Service) rollbackNoShowPenalty(ctx context.Context, penalty Penalty, assessedNow bool) {
	if !assessedNow {
		return
	}
	err := service.store.MarkPenaltyReversed(ctx, penalty.PenaltyID, service.nowFn())
	if err != nil && !errors.Is(err, ErrStaleStatus) {
		service.logOperation(ctx, OperationLog{Operation: operationPenaltyReversal, BookingID: penalty.BookingID, UserID: penalty.ProviderID, Error: err})
		return
	}
	if err != nil {
		return
	}
	if err := service.ledger.Credit(ctx, penalty.ProviderID, penalty.AmountCents, "penalty-reversal:"+penalty.PenaltyID); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationPenaltyReversal, BookingID: penalty.BookingID, UserID: penalty.ProviderID, Amount: penalty.AmountCents, Error: err})
	}
}
