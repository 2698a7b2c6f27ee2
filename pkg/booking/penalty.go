package booking

import (
	"context"
	"errors"
	"fmt"
)

// AssessPenalty applies the escalation ladder to a provider for a confirmed
// violation: penalty record, wallet deduction, and for the suspension and
// ban-review tiers a standing mutation on the provider account. The offense
// number counts prior non-reversed penalties plus this one.
func (service *Service) AssessPenalty(ctx context.Context, providerID, bookingID string, violation ViolationType) (Penalty, error) {
	priorOffenses, err := service.store.CountActivePenalties(ctx, providerID)
	if err != nil {
		return Penalty{}, service.logged(ctx, OperationLog{Operation: operationPenalty, BookingID: bookingID, UserID: providerID, Error: err})
	}
	rung := service.config.rungFor(priorOffenses)
	penalty := Penalty{
		ProviderID:     providerID,
		BookingID:      bookingID,
		Violation:      violation,
		Tier:           rung.Tier,
		AmountCents:    rung.AmountCents,
		Action:         rung.Action,
		OffenseNumber:  priorOffenses + 1,
		Status:         PenaltyActive,
		CreatedUnixUTC: service.nowFn(),
	}
	stored, err := service.store.InsertPenalty(ctx, penalty)
	if err != nil {
		return Penalty{}, service.logged(ctx, OperationLog{Operation: operationPenalty, BookingID: bookingID, UserID: providerID, Amount: rung.AmountCents, Error: err})
	}
	if err := service.ledger.Debit(ctx, providerID, stored.AmountCents, "penalty:"+stored.PenaltyID); err != nil {
		return Penalty{}, service.logged(ctx, OperationLog{Operation: operationPenalty, BookingID: bookingID, UserID: providerID, Amount: stored.AmountCents, Error: err})
	}
	switch stored.Action {
	case ActionSuspension:
		if err := service.directory.SetProviderStanding(ctx, providerID, StandingSuspended); err != nil {
			return stored, service.logged(ctx, OperationLog{Operation: operationPenalty, BookingID: bookingID, UserID: providerID, Error: err})
		}
	case ActionBanReview:
		if err := service.directory.SetProviderStanding(ctx, providerID, StandingBanReview); err != nil {
			return stored, service.logged(ctx, OperationLog{Operation: operationPenalty, BookingID: bookingID, UserID: providerID, Error: err})
		}
	}

	service.notify(ctx, providerID, Event{
		Type:      EventPenaltyAssessed,
		BookingID: bookingID,
		Message:   penaltyMessage(stored),
		AtUnixUTC: service.nowFn(),
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationPenalty,
		BookingID: bookingID,
		UserID:    providerID,
		Amount:    stored.AmountCents,
		Reason:    string(stored.Tier),
	})
	return stored, nil
}

func penaltyMessage(penalty Penalty) string {
	switch penalty.Action {
	case ActionSuspension:
		return fmt.Sprintf("Offense #%d: a penalty was deducted and your account has been suspended", penalty.OffenseNumber)
	case ActionBanReview:
		return fmt.Sprintf("Offense #%d: a penalty was deducted and your account is under ban review", penalty.OffenseNumber)
	default:
		return fmt.Sprintf("Offense #%d: a penalty was deducted from your wallet", penalty.OffenseNumber)
	}
}

// ReversalResult reports a penalty reversal. Reversing an already-reversed
// penalty is a success-shaped no-op, mirroring the refund idempotency
// contract.
type ReversalResult struct {
	Reversed bool
	Reason   string
	Penalty  Penalty
}

// ReversePenalty is the admin-only compensation path: flips the penalty to
// reversed and credits the deducted amount back. The status flip is the
// idempotency guard and happens before the ledger credit, so the wallet can
// never be credited twice for one penalty.
func (service *Service) ReversePenalty(ctx context.Context, penaltyID string, role Role) (ReversalResult, error) {
	if role != RoleAdmin {
		err := fmt.Errorf("%w: only an admin may reverse a penalty", ErrRoleNotPermitted)
		return ReversalResult{}, service.logged(ctx, OperationLog{Operation: operationPenaltyReversal, Error: err})
	}
	penalty, err := service.store.GetPenalty(ctx, penaltyID)
	if err != nil {
		return ReversalResult{}, service.logged(ctx, OperationLog{Operation: operationPenaltyReversal, Error: err})
	}
	if penalty.Status == PenaltyReversed {
		return ReversalResult{Reversed: false, Reason: "already reversed", Penalty: penalty}, nil
	}
	err = service.store.MarkPenaltyReversed(ctx, penaltyID, service.nowFn())
	if errors.Is(err, ErrStaleStatus) {
		// Lost a race with another reversal; same outcome.
		return ReversalResult{Reversed: false, Reason: "already reversed", Penalty: penalty}, nil
	}
	if err != nil {
		return ReversalResult{}, service.logged(ctx, OperationLog{Operation: operationPenaltyReversal, UserID: penalty.ProviderID, Error: err})
	}
	if err := service.ledger.Credit(ctx, penalty.ProviderID, penalty.AmountCents, "penalty-reversal:"+penaltyID); err != nil {
		return ReversalResult{}, service.logged(ctx, OperationLog{Operation: operationPenaltyReversal, UserID: penalty.ProviderID, Amount: penalty.AmountCents, Error: err})
	}
	penalty.Status = PenaltyReversed
	service.logOperation(ctx, OperationLog{
		Operation: operationPenaltyReversal,
		BookingID: penalty.BookingID,
		UserID:    penalty.ProviderID,
		Amount:    penalty.AmountCents,
	})
	return ReversalResult{Reversed: true, Penalty: penalty}, nil
}
