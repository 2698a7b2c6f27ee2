package booking

import (
	"context"
	"errors"
	"testing"
)

func TestAssessPenaltyEscalatesAcrossFourOffenses(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)

	expected := []struct {
		tier   PenaltyTier
		amount int64
		action PenaltyAction
	}{
		{tier: TierFirst, amount: 250_00, action: ActionWarning},
		{tier: TierSecond, amount: 500_00, action: ActionWarning},
		{tier: TierThird, amount: 1000_00, action: ActionSuspension},
		{tier: TierRepeat, amount: 2000_00, action: ActionBanReview},
	}

	var previousAmount int64
	for offense, want := range expected {
		penalty, err := fix.service.AssessPenalty(context.Background(), "provider-x", "bk-violation", ViolationNoShow)
		if err != nil {
			test.Fatalf("offense %d: %v", offense+1, err)
		}
		if penalty.Tier != want.tier || penalty.AmountCents != want.amount || penalty.Action != want.action {
			test.Fatalf("offense %d: got %+v, want %+v", offense+1, penalty, want)
		}
		if penalty.OffenseNumber != offense+1 {
			test.Fatalf("offense number %d, want %d", penalty.OffenseNumber, offense+1)
		}
		if penalty.AmountCents < previousAmount {
			test.Fatalf("amounts must be non-decreasing: %d after %d", penalty.AmountCents, previousAmount)
		}
		previousAmount = penalty.AmountCents
	}

	if len(fix.ledger.debits) != 4 {
		test.Fatalf("expected 4 wallet debits, got %d", len(fix.ledger.debits))
	}
	if fix.directory.standings["provider-x"] != StandingBanReview {
		test.Fatalf("fourth offense must leave the account in ban review, got %s", fix.directory.standings["provider-x"])
	}

	assessed := fix.notifier.eventsOfType(EventPenaltyAssessed)
	if len(assessed) != 4 {
		test.Fatalf("expected 4 penalty notifications, got %d", len(assessed))
	}
}

func TestAssessPenaltyThirdOffenseSuspends(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	for i := 0; i < 2; i++ {
		if _, err := fix.service.AssessPenalty(context.Background(), "provider-y", "bk-1", ViolationNoShow); err != nil {
			test.Fatalf("seed offense: %v", err)
		}
	}
	if _, suspended := fix.directory.standings["provider-y"]; suspended {
		test.Fatalf("warnings must not touch standing")
	}

	penalty, err := fix.service.AssessPenalty(context.Background(), "provider-y", "bk-2", ViolationQualityFailure)
	if err != nil {
		test.Fatalf("third offense: %v", err)
	}
	if penalty.Action != ActionSuspension {
		test.Fatalf("third offense action %s", penalty.Action)
	}
	if fix.directory.standings["provider-y"] != StandingSuspended {
		test.Fatalf("provider not suspended")
	}
}

func TestReversePenaltyCreditsOnce(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	penalty, err := fix.service.AssessPenalty(context.Background(), "provider-z", "bk-rev", ViolationNoShow)
	if err != nil {
		test.Fatalf("assess: %v", err)
	}

	result, err := fix.service.ReversePenalty(context.Background(), penalty.PenaltyID, RoleAdmin)
	if err != nil {
		test.Fatalf("reverse: %v", err)
	}
	if !result.Reversed || result.Penalty.Status != PenaltyReversed {
		test.Fatalf("unexpected result %+v", result)
	}
	if len(fix.ledger.credits) != 1 {
		test.Fatalf("expected one credit, got %d", len(fix.ledger.credits))
	}
	credit := fix.ledger.credits[0]
	if credit.userID != "provider-z" || credit.amountCents != penalty.AmountCents {
		test.Fatalf("wrong credit %+v", credit)
	}
	if credit.reference != "penalty-reversal:"+penalty.PenaltyID {
		test.Fatalf("wrong reference %q", credit.reference)
	}

	// Second reversal is a no-op success, not an error, and credits nothing.
	again, err := fix.service.ReversePenalty(context.Background(), penalty.PenaltyID, RoleAdmin)
	if err != nil {
		test.Fatalf("second reverse: %v", err)
	}
	if again.Reversed || again.Reason != "already reversed" {
		test.Fatalf("unexpected second result %+v", again)
	}
	if len(fix.ledger.credits) != 1 {
		test.Fatalf("second reversal must not credit again")
	}
}

func TestReversePenaltyRequiresAdmin(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	penalty, err := fix.service.AssessPenalty(context.Background(), "provider-q", "bk-role", ViolationNoShow)
	if err != nil {
		test.Fatalf("assess: %v", err)
	}
	for _, role := range []Role{RoleRequester, RoleProvider, RoleSystem} {
		if _, err := fix.service.ReversePenalty(context.Background(), penalty.PenaltyID, role); !errors.Is(err, ErrRoleNotPermitted) {
			test.Fatalf("%s: expected ErrRoleNotPermitted, got %v", role, err)
		}
	}
}

func TestReversePenaltyUnknownPenalty(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	if _, err := fix.service.ReversePenalty(context.Background(), "missing", RoleAdmin); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReversedPenaltiesDoNotCountTowardEscalation(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	penalty, err := fix.service.AssessPenalty(context.Background(), "provider-w", "bk-a", ViolationNoShow)
	if err != nil {
		test.Fatalf("assess: %v", err)
	}
	if _, err := fix.service.ReversePenalty(context.Background(), penalty.PenaltyID, RoleAdmin); err != nil {
		test.Fatalf("reverse: %v", err)
	}

	next, err := fix.service.AssessPenalty(context.Background(), "provider-w", "bk-b", ViolationNoShow)
	if err != nil {
		test.Fatalf("assess after reversal: %v", err)
	}
	if next.Tier != TierFirst || next.OffenseNumber != 1 {
		test.Fatalf("reversed penalty still counted: %+v", next)
	}
}
