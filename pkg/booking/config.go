package booking

import "time"

// Cancellation / failure reasons written by the sweepers. The refund sweep
// matches ReasonNoBackup verbatim, so these are part of the data contract.
const (
	ReasonNoResponse     = "no response"
	ReasonPaymentTimeout = "payment timeout"
	ReasonNoBackup       = "no-show, no backup available"
	ReasonProviderNoShow = "provider no-show"
)

// PenaltyRung is one step of the escalation ladder.
type PenaltyRung struct {
	Tier        PenaltyTier
	AmountCents int64
	Action      PenaltyAction
}

// Config carries the tunable thresholds of the subsystem.
type Config struct {
	// RequestResponseTTL: REQUESTED bookings older than this are cancelled.
	RequestResponseTTL time.Duration
	// PaymentTTL: PENDING_PAYMENT bookings older than this are failed.
	PaymentTTL time.Duration
	// SweepInterval is the poll period of all background loops.
	SweepInterval time.Duration
	// ArrivalRadiusMeters is the maximum accepted provider distance.
	ArrivalRadiusMeters float64
	// NoShowBatchSize bounds one no-show sweep.
	NoShowBatchSize int
	// ExpiryBatchSize bounds one expiry sweep per rule.
	ExpiryBatchSize int
	// RefundBatchSize bounds one guarantee-refund sweep.
	RefundBatchSize int
	// NotifyTimeout bounds each best-effort notification dispatch.
	NotifyTimeout time.Duration
	// PenaltyLadder is indexed by prior offense count; the last rung repeats.
	PenaltyLadder []PenaltyRung
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		RequestResponseTTL:  48 * time.Hour,
		PaymentTTL:          30 * time.Minute,
		SweepInterval:       60 * time.Second,
		ArrivalRadiusMeters: 150,
		NoShowBatchSize:     50,
		ExpiryBatchSize:     100,
		RefundBatchSize:     50,
		NotifyTimeout:       3 * time.Second,
		PenaltyLadder: []PenaltyRung{
			{Tier: TierFirst, AmountCents: 250_00, Action: ActionWarning},
			{Tier: TierSecond, AmountCents: 500_00, Action: ActionWarning},
			{Tier: TierThird, AmountCents: 1000_00, Action: ActionSuspension},
			{Tier: TierRepeat, AmountCents: 2000_00, Action: ActionBanReview},
		},
	}
}

// rungFor maps a prior non-reversed offense count to its ladder rung.
func (config Config) rungFor(priorOffenses int) PenaltyRung {
	ladder := config.PenaltyLadder
	if len(ladder) == 0 {
		ladder = DefaultConfig().PenaltyLadder
	}
	if priorOffenses >= len(ladder) {
		return ladder[len(ladder)-1]
	}
	return ladder[priorOffenses]
}
