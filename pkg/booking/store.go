package booking

import "context"

// Store is the persistence contract used by Service.
//
// Every status-changing write is conditional: the expected prior state is
// part of the WHERE clause and implementations return ErrStaleStatus when
// zero rows were affected. Callers decide whether a stale write is a benign
// skip (sweeps) or a retryable failure (synchronous operations).
type Store interface {
	GetBooking(ctx context.Context, bookingID string) (Booking, error)

	// UpdateStatus flips status from -> to and records the reason.
	UpdateStatus(ctx context.Context, bookingID string, from, to Status, reason string) error

	// RecordProviderArrival stamps the provider attendance confirmation and
	// moves CONFIRMED -> IN_PROGRESS in one conditional write.
	RecordProviderArrival(ctx context.Context, bookingID string, confirmedUnixUTC int64) error

	// ReassignProvider swaps the provider reference and appends the audit
	// record, guarded on the booking not having been reassigned before.
	// Status is left untouched: reassignment is orthogonal to the state
	// machine.
	ReassignProvider(ctx context.Context, record ReassignmentRecord) error

	// SetPaymentStatus updates the payment side, guarded against repeating
	// the same payment status.
	SetPaymentStatus(ctx context.Context, bookingID string, to PaymentStatus, reason string, atUnixUTC int64) error

	// Sweep queries.
	ListStatusOlderThan(ctx context.Context, status Status, createdBeforeUnixUTC int64, limit int) ([]Booking, error)
	ListOverdueConfirmed(ctx context.Context, scheduledBeforeUnixUTC int64, limit int) ([]Booking, error)
	ListRefundCandidates(ctx context.Context, cancelReason string, limit int) ([]Booking, error)

	// Penalties.
	CountActivePenalties(ctx context.Context, providerID string) (int, error)
	InsertPenalty(ctx context.Context, penalty Penalty) (Penalty, error)
	GetPenalty(ctx context.Context, penaltyID string) (Penalty, error)
	// FindActivePenalty returns the active penalty held by a provider for a
	// booking, or ErrNotFound. Lets retried no-show handling reuse the
	// penalty it already assessed instead of charging again.
	FindActivePenalty(ctx context.Context, providerID, bookingID string) (Penalty, error)
	// MarkPenaltyReversed flips active -> reversed; ErrStaleStatus when the
	// penalty was already reversed.
	MarkPenaltyReversed(ctx context.Context, penaltyID string, atUnixUTC int64) error

	// Guarantee refunds. InsertRefund returns ErrAlreadyRefunded when a
	// record for the booking already exists (unique per booking).
	GetRefundByBooking(ctx context.Context, bookingID string) (GuaranteeRefund, error)
	InsertRefund(ctx context.Context, refund GuaranteeRefund) (GuaranteeRefund, error)
}
