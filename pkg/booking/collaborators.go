package booking

import "context"

// Event is the payload handed to the Notifier on every booking update.
type Event struct {
	Type      string
	BookingID string
	Status    Status
	Message   string
	AtUnixUTC int64
}

// Event types emitted by the service.
const (
	EventBookingUpdate   = "booking_update"
	EventProviderArrived = "provider_arrived"
	EventReassigned      = "booking_reassigned"
	EventPenaltyAssessed = "penalty_assessed"
	EventRefundIssued    = "refund_issued"
)

// Notifier delivers events to a user. Best effort: failures are logged by
// the caller and never fail the underlying operation.
type Notifier interface {
	Notify(ctx context.Context, userID string, event Event) error
}

// Ledger is the external wallet collaborator. Both calls are atomic
// increments; de-duplication is the caller's responsibility and is enforced
// here through the refund record and penalty status guards.
type Ledger interface {
	Credit(ctx context.Context, userID string, amountCents int64, reference string) error
	Debit(ctx context.Context, userID string, amountCents int64, reference string) error
}

// Directory is the account-directory collaborator: provider attribute reads
// for the backup search plus the standing mutation used by penalty tiers.
type Directory interface {
	FindBackupProvider(ctx context.Context, criteria BackupCriteria) (Provider, bool, error)
	SetProviderStanding(ctx context.Context, providerID string, standing ProviderStanding) error
}
