package booking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation  string
	BookingID  string
	UserID     string
	FromStatus Status
	ToStatus   Status
	Amount     int64
	Reason     string
	Status     string
	Error      error
}

const (
	operationTransition      = "transition"
	operationVerifyArrival   = "verify_arrival"
	operationReassign        = "reassign"
	operationPenalty         = "assess_penalty"
	operationPenaltyReversal = "reverse_penalty"
	operationRefund          = "guarantee_refund"
	operationSweep           = "sweep"
	operationNotify          = "notify"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"
)

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithConfig overrides the default thresholds.
func WithConfig(config Config) ServiceOption {
	return func(service *Service) {
		service.config = config
	}
}
