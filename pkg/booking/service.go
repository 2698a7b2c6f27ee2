package booking

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the booking lifecycle logic over a Store and the
// external collaborators.
type Service struct {
	store     Store
	ledger    Ledger
	notifier  Notifier
	directory Directory
	nowFn     func() int64
	config    Config
	logger    OperationLogger
}

// NewService wires a Service.
func NewService(store Store, ledger Ledger, notifier Notifier, directory Directory, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: directory dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		directory: directory,
		nowFn:     now,
		config:    DefaultConfig(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// TransitionResult reports what a transition request did. Applied is false
// for the idempotent same-status case, with Reason explaining why.
type TransitionResult struct {
	Applied bool
	Status  Status
	Reason  string
}

// RequestTransition validates and applies a status change on behalf of a
// role. The persistence write is conditional on the status read here; if a
// concurrent writer moved the booking to the desired status first, the
// request degrades to the idempotent no-op instead of failing.
func (service *Service) RequestTransition(ctx context.Context, bookingID string, desired Status, role Role) (TransitionResult, error) {
	record, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return TransitionResult{}, service.logged(ctx, OperationLog{Operation: operationTransition, BookingID: bookingID, ToStatus: desired, Error: err})
	}
	if record.Status == desired {
		service.logOperation(ctx, OperationLog{
			Operation: operationTransition,
			BookingID: bookingID,
			ToStatus:  desired,
			Status:    operationStatusSkipped,
			Reason:    "already " + desired.String(),
		})
		return TransitionResult{Applied: false, Status: record.Status, Reason: "already " + desired.String()}, nil
	}
	if err := ValidateTransition(record.Status, desired, role); err != nil {
		return TransitionResult{}, service.logged(ctx, OperationLog{Operation: operationTransition, BookingID: bookingID, FromStatus: record.Status, ToStatus: desired, Error: err})
	}

	reason := record.FailureReason
	if desired == StatusCancelled || desired == StatusFailed || desired == StatusRejected {
		reason = reasonForRole(desired, role)
	}
	err = service.store.UpdateStatus(ctx, bookingID, record.Status, desired, reason)
	if errors.Is(err, ErrStaleStatus) {
		// Someone else moved it between our read and write.
		current, readErr := service.store.GetBooking(ctx, bookingID)
		if readErr == nil && current.Status == desired {
			return TransitionResult{Applied: false, Status: desired, Reason: "already " + desired.String()}, nil
		}
		return TransitionResult{}, service.logged(ctx, OperationLog{Operation: operationTransition, BookingID: bookingID, FromStatus: record.Status, ToStatus: desired, Error: err})
	}
	if err != nil {
		return TransitionResult{}, service.logged(ctx, OperationLog{Operation: operationTransition, BookingID: bookingID, FromStatus: record.Status, ToStatus: desired, Error: err})
	}

	service.emitBookingUpdate(ctx, record, desired, statusMessage(desired, reason))
	service.logOperation(ctx, OperationLog{
		Operation:  operationTransition,
		BookingID:  bookingID,
		FromStatus: record.Status,
		ToStatus:   desired,
		Reason:     reason,
	})
	return TransitionResult{Applied: true, Status: desired}, nil
}

// reasonForRole records who ended the booking.
func reasonForRole(desired Status, role Role) string {
	switch desired {
	case StatusCancelled:
		return "cancelled by " + role.String()
	case StatusRejected:
		return "rejected by provider"
	case StatusFailed:
		return "failed"
	default:
		return ""
	}
}

// emitBookingUpdate broadcasts one event to both parties. Dispatch is best
// effort: a short timeout applies and failures are logged, never returned.
func (service *Service) emitBookingUpdate(ctx context.Context, record Booking, newStatus Status, message string) {
	event := Event{
		Type:      EventBookingUpdate,
		BookingID: record.BookingID,
		Status:    newStatus,
		Message:   message,
		AtUnixUTC: service.nowFn(),
	}
	service.notify(ctx, record.RequesterID, event)
	service.notify(ctx, record.ProviderID, event)
}

func (service *Service) notify(ctx context.Context, userID string, event Event) {
	if userID == "" {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.config.NotifyTimeout)
	defer cancel()
	if err := service.notifier.Notify(notifyCtx, userID, event); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationNotify,
			BookingID: event.BookingID,
			UserID:    userID,
			ToStatus:  event.Status,
			Error:     err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// logged records the entry and passes the error through.
func (service *Service) logged(ctx context.Context, entry OperationLog) error {
	service.logOperation(ctx, entry)
	return entry.Error
}
