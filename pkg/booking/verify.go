package booking

import (
	"context"
	"errors"
	"fmt"
)

// ArrivalResult reports an accepted arrival verification. AlreadyConfirmed
// marks the idempotent repeat call: the arrival had been recorded before, no
// state changed and no notification was sent.
type ArrivalResult struct {
	DistanceMeters   float64
	Status           Status
	AlreadyConfirmed bool
}

// VerifyArrival gates the CONFIRMED -> IN_PROGRESS transition on physical
// proximity proof. The claimed coordinates must be within the configured
// radius of the booking's service location and the one-time start code must
// match. On acceptance the provider attendance confirmation is recorded, the
// booking moves to IN_PROGRESS, and the requester is notified in real time
// with the measured distance.
func (service *Service) VerifyArrival(ctx context.Context, bookingID, providerID string, latitudeDegrees, longitudeDegrees float64, startCode string) (ArrivalResult, error) {
	claimed, err := NewCoordinates(latitudeDegrees, longitudeDegrees)
	if err != nil {
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	record, err := service.store.GetBooking(ctx, bookingID)
	if err != nil {
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	if record.ProviderID != providerID {
		err = fmt.Errorf("%w: booking %s belongs to another provider", ErrNotAssignedProvider, bookingID)
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	if record.Location == nil {
		err = fmt.Errorf("%w: booking %s has no service coordinates", ErrMissingLocation, bookingID)
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	if record.StartCode != "" && record.StartCode != startCode {
		err = fmt.Errorf("%w: the start code does not authorize this booking", ErrStartCodeMismatch)
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	if record.Attendance.ProviderConfirmed {
		return ArrivalResult{Status: record.Status, AlreadyConfirmed: true}, nil
	}
	if err := ValidateTransition(record.Status, StatusInProgress, RoleProvider); err != nil {
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, FromStatus: record.Status, Error: err})
	}

	distance := HaversineMeters(*record.Location, claimed)
	if distance > service.config.ArrivalRadiusMeters {
		err = fmt.Errorf("%w: %.0fm from the service location, ~%.0fm over the %.0fm threshold",
			ErrOutOfRange, distance, distance-service.config.ArrivalRadiusMeters, service.config.ArrivalRadiusMeters)
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}

	err = service.store.RecordProviderArrival(ctx, bookingID, service.nowFn())
	if errors.Is(err, ErrStaleStatus) {
		// Someone else moved the booking between our read and write. When
		// that someone was this provider's own earlier call, the outcome is
		// the idempotent no-op.
		current, readErr := service.store.GetBooking(ctx, bookingID)
		if readErr == nil && current.Attendance.ProviderConfirmed {
			return ArrivalResult{Status: current.Status, AlreadyConfirmed: true}, nil
		}
		err = fmt.Errorf("%w: booking changed concurrently, retry", err)
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}
	if err != nil {
		return ArrivalResult{}, service.logged(ctx, OperationLog{Operation: operationVerifyArrival, BookingID: bookingID, UserID: providerID, Error: err})
	}

	service.notify(ctx, record.RequesterID, Event{
		Type:      EventProviderArrived,
		BookingID: bookingID,
		Status:    StatusInProgress,
		Message:   fmt.Sprintf("Your provider has arrived (%.0fm from the service location)", distance),
		AtUnixUTC: service.nowFn(),
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationVerifyArrival,
		BookingID:  bookingID,
		UserID:     providerID,
		FromStatus: StatusConfirmed,
		ToStatus:   StatusInProgress,
	})
	return ArrivalResult{DistanceMeters: distance, Status: StatusInProgress}, nil
}
