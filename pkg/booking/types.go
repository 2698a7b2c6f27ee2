package booking

import (
	"fmt"
	"strings"
)

// Status enumerates the booking lifecycle states.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusRequested      Status = "REQUESTED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRejected       Status = "REJECTED"
	StatusFailed         Status = "FAILED"
)

// String returns the stored representation.
func (status Status) String() string {
	return string(status)
}

// Terminal reports whether the status has no outgoing transitions.
func (status Status) Terminal() bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusPendingPayment, StatusRequested, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusRejected, StatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, raw)
}

// Role identifies who is requesting a transition.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// String returns the stored representation.
func (role Role) String() string {
	return string(role)
}

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleRequester, RoleProvider, RoleAdmin, RoleSystem:
		return role, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRole, raw)
}

// PaymentStatus tracks the money side of a booking.
type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentFailed      PaymentStatus = "failed"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentNotRequired PaymentStatus = "not_required"
)

// String returns the stored representation.
func (paymentStatus PaymentStatus) String() string {
	return string(paymentStatus)
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	LatitudeDegrees  float64
	LongitudeDegrees float64
}

// NewCoordinates validates latitude and longitude ranges.
func NewCoordinates(latitudeDegrees, longitudeDegrees float64) (Coordinates, error) {
	if latitudeDegrees < -90 || latitudeDegrees > 90 {
		return Coordinates{}, fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinates, latitudeDegrees)
	}
	if longitudeDegrees < -180 || longitudeDegrees > 180 {
		return Coordinates{}, fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinates, longitudeDegrees)
	}
	return Coordinates{LatitudeDegrees: latitudeDegrees, LongitudeDegrees: longitudeDegrees}, nil
}

// Attendance records the two independent arrival confirmations.
type Attendance struct {
	ProviderConfirmed           bool
	ProviderConfirmedAtUnixUTC  int64
	RequesterConfirmed          bool
	RequesterConfirmedAtUnixUTC int64
}

// Booking is the central entity coordinated by this package.
//
// TotalAmountCents = BaseAmountCents + FeeCents - DiscountCents at creation
// and is never mutated afterwards; refunds are separate ledger entries.
type Booking struct {
	BookingID          string
	RequesterID        string
	ProviderID         string
	ServiceType        string
	City               string
	ScheduledUnixUTC   int64
	DurationMinutes    int
	Location           *Coordinates
	Status             Status
	PaymentStatus      PaymentStatus
	BaseAmountCents    int64
	DiscountCents      int64
	FeeCents           int64
	TotalAmountCents   int64
	StartCode          string
	Attendance         Attendance
	Reassigned         bool
	OriginalProviderID string
	ReassignReason     string
	ReassignedUnixUTC  int64
	FailureReason      string
	CreatedUnixUTC     int64
}

// ReassignmentRecord is an append-only audit entry for a provider swap.
type ReassignmentRecord struct {
	RecordID           string
	BookingID          string
	OriginalProviderID string
	NewProviderID      string
	Reason             string
	ReassignedUnixUTC  int64
}

// PenaltyTier is one rung of the escalation ladder.
type PenaltyTier string

const (
	TierFirst  PenaltyTier = "first"
	TierSecond PenaltyTier = "second"
	TierThird  PenaltyTier = "third"
	TierRepeat PenaltyTier = "repeat"
)

// PenaltyAction is the account consequence attached to a tier.
type PenaltyAction string

const (
	ActionWarning    PenaltyAction = "warning"
	ActionSuspension PenaltyAction = "suspension"
	ActionBanReview  PenaltyAction = "ban_review"
)

// PenaltyStatus distinguishes live penalties from reversed ones.
type PenaltyStatus string

const (
	PenaltyActive   PenaltyStatus = "active"
	PenaltyReversed PenaltyStatus = "reversed"
)

// String returns the stored representation.
func (penaltyStatus PenaltyStatus) String() string {
	return string(penaltyStatus)
}

// ViolationType names the offense a penalty was assessed for.
type ViolationType string

const (
	ViolationNoShow         ViolationType = "no_show"
	ViolationQualityFailure ViolationType = "quality_failure"
)

// Penalty is one record per confirmed provider violation.
type Penalty struct {
	PenaltyID         string
	ProviderID        string
	BookingID         string
	Violation         ViolationType
	Tier              PenaltyTier
	AmountCents       int64
	Action            PenaltyAction
	OffenseNumber     int
	Status            PenaltyStatus
	CreatedUnixUTC    int64
	ReversedAtUnixUTC int64
}

// RefundStatus for guarantee refunds; records are never deleted.
type RefundStatus string

const RefundIssued RefundStatus = "issued"

// GuaranteeRefund is created at most once per booking.
type GuaranteeRefund struct {
	RefundID       string
	BookingID      string
	RequesterID    string
	ProviderID     string
	AmountCents    int64
	Reason         string
	Status         RefundStatus
	CreatedUnixUTC int64
}

// ProviderStanding is the account status mutated by the penalty assessor.
type ProviderStanding string

const (
	StandingActive    ProviderStanding = "active"
	StandingSuspended ProviderStanding = "suspended"
	StandingBanReview ProviderStanding = "ban_review"
)

// String returns the stored representation.
func (standing ProviderStanding) String() string {
	return string(standing)
}

// Provider is the directory view consumed for backup reassignment.
type Provider struct {
	ProviderID      string
	City            string
	Specializations []string
	Rating          float64
	Available       bool
	Standing        ProviderStanding
}

// BackupCriteria narrows the candidate search for a substitute provider.
type BackupCriteria struct {
	ExcludeProviderID string
	City              string
	ServiceType       string
}
