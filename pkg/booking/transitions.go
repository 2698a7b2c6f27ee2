package booking

import "fmt"

// transitionKey identifies one edge of the status graph.
type transitionKey struct {
	from Status
	to   Status
}

// transitionRoles is the single authority for which edges exist and which
// roles may trigger them. New edges are additive data changes here, not
// new branching in code.
var transitionRoles = map[transitionKey][]Role{
	{StatusPendingPayment, StatusConfirmed}: {RoleSystem, RoleAdmin},
	{StatusPendingPayment, StatusCancelled}: {RoleRequester, RoleAdmin, RoleSystem},
	{StatusPendingPayment, StatusFailed}:    {RoleSystem, RoleAdmin},

	{StatusRequested, StatusConfirmed}: {RoleProvider, RoleAdmin, RoleSystem},
	{StatusRequested, StatusRejected}:  {RoleProvider, RoleAdmin},
	{StatusRequested, StatusCancelled}: {RoleRequester, RoleAdmin, RoleSystem},

	{StatusConfirmed, StatusInProgress}: {RoleProvider, RoleSystem},
	{StatusConfirmed, StatusCancelled}:  {RoleRequester, RoleProvider, RoleAdmin, RoleSystem},

	{StatusInProgress, StatusCompleted}: {RoleProvider, RoleRequester, RoleAdmin},
	{StatusInProgress, StatusCancelled}: {RoleAdmin, RoleSystem},
}

// AllowedNext returns the statuses reachable from current.
func AllowedNext(current Status) []Status {
	next := make([]Status, 0, 4)
	for key := range transitionRoles {
		if key.from == current {
			next = append(next, key.to)
		}
	}
	return next
}

// ValidateTransition checks that the (current, desired) edge exists and that
// the acting role is allowed on it. A same-status request is an idempotent
// no-op and always passes. The caller owns the conditional persistence write
// and the single notification on success.
func ValidateTransition(current, desired Status, role Role) error {
	if current == desired {
		return nil
	}
	roles, ok := transitionRoles[transitionKey{from: current, to: desired}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, transitionDenialReason(current, desired))
	}
	for _, allowed := range roles {
		if allowed == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move a booking from %s to %s", ErrRoleNotPermitted, role, current, desired)
}

// transitionDenialReason produces a specific human-readable explanation for
// the most common illegal edges instead of one generic message.
func transitionDenialReason(current, desired Status) string {
	switch {
	case current.Terminal():
		return fmt.Sprintf("booking is already %s and cannot change further", current)
	case desired == StatusCompleted && current != StatusInProgress:
		return "cannot complete a booking that hasn't been started"
	case desired == StatusInProgress && current != StatusConfirmed:
		return "cannot start a booking that hasn't been confirmed"
	case desired == StatusConfirmed && current == StatusInProgress:
		return "booking is already in progress"
	case desired == StatusRejected && current != StatusRequested:
		return "only a requested booking can be rejected"
	default:
		return fmt.Sprintf("cannot move a booking from %s to %s", current, desired)
	}
}

// statusMessage is the human-readable broadcast text per landed status.
func statusMessage(desired Status, reason string) string {
	switch desired {
	case StatusConfirmed:
		return "Your booking has been confirmed"
	case StatusInProgress:
		return "The service has started"
	case StatusCompleted:
		return "The service has been completed"
	case StatusRejected:
		return "The booking request was declined"
	case StatusCancelled:
		if reason != "" {
			return "The booking was cancelled: " + reason
		}
		return "The booking was cancelled"
	case StatusFailed:
		if reason != "" {
			return "The booking could not proceed: " + reason
		}
		return "The booking could not proceed"
	default:
		return "Booking updated to " + desired.String()
	}
}
