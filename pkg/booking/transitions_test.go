package booking

import (
	"errors"
	"strings"
	"testing"
)

var allStatuses = []Status{
	StatusPendingPayment, StatusRequested, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusRejected, StatusFailed,
}

var allRoles = []Role{RoleRequester, RoleProvider, RoleAdmin, RoleSystem}

func allowedRoles(current, desired Status) []Role {
	return transitionRoles[transitionKey{from: current, to: desired}]
}

func TestValidateTransitionTruthTable(test *testing.T) {
	test.Parallel()
	for _, current := range allStatuses {
		for _, desired := range allStatuses {
			for _, role := range allRoles {
				err := ValidateTransition(current, desired, role)

				if current == desired {
					if err != nil {
						test.Fatalf("%s -> %s as %s: same-status must pass, got %v", current, desired, role, err)
					}
					continue
				}
				roles := allowedRoles(current, desired)
				if roles == nil {
					if !errors.Is(err, ErrInvalidTransition) {
						test.Fatalf("%s -> %s as %s: expected ErrInvalidTransition, got %v", current, desired, role, err)
					}
					continue
				}
				permitted := false
				for _, allowed := range roles {
					if allowed == role {
						permitted = true
					}
				}
				if permitted && err != nil {
					test.Fatalf("%s -> %s as %s: expected success, got %v", current, desired, role, err)
				}
				if !permitted && !errors.Is(err, ErrRoleNotPermitted) {
					test.Fatalf("%s -> %s as %s: expected ErrRoleNotPermitted, got %v", current, desired, role, err)
				}
			}
		}
	}
}

func TestValidateTransitionDenialMessages(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name     string
		current  Status
		desired  Status
		fragment string
	}{
		{name: "complete before start", current: StatusConfirmed, desired: StatusCompleted, fragment: "hasn't been started"},
		{name: "start before confirm", current: StatusRequested, desired: StatusInProgress, fragment: "hasn't been confirmed"},
		{name: "confirm a rejected booking", current: StatusRejected, desired: StatusConfirmed, fragment: "already REJECTED"},
		{name: "reject a confirmed booking", current: StatusConfirmed, desired: StatusRejected, fragment: "only a requested booking"},
		{name: "terminal completed", current: StatusCompleted, desired: StatusCancelled, fragment: "already COMPLETED"},
	}
	for _, testCase := range cases {
		test.Run(testCase.name, func(test *testing.T) {
			err := ValidateTransition(testCase.current, testCase.desired, RoleAdmin)
			if !errors.Is(err, ErrInvalidTransition) {
				test.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if !strings.Contains(err.Error(), testCase.fragment) {
				test.Fatalf("message %q does not mention %q", err.Error(), testCase.fragment)
			}
		})
	}
}

func TestAllowedNext(test *testing.T) {
	test.Parallel()
	next := AllowedNext(StatusRequested)
	if len(next) != 3 {
		test.Fatalf("expected 3 next statuses from REQUESTED, got %v", next)
	}
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusRejected, StatusFailed} {
		if got := AllowedNext(terminal); len(got) != 0 {
			test.Fatalf("terminal %s must have no next statuses, got %v", terminal, got)
		}
	}
}

func TestTerminalStatuses(test *testing.T) {
	test.Parallel()
	for _, status := range allStatuses {
		expected := status == StatusCompleted || status == StatusCancelled || status == StatusRejected || status == StatusFailed
		if status.Terminal() != expected {
			test.Fatalf("%s: Terminal() = %v, want %v", status, status.Terminal(), expected)
		}
	}
}

func TestParseStatusAndRole(test *testing.T) {
	test.Parallel()
	status, err := ParseStatus(" in_progress ")
	if err != nil || status != StatusInProgress {
		test.Fatalf("parse status: got %s, %v", status, err)
	}
	if _, err := ParseStatus("unknown"); !errors.Is(err, ErrInvalidStatus) {
		test.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	role, err := ParseRole("Admin")
	if err != nil || role != RoleAdmin {
		test.Fatalf("parse role: got %s, %v", role, err)
	}
	if _, err := ParseRole("owner"); !errors.Is(err, ErrInvalidRole) {
		test.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
