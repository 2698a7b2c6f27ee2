package booking

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

// metersToLatitudeDegrees converts a ground distance to a latitude offset.
func metersToLatitudeDegrees(meters float64) float64 {
	return meters / earthRadiusMeters * 180 / math.Pi
}

func TestHaversineMetersKnownDistance(test *testing.T) {
	test.Parallel()
	origin := Coordinates{LatitudeDegrees: 0, LongitudeDegrees: 0}
	north := Coordinates{LatitudeDegrees: 0.01, LongitudeDegrees: 0}
	distance := HaversineMeters(origin, north)
	// 0.01 degrees of latitude on a 6371km sphere.
	expected := 1111.949
	if math.Abs(distance-expected) > 0.5 {
		test.Fatalf("distance %.3f, want about %.3f", distance, expected)
	}
	if HaversineMeters(origin, origin) != 0 {
		test.Fatalf("zero distance expected for identical points")
	}
}

func TestVerifyArrivalWithinRadiusStartsBooking(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-arrive")
	fix.store.put(record)

	claimedLatitude := record.Location.LatitudeDegrees + metersToLatitudeDegrees(149.9)
	result, err := fix.service.VerifyArrival(context.Background(), "bk-arrive", "provider-1",
		claimedLatitude, record.Location.LongitudeDegrees, "739481")
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if result.Status != StatusInProgress {
		test.Fatalf("status %s, want IN_PROGRESS", result.Status)
	}
	if result.DistanceMeters > 150 || result.DistanceMeters < 149 {
		test.Fatalf("distance %.2f out of expected band", result.DistanceMeters)
	}

	stored, _ := fix.store.GetBooking(context.Background(), "bk-arrive")
	if stored.Status != StatusInProgress || !stored.Attendance.ProviderConfirmed {
		test.Fatalf("arrival not persisted: %+v", stored)
	}
	if stored.Attendance.ProviderConfirmedAtUnixUTC != testNowUnixUTC {
		test.Fatalf("confirmation timestamp %d", stored.Attendance.ProviderConfirmedAtUnixUTC)
	}

	arrived := fix.notifier.eventsOfType(EventProviderArrived)
	if len(arrived) != 1 || arrived[0].userID != "requester-1" {
		test.Fatalf("requester must be notified once, got %+v", arrived)
	}
	if !strings.Contains(arrived[0].event.Message, "arrived") {
		test.Fatalf("unexpected message %q", arrived[0].event.Message)
	}
}

func TestVerifyArrivalJustOverRadiusRejected(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-far")
	fix.store.put(record)

	claimedLatitude := record.Location.LatitudeDegrees + metersToLatitudeDegrees(150.9)
	_, err := fix.service.VerifyArrival(context.Background(), "bk-far", "provider-1",
		claimedLatitude, record.Location.LongitudeDegrees, "739481")
	if !errors.Is(err, ErrOutOfRange) {
		test.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if !strings.Contains(err.Error(), "~1m over the 150m threshold") {
		test.Fatalf("message %q lacks threshold context", err.Error())
	}

	stored, _ := fix.store.GetBooking(context.Background(), "bk-far")
	if stored.Status != StatusConfirmed {
		test.Fatalf("rejected arrival must not change status, got %s", stored.Status)
	}
}

func TestVerifyArrivalGuards(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-guards")
	fix.store.put(record)

	latitude := record.Location.LatitudeDegrees
	longitude := record.Location.LongitudeDegrees

	_, err := fix.service.VerifyArrival(context.Background(), "bk-guards", "someone-else", latitude, longitude, "739481")
	if !errors.Is(err, ErrNotAssignedProvider) {
		test.Fatalf("wrong provider: got %v", err)
	}

	_, err = fix.service.VerifyArrival(context.Background(), "bk-guards", "provider-1", latitude, longitude, "000000")
	if !errors.Is(err, ErrStartCodeMismatch) {
		test.Fatalf("bad start code: got %v", err)
	}

	_, err = fix.service.VerifyArrival(context.Background(), "bk-guards", "provider-1", 91, longitude, "739481")
	if !errors.Is(err, ErrInvalidCoordinates) {
		test.Fatalf("bad latitude: got %v", err)
	}

	_, err = fix.service.VerifyArrival(context.Background(), "bk-guards", "provider-1", latitude, 181, "739481")
	if !errors.Is(err, ErrInvalidCoordinates) {
		test.Fatalf("bad longitude: got %v", err)
	}

	noLocation := confirmedBooking("bk-noloc")
	noLocation.Location = nil
	fix.store.put(noLocation)
	_, err = fix.service.VerifyArrival(context.Background(), "bk-noloc", "provider-1", latitude, longitude, "739481")
	if !errors.Is(err, ErrMissingLocation) {
		test.Fatalf("missing location: got %v", err)
	}

	requested := confirmedBooking("bk-requested")
	requested.Status = StatusRequested
	fix.store.put(requested)
	_, err = fix.service.VerifyArrival(context.Background(), "bk-requested", "provider-1", latitude, longitude, "739481")
	if !errors.Is(err, ErrInvalidTransition) {
		test.Fatalf("unconfirmed booking: got %v", err)
	}
}

func TestVerifyArrivalRepeatCallIsNoOp(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-again")
	fix.store.put(record)

	latitude := record.Location.LatitudeDegrees
	longitude := record.Location.LongitudeDegrees
	if _, err := fix.service.VerifyArrival(context.Background(), "bk-again", "provider-1", latitude, longitude, "739481"); err != nil {
		test.Fatalf("first verify: %v", err)
	}

	repeat, err := fix.service.VerifyArrival(context.Background(), "bk-again", "provider-1", latitude, longitude, "739481")
	if err != nil {
		test.Fatalf("repeat verify must be a no-op, got %v", err)
	}
	if !repeat.AlreadyConfirmed || repeat.Status != StatusInProgress {
		test.Fatalf("unexpected repeat result %+v", repeat)
	}
	if arrived := fix.notifier.eventsOfType(EventProviderArrived); len(arrived) != 1 {
		test.Fatalf("repeat call must not notify again, got %d events", len(arrived))
	}
}

func TestVerifyArrivalLostRaceDegradesToNoOp(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-race")
	record.Status = StatusInProgress
	record.Attendance.ProviderConfirmed = true
	record.Attendance.ProviderConfirmedAtUnixUTC = testNowUnixUTC - 60
	fix.store.put(record)

	// The first read sees the booking before the concurrent arrival landed.
	store := &arrivalRaceStore{stubStore: fix.store, staleReads: 1}
	service, err := NewService(store, fix.ledger, fix.notifier, fix.directory, func() int64 { return testNowUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	result, err := service.VerifyArrival(context.Background(), "bk-race", "provider-1",
		record.Location.LatitudeDegrees, record.Location.LongitudeDegrees, "739481")
	if err != nil {
		test.Fatalf("lost race must degrade to a no-op, got %v", err)
	}
	if !result.AlreadyConfirmed || result.Status != StatusInProgress {
		test.Fatalf("unexpected result %+v", result)
	}
}

// arrivalRaceStore serves a stale pre-arrival view for the first read.
type arrivalRaceStore struct {
	*stubStore
	staleReads int
}

func (store *arrivalRaceStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	record, err := store.stubStore.GetBooking(ctx, bookingID)
	if err != nil {
		return record, err
	}
	if store.staleReads > 0 {
		store.staleReads--
		record.Status = StatusConfirmed
		record.Attendance = Attendance{}
	}
	return record, nil
}

func TestVerifyArrivalWithoutStartCodeRequirement(test *testing.T) {
	test.Parallel()
	fix := newFixture(test)
	record := confirmedBooking("bk-nocode")
	record.StartCode = ""
	fix.store.put(record)

	_, err := fix.service.VerifyArrival(context.Background(), "bk-nocode", "provider-1",
		record.Location.LatitudeDegrees, record.Location.LongitudeDegrees, "")
	if err != nil {
		test.Fatalf("verify without start code: %v", err)
	}
}
