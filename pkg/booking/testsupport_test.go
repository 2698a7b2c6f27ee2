package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

const testNowUnixUTC int64 = 1_750_000_000

type stubStore struct {
	mu            sync.Mutex
	bookings      map[string]Booking
	penalties     map[string]Penalty
	refunds       map[string]GuaranteeRefund
	reassignments []ReassignmentRecord
	penaltySeq    int
	refundSeq     int
}

func newStubStore() *stubStore {
	return &stubStore{
		bookings:  map[string]Booking{},
		penalties: map[string]Penalty{},
		refunds:   map[string]GuaranteeRefund{},
	}
}

func (store *stubStore) put(record Booking) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.bookings[record.BookingID] = record
}

func (store *stubStore) GetBooking(_ context.Context, bookingID string) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
	}
	return record, nil
}

func (store *stubStore) UpdateStatus(_ context.Context, bookingID string, from, to Status, reason string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok || record.Status != from {
		return ErrStaleStatus
	}
	record.Status = to
	if reason != "" {
		record.FailureReason = reason
	}
	store.bookings[bookingID] = record
	return nil
}

func (store *stubStore) RecordProviderArrival(_ context.Context, bookingID string, confirmedUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok || record.Status != StatusConfirmed {
		return ErrStaleStatus
	}
	record.Status = StatusInProgress
	record.Attendance.ProviderConfirmed = true
	record.Attendance.ProviderConfirmedAtUnixUTC = confirmedUnixUTC
	store.bookings[bookingID] = record
	return nil
}

func (store *stubStore) ReassignProvider(_ context.Context, reassignment ReassignmentRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[reassignment.BookingID]
	if !ok || record.Status != StatusConfirmed || record.Reassigned {
		return ErrStaleStatus
	}
	record.ProviderID = reassignment.NewProviderID
	record.Reassigned = true
	record.OriginalProviderID = reassignment.OriginalProviderID
	record.ReassignReason = reassignment.Reason
	record.ReassignedUnixUTC = reassignment.ReassignedUnixUTC
	store.bookings[reassignment.BookingID] = record
	store.reassignments = append(store.reassignments, reassignment)
	return nil
}

func (store *stubStore) SetPaymentStatus(_ context.Context, bookingID string, to PaymentStatus, reason string, _ int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok || record.PaymentStatus == to {
		return ErrStaleStatus
	}
	record.PaymentStatus = to
	if reason != "" {
		record.FailureReason = reason
	}
	store.bookings[bookingID] = record
	return nil
}

func (store *stubStore) ListStatusOlderThan(_ context.Context, status Status, createdBeforeUnixUTC int64, limit int) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var batch []Booking
	for _, record := range store.bookings {
		if record.Status == status && record.CreatedUnixUTC < createdBeforeUnixUTC && len(batch) < limit {
			batch = append(batch, record)
		}
	}
	return batch, nil
}

func (store *stubStore) ListOverdueConfirmed(_ context.Context, scheduledBeforeUnixUTC int64, limit int) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var batch []Booking
	for _, record := range store.bookings {
		if record.Status == StatusConfirmed && record.ScheduledUnixUTC < scheduledBeforeUnixUTC &&
			!record.Attendance.ProviderConfirmed && !record.Reassigned && len(batch) < limit {
			batch = append(batch, record)
		}
	}
	return batch, nil
}

func (store *stubStore) ListRefundCandidates(_ context.Context, cancelReason string, limit int) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var batch []Booking
	for _, record := range store.bookings {
		if record.Status != StatusCancelled || record.FailureReason != cancelReason || len(batch) >= limit {
			continue
		}
		if record.PaymentStatus != PaymentPaid {
			continue
		}
		if _, refunded := store.refunds[record.BookingID]; refunded {
			continue
		}
		batch = append(batch, record)
	}
	return batch, nil
}

func (store *stubStore) CountActivePenalties(_ context.Context, providerID string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	count := 0
	for _, penalty := range store.penalties {
		if penalty.ProviderID == providerID && penalty.Status == PenaltyActive {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) InsertPenalty(_ context.Context, penalty Penalty) (Penalty, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.penaltySeq++
	penalty.PenaltyID = fmt.Sprintf("penalty-%d", store.penaltySeq)
	store.penalties[penalty.PenaltyID] = penalty
	return penalty, nil
}

func (store *stubStore) GetPenalty(_ context.Context, penaltyID string) (Penalty, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	penalty, ok := store.penalties[penaltyID]
	if !ok {
		return Penalty{}, fmt.Errorf("%w: penalty %s", ErrNotFound, penaltyID)
	}
	return penalty, nil
}

func (store *stubStore) FindActivePenalty(_ context.Context, providerID, bookingID string) (Penalty, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, penalty := range store.penalties {
		if penalty.ProviderID == providerID && penalty.BookingID == bookingID && penalty.Status == PenaltyActive {
			return penalty, nil
		}
	}
	return Penalty{}, fmt.Errorf("%w: no active penalty for provider %s on booking %s", ErrNotFound, providerID, bookingID)
}

func (store *stubStore) MarkPenaltyReversed(_ context.Context, penaltyID string, atUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	penalty, ok := store.penalties[penaltyID]
	if !ok || penalty.Status != PenaltyActive {
		return ErrStaleStatus
	}
	penalty.Status = PenaltyReversed
	penalty.ReversedAtUnixUTC = atUnixUTC
	store.penalties[penaltyID] = penalty
	return nil
}

func (store *stubStore) GetRefundByBooking(_ context.Context, bookingID string) (GuaranteeRefund, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	refund, ok := store.refunds[bookingID]
	if !ok {
		return GuaranteeRefund{}, fmt.Errorf("%w: no refund for booking %s", ErrNotFound, bookingID)
	}
	return refund, nil
}

func (store *stubStore) InsertRefund(_ context.Context, refund GuaranteeRefund) (GuaranteeRefund, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, exists := store.refunds[refund.BookingID]; exists {
		return GuaranteeRefund{}, ErrAlreadyRefunded
	}
	store.refundSeq++
	refund.RefundID = fmt.Sprintf("refund-%d", store.refundSeq)
	store.refunds[refund.BookingID] = refund
	return refund, nil
}

type walletCall struct {
	userID      string
	amountCents int64
	reference   string
}

type stubLedger struct {
	mu      sync.Mutex
	credits []walletCall
	debits  []walletCall
	err     error
}

func (ledger *stubLedger) Credit(_ context.Context, userID string, amountCents int64, reference string) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if ledger.err != nil {
		return ledger.err
	}
	ledger.credits = append(ledger.credits, walletCall{userID: userID, amountCents: amountCents, reference: reference})
	return nil
}

func (ledger *stubLedger) Debit(_ context.Context, userID string, amountCents int64, reference string) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if ledger.err != nil {
		return ledger.err
	}
	ledger.debits = append(ledger.debits, walletCall{userID: userID, amountCents: amountCents, reference: reference})
	return nil
}

type sentEvent struct {
	userID string
	event  Event
}

type stubNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (notifier *stubNotifier) Notify(_ context.Context, userID string, event Event) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.events = append(notifier.events, sentEvent{userID: userID, event: event})
	return nil
}

func (notifier *stubNotifier) eventsOfType(eventType string) []sentEvent {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	var matched []sentEvent
	for _, sent := range notifier.events {
		if sent.event.Type == eventType {
			matched = append(matched, sent)
		}
	}
	return matched
}

type stubDirectory struct {
	mu        sync.Mutex
	backup    Provider
	found     bool
	err       error
	standings map[string]ProviderStanding
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{standings: map[string]ProviderStanding{}}
}

func (directory *stubDirectory) FindBackupProvider(_ context.Context, _ BackupCriteria) (Provider, bool, error) {
	directory.mu.Lock()
	defer directory.mu.Unlock()
	if directory.err != nil {
		return Provider{}, false, directory.err
	}
	return directory.backup, directory.found, nil
}

func (directory *stubDirectory) SetProviderStanding(_ context.Context, providerID string, standing ProviderStanding) error {
	directory.mu.Lock()
	defer directory.mu.Unlock()
	directory.standings[providerID] = standing
	return nil
}

type fixture struct {
	service   *Service
	store     *stubStore
	ledger    *stubLedger
	notifier  *stubNotifier
	directory *stubDirectory
}

func newFixture(test *testing.T, options ...ServiceOption) *fixture {
	test.Helper()
	store := newStubStore()
	ledger := &stubLedger{}
	notifier := &stubNotifier{}
	directory := newStubDirectory()
	clock := func() int64 { return testNowUnixUTC }
	service, err := NewService(store, ledger, notifier, directory, clock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return &fixture{
		service:   service,
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		directory: directory,
	}
}

func confirmedBooking(bookingID string) Booking {
	return Booking{
		BookingID:        bookingID,
		RequesterID:      "requester-1",
		ProviderID:       "provider-1",
		ServiceType:      "pooja",
		City:             "Pune",
		ScheduledUnixUTC: testNowUnixUTC - 3600,
		DurationMinutes:  120,
		Location:         &Coordinates{LatitudeDegrees: 18.5204, LongitudeDegrees: 73.8567},
		Status:           StatusConfirmed,
		PaymentStatus:    PaymentPaid,
		TotalAmountCents: 4608_00,
		StartCode:        "739481",
		CreatedUnixUTC:   testNowUnixUTC - 7200,
	}
}
