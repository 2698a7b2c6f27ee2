package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

const (
	constraintRefundBooking = "uniq_refund_booking"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectBooking     = "booking"
	errorSubjectPenalty     = "penalty"
	errorSubjectReassign    = "reassignment"
	errorSubjectRefund      = "refund"
	errorCodeCount          = "count"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeUpdate         = "update"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	var record BookingRecord
	err := store.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	return mapBooking(record)
}

// CreateBooking persists a new booking and returns it with the generated
// identifier.
func (store *Store) CreateBooking(ctx context.Context, entity booking.Booking) (booking.Booking, error) {
	record := bookingModel(entity)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInsert, err)
	}
	return mapBooking(record)
}

func (store *Store) UpdateStatus(ctx context.Context, bookingID string, from, to booking.Status, reason string) error {
	assignments := map[string]any{
		"status":     to.String(),
		"updated_at": time.Now().UTC(),
	}
	if reason != "" {
		assignments["failure_reason"] = reason
	}
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND status = ?", bookingID, from.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, booking.ErrStaleStatus)
	}
	return nil
}

func (store *Store) RecordProviderArrival(ctx context.Context, bookingID string, confirmedUnixUTC int64) error {
	confirmedAt := time.Unix(confirmedUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND status = ?", bookingID, booking.StatusConfirmed.String()).
		Updates(map[string]any{
			"status":              booking.StatusInProgress.String(),
			"provider_arrived":    true,
			"provider_arrived_at": confirmedAt,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, booking.ErrStaleStatus)
	}
	return nil
}

func (store *Store) ReassignProvider(ctx context.Context, record booking.ReassignmentRecord) error {
	reassignedAt := time.Unix(record.ReassignedUnixUTC, 0).UTC()
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		result := transaction.
			Model(&BookingRecord{}).
			Where("booking_id = ? AND status = ? AND reassigned = ?",
				record.BookingID, booking.StatusConfirmed.String(), false).
			Updates(map[string]any{
				"provider_id":          record.NewProviderID,
				"reassigned":           true,
				"original_provider_id": record.OriginalProviderID,
				"reassign_reason":      record.Reason,
				"reassigned_at":        reassignedAt,
				"updated_at":           time.Now().UTC(),
			})
		if result.Error != nil {
			return wrapStoreError(errorSubjectReassign, errorCodeUpdate, result.Error)
		}
		if result.RowsAffected == 0 {
			return wrapStoreError(errorSubjectReassign, errorCodeUpdate, booking.ErrStaleStatus)
		}
		audit := ReassignmentRecord{
			BookingID:          record.BookingID,
			OriginalProviderID: record.OriginalProviderID,
			NewProviderID:      record.NewProviderID,
			Reason:             record.Reason,
			CreatedAt:          reassignedAt,
		}
		if err := transaction.Create(&audit).Error; err != nil {
			return wrapStoreError(errorSubjectReassign, errorCodeInsert, err)
		}
		return nil
	})
}

func (store *Store) SetPaymentStatus(ctx context.Context, bookingID string, to booking.PaymentStatus, reason string, atUnixUTC int64) error {
	assignments := map[string]any{
		"payment_status": to.String(),
		"updated_at":     time.Unix(atUnixUTC, 0).UTC(),
	}
	if reason != "" {
		assignments["failure_reason"] = reason
	}
	result := store.db.WithContext(ctx).
		Model(&BookingRecord{}).
		Where("booking_id = ? AND payment_status <> ?", bookingID, to.String()).
		Updates(assignments)
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, booking.ErrStaleStatus)
	}
	return nil
}

func (store *Store) ListStatusOlderThan(ctx context.Context, status booking.Status, createdBeforeUnixUTC int64, limit int) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status.String(), time.Unix(createdBeforeUnixUTC, 0).UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) ListOverdueConfirmed(ctx context.Context, scheduledBeforeUnixUTC int64, limit int) ([]booking.Booking, error) {
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("status = ? AND scheduled_at < ? AND provider_arrived = ? AND reassigned = ?",
			booking.StatusConfirmed.String(), time.Unix(scheduledBeforeUnixUTC, 0).UTC(), false, false).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) ListRefundCandidates(ctx context.Context, cancelReason string, limit int) ([]booking.Booking, error) {
	refunded := store.db.Model(&RefundRecord{}).Select("booking_id")
	var rows []BookingRecord
	err := store.db.WithContext(ctx).
		Where("status = ? AND failure_reason = ? AND payment_status = ? AND booking_id NOT IN (?)",
			booking.StatusCancelled.String(), cancelReason, booking.PaymentPaid.String(), refunded).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	return mapBookings(rows)
}

func (store *Store) CountActivePenalties(ctx context.Context, providerID string) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&PenaltyRecord{}).
		Where("provider_id = ? AND status = ?", providerID, booking.PenaltyActive.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectPenalty, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) InsertPenalty(ctx context.Context, penalty booking.Penalty) (booking.Penalty, error) {
	record := PenaltyRecord{
		PenaltyID:     penalty.PenaltyID,
		ProviderID:    penalty.ProviderID,
		BookingID:     penalty.BookingID,
		Violation:     string(penalty.Violation),
		Tier:          string(penalty.Tier),
		AmountCents:   penalty.AmountCents,
		Action:        string(penalty.Action),
		OffenseNumber: penalty.OffenseNumber,
		Status:        string(penalty.Status),
		CreatedAt:     time.Unix(penalty.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return booking.Penalty{}, wrapStoreError(errorSubjectPenalty, errorCodeInsert, err)
	}
	return mapPenalty(record), nil
}

func (store *Store) GetPenalty(ctx context.Context, penaltyID string) (booking.Penalty, error) {
	var record PenaltyRecord
	err := store.db.WithContext(ctx).Where("penalty_id = ?", penaltyID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Penalty{}, wrapStoreError(errorSubjectPenalty, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Penalty{}, wrapStoreError(errorSubjectPenalty, errorCodeGet, err)
	}
	return mapPenalty(record), nil
}

func (store *Store) FindActivePenalty(ctx context.Context, providerID, bookingID string) (booking.Penalty, error) {
	var record PenaltyRecord
	err := store.db.WithContext(ctx).
		Where("provider_id = ? AND booking_id = ? AND status = ?",
			providerID, bookingID, booking.PenaltyActive.String()).
		Order("created_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Penalty{}, wrapStoreError(errorSubjectPenalty, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Penalty{}, wrapStoreError(errorSubjectPenalty, errorCodeGet, err)
	}
	return mapPenalty(record), nil
}

func (store *Store) MarkPenaltyReversed(ctx context.Context, penaltyID string, atUnixUTC int64) error {
	reversedAt := time.Unix(atUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&PenaltyRecord{}).
		Where("penalty_id = ? AND status = ?", penaltyID, booking.PenaltyActive.String()).
		Updates(map[string]any{
			"status":      booking.PenaltyReversed.String(),
			"reversed_at": reversedAt,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPenalty, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPenalty, errorCodeUpdate, booking.ErrStaleStatus)
	}
	return nil
}

func (store *Store) GetRefundByBooking(ctx context.Context, bookingID string) (booking.GuaranteeRefund, error) {
	var record RefundRecord
	err := store.db.WithContext(ctx).Where("booking_id = ?", bookingID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.GuaranteeRefund{}, wrapStoreError(errorSubjectRefund, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.GuaranteeRefund{}, wrapStoreError(errorSubjectRefund, errorCodeGet, err)
	}
	return mapRefund(record), nil
}

func (store *Store) InsertRefund(ctx context.Context, refund booking.GuaranteeRefund) (booking.GuaranteeRefund, error) {
	record := RefundRecord{
		RefundID:    refund.RefundID,
		BookingID:   refund.BookingID,
		RequesterID: refund.RequesterID,
		ProviderID:  refund.ProviderID,
		AmountCents: refund.AmountCents,
		Reason:      refund.Reason,
		Status:      string(refund.Status),
		CreatedAt:   time.Unix(refund.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if isRefundConflict(err) {
		return booking.GuaranteeRefund{}, wrapStoreError(errorSubjectRefund, errorCodeDuplicate, booking.ErrAlreadyRefunded)
	}
	if err != nil {
		return booking.GuaranteeRefund{}, wrapStoreError(errorSubjectRefund, errorCodeInsert, err)
	}
	return mapRefund(record), nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func bookingModel(entity booking.Booking) BookingRecord {
	record := BookingRecord{
		BookingID:          entity.BookingID,
		RequesterID:        entity.RequesterID,
		ProviderID:         entity.ProviderID,
		ServiceType:        entity.ServiceType,
		City:               entity.City,
		ScheduledAt:        time.Unix(entity.ScheduledUnixUTC, 0).UTC(),
		DurationMinutes:    entity.DurationMinutes,
		Status:             entity.Status.String(),
		PaymentStatus:      entity.PaymentStatus.String(),
		BaseAmountCents:    entity.BaseAmountCents,
		DiscountCents:      entity.DiscountCents,
		FeeCents:           entity.FeeCents,
		TotalAmountCents:   entity.TotalAmountCents,
		StartCode:          entity.StartCode,
		Reassigned:         entity.Reassigned,
		OriginalProviderID: entity.OriginalProviderID,
		ReassignReason:     entity.ReassignReason,
		FailureReason:      entity.FailureReason,
	}
	if entity.Location != nil {
		latitude := entity.Location.LatitudeDegrees
		longitude := entity.Location.LongitudeDegrees
		record.LatitudeDegrees = &latitude
		record.LongitudeDegrees = &longitude
	}
	if entity.CreatedUnixUTC != 0 {
		record.CreatedAt = time.Unix(entity.CreatedUnixUTC, 0).UTC()
	}
	return record
}

func mapBooking(record BookingRecord) (booking.Booking, error) {
	status, err := booking.ParseStatus(record.Status)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	entity := booking.Booking{
		BookingID:          record.BookingID,
		RequesterID:        record.RequesterID,
		ProviderID:         record.ProviderID,
		ServiceType:        record.ServiceType,
		City:               record.City,
		ScheduledUnixUTC:   record.ScheduledAt.Unix(),
		DurationMinutes:    record.DurationMinutes,
		Status:             status,
		PaymentStatus:      booking.PaymentStatus(record.PaymentStatus),
		BaseAmountCents:    record.BaseAmountCents,
		DiscountCents:      record.DiscountCents,
		FeeCents:           record.FeeCents,
		TotalAmountCents:   record.TotalAmountCents,
		StartCode:          record.StartCode,
		Reassigned:         record.Reassigned,
		OriginalProviderID: record.OriginalProviderID,
		ReassignReason:     record.ReassignReason,
		FailureReason:      record.FailureReason,
		CreatedUnixUTC:     record.CreatedAt.Unix(),
	}
	if record.LatitudeDegrees != nil && record.LongitudeDegrees != nil {
		entity.Location = &booking.Coordinates{
			LatitudeDegrees:  *record.LatitudeDegrees,
			LongitudeDegrees: *record.LongitudeDegrees,
		}
	}
	entity.Attendance = booking.Attendance{
		ProviderConfirmed:           record.ProviderArrived,
		ProviderConfirmedAtUnixUTC:  timeOrZero(record.ProviderArrivedAt),
		RequesterConfirmed:          record.RequesterConfirmed,
		RequesterConfirmedAtUnixUTC: timeOrZero(record.RequesterConfirmedAt),
	}
	if record.ReassignedAt != nil {
		entity.ReassignedUnixUTC = record.ReassignedAt.Unix()
	}
	return entity, nil
}

func mapBookings(rows []BookingRecord) ([]booking.Booking, error) {
	entities := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		entity, err := mapBooking(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func mapPenalty(record PenaltyRecord) booking.Penalty {
	return booking.Penalty{
		PenaltyID:         record.PenaltyID,
		ProviderID:        record.ProviderID,
		BookingID:         record.BookingID,
		Violation:         booking.ViolationType(record.Violation),
		Tier:              booking.PenaltyTier(record.Tier),
		AmountCents:       record.AmountCents,
		Action:            booking.PenaltyAction(record.Action),
		OffenseNumber:     record.OffenseNumber,
		Status:            booking.PenaltyStatus(record.Status),
		CreatedUnixUTC:    record.CreatedAt.Unix(),
		ReversedAtUnixUTC: timeOrZero(record.ReversedAt),
	}
}

func mapRefund(record RefundRecord) booking.GuaranteeRefund {
	return booking.GuaranteeRefund{
		RefundID:       record.RefundID,
		BookingID:      record.BookingID,
		RequesterID:    record.RequesterID,
		ProviderID:     record.ProviderID,
		AmountCents:    record.AmountCents,
		Reason:         record.Reason,
		Status:         booking.RefundStatus(record.Status),
		CreatedUnixUTC: record.CreatedAt.Unix(),
	}
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func isRefundConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintRefundBooking
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
