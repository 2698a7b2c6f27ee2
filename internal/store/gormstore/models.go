package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingRecord represents the bookings table.
type BookingRecord struct {
	BookingID            string    `gorm:"type:uuid;primaryKey"`
	RequesterID          string    `gorm:"not null;index"`
	ProviderID           string    `gorm:"not null;index"`
	ServiceType          string    `gorm:"not null"`
	City                 string    `gorm:"not null"`
	ScheduledAt          time.Time `gorm:"not null;index:idx_bookings_status_scheduled,priority:2"`
	DurationMinutes      int       `gorm:"not null"`
	LatitudeDegrees      *float64
	LongitudeDegrees     *float64
	Status               string `gorm:"not null;index:idx_bookings_status_scheduled,priority:1;index:idx_bookings_status_created,priority:1"`
	PaymentStatus        string `gorm:"not null"`
	BaseAmountCents      int64  `gorm:"not null"`
	DiscountCents        int64  `gorm:"not null"`
	FeeCents             int64  `gorm:"not null"`
	TotalAmountCents     int64  `gorm:"not null"`
	StartCode            string
	ProviderArrived      bool `gorm:"not null;default:false"`
	ProviderArrivedAt    *time.Time
	RequesterConfirmed   bool `gorm:"not null;default:false"`
	RequesterConfirmedAt *time.Time
	Reassigned           bool `gorm:"not null;default:false"`
	OriginalProviderID   string
	ReassignReason       string
	ReassignedAt         *time.Time
	FailureReason        string
	CreatedAt            time.Time `gorm:"not null;index:idx_bookings_status_created,priority:2"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (BookingRecord) TableName() string { return "bookings" }

func (record *BookingRecord) BeforeCreate(tx *gorm.DB) error {
	if record.BookingID == "" {
		record.BookingID = uuid.NewString()
	}
	return nil
}

// ReassignmentRecord mirrors the append-only reassignments table.
type ReassignmentRecord struct {
	RecordID           string    `gorm:"type:uuid;primaryKey"`
	BookingID          string    `gorm:"type:uuid;not null;index"`
	OriginalProviderID string    `gorm:"not null"`
	NewProviderID      string    `gorm:"not null"`
	Reason             string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (ReassignmentRecord) TableName() string { return "reassignments" }

func (record *ReassignmentRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	return nil
}

// PenaltyRecord mirrors the penalties table.
type PenaltyRecord struct {
	PenaltyID     string `gorm:"type:uuid;primaryKey"`
	ProviderID    string `gorm:"not null;index:idx_penalties_provider_status,priority:1"`
	BookingID     string `gorm:"type:uuid;not null;index"`
	Violation     string `gorm:"not null"`
	Tier          string `gorm:"not null"`
	AmountCents   int64  `gorm:"not null"`
	Action        string `gorm:"not null"`
	OffenseNumber int    `gorm:"not null"`
	Status        string `gorm:"not null;index:idx_penalties_provider_status,priority:2"`
	ReversedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (PenaltyRecord) TableName() string { return "penalties" }

func (record *PenaltyRecord) BeforeCreate(tx *gorm.DB) error {
	if record.PenaltyID == "" {
		record.PenaltyID = uuid.NewString()
	}
	return nil
}

// RefundRecord mirrors the guarantee_refunds table. The unique booking index
// is the refund idempotency guard.
type RefundRecord struct {
	RefundID    string    `gorm:"type:uuid;primaryKey"`
	BookingID   string    `gorm:"type:uuid;not null;index:uniq_refund_booking,unique"`
	RequesterID string    `gorm:"not null"`
	ProviderID  string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	Reason      string    `gorm:"not null"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (RefundRecord) TableName() string { return "guarantee_refunds" }

func (record *RefundRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RefundID == "" {
		record.RefundID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&BookingRecord{}, &ReassignmentRecord{}, &PenaltyRecord{}, &RefundRecord{}}
}
