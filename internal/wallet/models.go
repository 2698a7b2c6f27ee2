package wallet

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account represents the wallet_accounts table, one row per user.
type Account struct {
	UserID       string    `gorm:"primaryKey"`
	BalanceCents int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "wallet_accounts" }

// Entry mirrors the append-only wallet_entries table. The unique reference
// is the de-duplication guard the booking service relies on.
type Entry struct {
	EntryID     string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index:idx_wallet_entries_user_created,priority:1"`
	AmountCents int64     `gorm:"not null"`
	Reference   string    `gorm:"not null;index:uniq_wallet_entry_reference,unique"`
	CreatedAt   time.Time `gorm:"not null;index:idx_wallet_entries_user_created,priority:2"`
}

func (Entry) TableName() string { return "wallet_entries" }

func (entry *Entry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Account{}, &Entry{}}
}
