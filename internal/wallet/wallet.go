// Package wallet is the user-balance ledger consumed by the booking
// service for penalty deductions and guarantee refunds. Every mutation is a
// signed append-only entry keyed by a caller-supplied reference; repeating a
// reference is a silent no-op, so the caller's reference scheme is the
// idempotency contract.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

const (
	constraintEntryReference = "uniq_wallet_entry_reference"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19
	errorOperationWallet     = "wallet"
	errorSubjectAccount      = "account"
	errorSubjectEntry        = "entry"
	errorCodeApply           = "apply"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
)

// ErrInvalidAmount rejects non-positive credit and debit amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Ledger implements booking.Ledger using GORM.
type Ledger struct {
	db *gorm.DB
}

// New returns a Ledger backed by gorm.DB.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Credit adds amountCents to the user's balance.
func (ledger *Ledger) Credit(ctx context.Context, userID string, amountCents int64, reference string) error {
	return ledger.apply(ctx, userID, amountCents, reference)
}

// Debit removes amountCents from the user's balance. Balances may go
// negative: a penalty is owed even when the wallet cannot cover it.
func (ledger *Ledger) Debit(ctx context.Context, userID string, amountCents int64, reference string) error {
	return ledger.apply(ctx, userID, -amountCents, reference)
}

// Balance returns the user's current balance in cents. A user without a
// wallet row has a zero balance.
func (ledger *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var account Account
	err := ledger.db.WithContext(ctx).Where("user_id = ?", userID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapWalletError(errorSubjectAccount, errorCodeGet, err)
	}
	return account.BalanceCents, nil
}

func (ledger *Ledger) apply(ctx context.Context, userID string, signedCents int64, reference string) error {
	if signedCents == 0 {
		return wrapWalletError(errorSubjectEntry, errorCodeApply, ErrInvalidAmount)
	}
	if userID == "" || reference == "" {
		return wrapWalletError(errorSubjectEntry, errorCodeApply, fmt.Errorf("user and reference are required"))
	}
	return ledger.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		entry := Entry{
			UserID:      userID,
			AmountCents: signedCents,
			Reference:   reference,
			CreatedAt:   time.Now().UTC(),
		}
		err := transaction.Create(&entry).Error
		if isReferenceConflict(err) {
			// Replay of an already-applied mutation.
			return nil
		}
		if err != nil {
			return wrapWalletError(errorSubjectEntry, errorCodeInsert, err)
		}
		err = transaction.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]any{"balance_cents": gorm.Expr("wallet_accounts.balance_cents + ?", signedCents), "updated_at": time.Now().UTC()}),
			}).
			Create(&Account{UserID: userID, BalanceCents: signedCents, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}).Error
		if err != nil {
			return wrapWalletError(errorSubjectAccount, errorCodeApply, err)
		}
		return nil
	})
}

func wrapWalletError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationWallet, subject, code, err)
}

func isReferenceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintEntryReference
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
