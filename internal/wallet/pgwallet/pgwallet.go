// Package pgwallet is the PostgreSQL rendition of the wallet ledger, built
// directly on pgx for deployments that skip the ORM layer. It honors the same
// reference-based idempotency contract as the GORM implementation.
package pgwallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SevaSetuLabs/booking/internal/wallet"
	"github.com/SevaSetuLabs/booking/pkg/booking"
)

const (
	errorOperationWallet    = "wallet"
	errorSubjectAccount     = "account"
	errorSubjectEntry       = "entry"
	errorSubjectTransaction = "transaction"
	errorCodeApply          = "apply"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"

	sqlInsertEntry = `
		insert into wallet_entries(entry_id, user_id, amount_cents, reference, created_at)
		values (gen_random_uuid(), $1, $2, $3, now())
		on conflict (reference) do nothing
	`

	sqlUpsertBalance = `
		insert into wallet_accounts(user_id, balance_cents, created_at, updated_at)
		values ($1, $2, now(), now())
		on conflict (user_id) do update
		set balance_cents = wallet_accounts.balance_cents + excluded.balance_cents, updated_at = now()
	`

	sqlSelectBalance = `
		select balance_cents from wallet_accounts where user_id = $1
	`
)

// Ledger implements booking.Ledger using a pgx connection pool.
type Ledger struct {
	pool *pgxpool.Pool
}

// New returns a Ledger backed by a pgx pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Credit adds amountCents to the user's balance.
func (ledger *Ledger) Credit(ctx context.Context, userID string, amountCents int64, reference string) error {
	return ledger.apply(ctx, userID, amountCents, reference)
}

// Debit removes amountCents from the user's balance.
func (ledger *Ledger) Debit(ctx context.Context, userID string, amountCents int64, reference string) error {
	return ledger.apply(ctx, userID, -amountCents, reference)
}

// Balance returns the user's current balance in cents.
func (ledger *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := ledger.pool.QueryRow(ctx, sqlSelectBalance, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapWalletError(errorSubjectAccount, errorCodeGet, err)
	}
	return balance, nil
}

func (ledger *Ledger) apply(ctx context.Context, userID string, signedCents int64, reference string) error {
	if signedCents == 0 {
		return wrapWalletError(errorSubjectEntry, errorCodeApply, wallet.ErrInvalidAmount)
	}
	if userID == "" || reference == "" {
		return wrapWalletError(errorSubjectEntry, errorCodeApply, fmt.Errorf("user and reference are required"))
	}
	tx, err := ledger.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapWalletError(errorSubjectTransaction, errorCodeBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, sqlInsertEntry, userID, signedCents, reference)
	if err != nil {
		return wrapWalletError(errorSubjectEntry, errorCodeInsert, err)
	}
	if tag.RowsAffected() == 0 {
		// Replay of an already-applied mutation.
		return nil
	}
	if _, err := tx.Exec(ctx, sqlUpsertBalance, userID, signedCents); err != nil {
		return wrapWalletError(errorSubjectAccount, errorCodeApply, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapWalletError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func wrapWalletError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationWallet, subject, code, err)
}
