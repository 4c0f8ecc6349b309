// Package ledger implements the income/expense ledger: a transaction log
// plus the per-user balance aggregate derived from it. The Service type is
// the only entry point external callers use; it sequences the transaction
// store and the balance aggregator so that either both sides of an
// operation commit or neither becomes visible.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/kv"
)

// Service composes the transaction store and balance aggregator behind one
// caller-facing surface. Mutations for the same user are serialized by a
// per-user lock covering the record write and the aggregate
// read-modify-write; the aggregator's conditional updates back that up at
// the storage layer.
type Service struct {
	txs   *TxStore
	agg   *Aggregator
	locks *userLocks
	log   zerolog.Logger
}

// NewService creates a ledger service over the given key-value store.
func NewService(store kv.Store, log zerolog.Logger) *Service {
	return &Service{
		txs:   NewTxStore(store),
		agg:   NewAggregator(store),
		locks: newUserLocks(),
		log:   log,
	}
}

// AddTransaction validates the input, persists the transaction, then
// applies the aggregate delta. If the delta cannot be applied after the
// record is persisted, the record is rolled back: a persisted transaction
// with no matching aggregate update is the one state this service must
// never expose.
func (s *Service) AddTransaction(ctx context.Context, userID string, kind domain.Kind, amount domain.Amount, description, category string, occurredAt time.Time) (*domain.Transaction, domain.Balance, error) {
	if userID == "" {
		return nil, domain.Balance{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, domain.Balance{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, kind)
	}
	if amount <= 0 {
		return nil, domain.Balance{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	txn, err := s.txs.Create(ctx, userID, kind, amount, description, category, occurredAt)
	if err != nil {
		return nil, domain.Balance{}, surfaceErr(err)
	}

	bal, err := s.agg.ApplyCreate(ctx, userID, kind, amount)
	if err != nil {
		if _, derr := s.txs.Delete(ctx, txn.ID); derr != nil {
			s.log.Error().Err(derr).
				Str("transaction_id", txn.ID).
				Str("user_id", userID).
				Msg("Failed to roll back transaction after aggregate failure")
		}
		return nil, domain.Balance{}, surfaceErr(err)
	}
	return txn, bal, nil
}

// DeleteTransaction removes the transaction and reverses its delta on the
// aggregate. The reversal uses the kind and amount of the removed record,
// not re-derived values, so deleting from a correct ledger always returns
// the aggregate to its prior state. If the reversal cannot be applied the
// record is restored.
func (s *Service) DeleteTransaction(ctx context.Context, id string) (domain.Balance, error) {
	// Peek first to learn the owner, then serialize on the owner. Delete
	// re-confirms existence under the lock, so a racing delete of the same
	// id still yields exactly one winner.
	txn, err := s.txs.Get(ctx, id)
	if err != nil {
		return domain.Balance{}, err
	}

	unlock := s.locks.lock(txn.UserID)
	defer unlock()

	removed, err := s.txs.Delete(ctx, id)
	if err != nil {
		return domain.Balance{}, err
	}

	bal, err := s.agg.ApplyDelete(ctx, removed.UserID, removed.Kind, removed.Amount)
	if err != nil {
		if rerr := s.txs.restore(ctx, removed); rerr != nil {
			s.log.Error().Err(rerr).
				Str("transaction_id", removed.ID).
				Str("user_id", removed.UserID).
				Msg("Failed to restore transaction after aggregate failure")
		}
		return domain.Balance{}, surfaceErr(err)
	}
	return bal, nil
}

// surfaceErr translates an exhausted-retry conflict into the storage failure
// callers are promised. ErrConflict is an internal condition of the retry
// loops and never leaves the service.
func surfaceErr(err error) error {
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return err
}

// Balance returns the user's current aggregate.
func (s *Service) Balance(ctx context.Context, userID string) (domain.Balance, error) {
	return s.agg.Read(ctx, userID)
}

// Transactions returns the user's transactions, most recent first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.txs.ListByUser(ctx, userID)
}

// InitBalance provisions the zeroed aggregate for a new account.
func (s *Service) InitBalance(ctx context.Context, userID string) error {
	return s.agg.Init(ctx, userID)
}
