package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/kv"
)

// casMaxAttempts bounds the automatic retries of a lost conditional update
// before it surfaces as a storage failure.
const casMaxAttempts = 8

func txKey(id string) string {
	return "transaction:" + id
}

func indexKey(userID string) string {
	return "usertx:" + userID
}

func balanceKey(userID string) string {
	return "balance:" + userID
}

// TxStore owns the transaction log. Each record lives under its own key, and
// a per-user index of transaction ids keeps ListByUser proportional to the
// user's own history instead of a scan over every transaction in the system.
type TxStore struct {
	kv kv.Store
}

// NewTxStore creates a transaction store over the given key-value store.
func NewTxStore(store kv.Store) *TxStore {
	return &TxStore{kv: store}
}

// Create validates, persists and indexes a new transaction. The record is
// durable before Create returns. occurredAt may be zero, in which case the
// server time is used.
func (s *TxStore) Create(ctx context.Context, userID string, kind domain.Kind, amount domain.Amount, description, category string, occurredAt time.Time) (*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, kind)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}

	txn := &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		Category:    category,
		OccurredAt:  occurredAt,
		RecordedAt:  now,
	}

	if err := s.put(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.indexAdd(ctx, userID, txn.ID); err != nil {
		// Undo the record write so a failed create leaves nothing behind.
		_ = s.kv.Delete(ctx, txKey(txn.ID))
		return nil, err
	}
	return txn, nil
}

// Get returns the transaction with the given id without removing it.
func (s *TxStore) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	raw, _, err := s.kv.Get(ctx, txKey(id))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	var txn domain.Transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return nil, fmt.Errorf("%w: corrupt transaction record %s: %v", domain.ErrStorage, id, err)
	}
	return &txn, nil
}

// Delete removes the transaction and returns the removed record so the
// caller can compute the reversing delta. The key delete is the claim: of
// two racing deletes for the same id exactly one succeeds, the other gets
// ErrNotFound.
func (s *TxStore) Delete(ctx context.Context, id string) (*domain.Transaction, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.kv.Delete(ctx, txKey(id)); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	// A dangling index id is tolerated by ListByUser, so an index update
	// failure here does not fail the delete.
	_ = s.indexRemove(ctx, txn.UserID, id)

	return txn, nil
}

// ListByUser returns the user's transactions ordered by occurredAt
// descending, ties broken by recordedAt descending.
func (s *TxStore) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	ids, _, err := s.readIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		raw, _, err := s.kv.Get(ctx, txKey(id))
		if errors.Is(err, kv.ErrKeyNotFound) {
			// Removed after the index was read, or a leftover from a
			// delete whose index update did not land.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		var txn domain.Transaction
		if err := json.Unmarshal(raw, &txn); err != nil {
			return nil, fmt.Errorf("%w: corrupt transaction record %s: %v", domain.ErrStorage, id, err)
		}
		result = append(result, txn)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.After(result[j].OccurredAt)
		}
		if !result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].RecordedAt.After(result[j].RecordedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// restore re-inserts a previously removed transaction. The ledger service
// uses it to undo a delete whose aggregate reversal could not complete.
func (s *TxStore) restore(ctx context.Context, txn *domain.Transaction) error {
	if err := s.put(ctx, txn); err != nil {
		return err
	}
	return s.indexAdd(ctx, txn.UserID, txn.ID)
}

func (s *TxStore) put(ctx context.Context, txn *domain.Transaction) error {
	raw, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := s.kv.Put(ctx, txKey(txn.ID), raw); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *TxStore) readIndex(ctx context.Context, userID string) ([]string, int64, error) {
	raw, version, err := s.kv.Get(ctx, indexKey(userID))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, 0, fmt.Errorf("%w: corrupt index for user %s: %v", domain.ErrStorage, userID, err)
	}
	return ids, version, nil
}

// indexAdd appends id to the user's index under optimistic concurrency: a
// lost swap re-reads and retries up to casMaxAttempts times.
func (s *TxStore) indexAdd(ctx context.Context, userID, id string) error {
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		ids, version, err := s.readIndex(ctx, userID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		raw, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		err = s.kv.CompareAndSwap(ctx, indexKey(userID), raw, version)
		if errors.Is(err, kv.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return nil
	}
	return fmt.Errorf("%w: index for user %s kept changing", domain.ErrConflict, userID)
}

func (s *TxStore) indexRemove(ctx context.Context, userID, id string) error {
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		ids, version, err := s.readIndex(ctx, userID)
		if err != nil {
			return err
		}
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		if len(kept) == len(ids) {
			return nil
		}
		raw, err := json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		err = s.kv.CompareAndSwap(ctx, indexKey(userID), raw, version)
		if errors.Is(err, kv.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return nil
	}
	return fmt.Errorf("%w: index for user %s kept changing", domain.ErrConflict, userID)
}
