package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/kv"
)

// Aggregator maintains the per-user Balance record in lock-step with the
// transaction log. It is the only writer of balance records; every mutation
// goes through a conditional update so a concurrent writer cannot be
// silently overwritten.
type Aggregator struct {
	kv kv.Store
}

// NewAggregator creates an aggregator over the given key-value store.
func NewAggregator(store kv.Store) *Aggregator {
	return &Aggregator{kv: store}
}

// Read returns the user's current aggregate. A user who has never
// transacted and was never explicitly initialized reads as the zero
// balance; accounts are provisioned lazily.
func (a *Aggregator) Read(ctx context.Context, userID string) (domain.Balance, error) {
	bal, _, err := a.read(ctx, userID)
	return bal, err
}

// Init creates the zeroed balance record for a new account. Calling it for
// an already-provisioned user is a no-op.
func (a *Aggregator) Init(ctx context.Context, userID string) error {
	raw, err := json.Marshal(domain.Balance{UserID: userID})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	err = a.kv.CompareAndSwap(ctx, balanceKey(userID), raw, 0)
	if errors.Is(err, kv.ErrVersionMismatch) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// ApplyCreate applies the signed delta for a newly created transaction:
// income adds to balance and totalIncome, expense subtracts from balance
// and adds to totalExpenses.
func (a *Aggregator) ApplyCreate(ctx context.Context, userID string, kind domain.Kind, amount domain.Amount) (domain.Balance, error) {
	return a.adjust(ctx, userID, kind, amount, false)
}

// ApplyDelete applies the exact inverse of ApplyCreate for the same kind
// and amount, so a create-then-delete round trip returns the aggregate to
// its prior value. A reversal that would drive a total negative is rejected.
func (a *Aggregator) ApplyDelete(ctx context.Context, userID string, kind domain.Kind, amount domain.Amount) (domain.Balance, error) {
	return a.adjust(ctx, userID, kind, amount, true)
}

// adjust performs the read-modify-write under optimistic concurrency: a
// losing writer re-reads and retries, bounded by casMaxAttempts, then
// surfaces a storage failure. The delta is idempotent by construction -- it
// is derived from a specific persisted transaction, so a retry applies the
// same change to a fresh read rather than compounding.
func (a *Aggregator) adjust(ctx context.Context, userID string, kind domain.Kind, amount domain.Amount, reverse bool) (domain.Balance, error) {
	if !kind.Valid() {
		return domain.Balance{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, kind)
	}
	if amount <= 0 {
		return domain.Balance{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}

	delta := amount
	if reverse {
		delta = -delta
	}

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		bal, version, err := a.read(ctx, userID)
		if err != nil {
			return domain.Balance{}, err
		}
		if reverse {
			// Totals never go negative. A reversal larger than the recorded
			// total means the delta does not come from this user's log.
			if (kind == domain.KindIncome && bal.TotalIncome < amount) ||
				(kind == domain.KindExpense && bal.TotalExpenses < amount) {
				return domain.Balance{}, fmt.Errorf("%w: reversal of %s %s exceeds the recorded total for user %s", domain.ErrStorage, kind, amount, userID)
			}
		}

		switch kind {
		case domain.KindIncome:
			bal.Balance += delta
			bal.TotalIncome += delta
		case domain.KindExpense:
			bal.Balance -= delta
			bal.TotalExpenses += delta
		}

		raw, err := json.Marshal(bal)
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		err = a.kv.CompareAndSwap(ctx, balanceKey(userID), raw, version)
		if errors.Is(err, kv.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return bal, nil
	}
	return domain.Balance{}, fmt.Errorf("%w: balance for user %s kept changing", domain.ErrConflict, userID)
}

func (a *Aggregator) read(ctx context.Context, userID string) (domain.Balance, int64, error) {
	raw, version, err := a.kv.Get(ctx, balanceKey(userID))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return domain.Balance{UserID: userID}, 0, nil
	}
	if err != nil {
		return domain.Balance{}, 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	var bal domain.Balance
	if err := json.Unmarshal(raw, &bal); err != nil {
		return domain.Balance{}, 0, fmt.Errorf("%w: corrupt balance record for user %s: %v", domain.ErrStorage, userID, err)
	}
	bal.UserID = userID
	return bal, version, nil
}
