package ledger

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/kv"
	"github.com/mediauqi/money-tracker/internal/kv/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, zerolog.Nop()), store
}

// checkInvariant verifies balance == totalIncome - totalExpenses and that
// both totals equal the sums over the currently stored transactions.
func checkInvariant(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()

	bal, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Balance != bal.TotalIncome-bal.TotalExpenses {
		t.Fatalf("invariant broken: balance %v != income %v - expenses %v", bal.Balance, bal.TotalIncome, bal.TotalExpenses)
	}

	txns, err := svc.Transactions(ctx, userID)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	var income, expenses domain.Amount
	for _, txn := range txns {
		switch txn.Kind {
		case domain.KindIncome:
			income += txn.Amount
		case domain.KindExpense:
			expenses += txn.Amount
		}
	}
	if income != bal.TotalIncome || expenses != bal.TotalExpenses {
		t.Fatalf("totals drifted from log: log (%v, %v) vs aggregate (%v, %v)", income, expenses, bal.TotalIncome, bal.TotalExpenses)
	}
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const user = "u1"

	bal, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Balance != 0 || bal.TotalIncome != 0 || bal.TotalExpenses != 0 {
		t.Fatalf("expected zero starting balance, got %+v", bal)
	}

	income, bal, err := svc.AddTransaction(ctx, user, domain.KindIncome, 100000, "salary", "", time.Time{})
	if err != nil {
		t.Fatalf("add income failed: %v", err)
	}
	if bal.Balance != 100000 || bal.TotalIncome != 100000 || bal.TotalExpenses != 0 {
		t.Fatalf("after income: got %+v", bal)
	}

	expense, bal, err := svc.AddTransaction(ctx, user, domain.KindExpense, 30000, "rent", "housing", time.Time{})
	if err != nil {
		t.Fatalf("add expense failed: %v", err)
	}
	if bal.Balance != 70000 || bal.TotalIncome != 100000 || bal.TotalExpenses != 30000 {
		t.Fatalf("after expense: got %+v", bal)
	}
	checkInvariant(t, svc, user)

	bal, err = svc.DeleteTransaction(ctx, expense.ID)
	if err != nil {
		t.Fatalf("delete expense failed: %v", err)
	}
	if bal.Balance != 100000 || bal.TotalIncome != 100000 || bal.TotalExpenses != 0 {
		t.Fatalf("after deleting expense: got %+v", bal)
	}

	bal, err = svc.DeleteTransaction(ctx, income.ID)
	if err != nil {
		t.Fatalf("delete income failed: %v", err)
	}
	if bal.Balance != 0 || bal.TotalIncome != 0 || bal.TotalExpenses != 0 {
		t.Fatalf("after deleting income: got %+v", bal)
	}
	checkInvariant(t, svc, user)
}

func TestService_AddRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const user = "u1"

	tests := []struct {
		name   string
		userID string
		kind   domain.Kind
		amount domain.Amount
	}{
		{name: "zero amount", userID: user, kind: domain.KindIncome, amount: 0},
		{name: "negative amount", userID: user, kind: domain.KindExpense, amount: -500},
		{name: "unknown kind", userID: user, kind: "transfer", amount: 100},
		{name: "empty kind", userID: user, kind: "", amount: 100},
		{name: "empty user", userID: "", kind: domain.KindIncome, amount: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.AddTransaction(ctx, tt.userID, tt.kind, tt.amount, "", "", time.Time{})
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("error = %v, want ErrInvalidInput", err)
			}
		})
	}

	// No rejected request may leave an aggregate change behind.
	bal, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.Balance != 0 || bal.TotalIncome != 0 || bal.TotalExpenses != 0 {
		t.Fatalf("rejected input changed the aggregate: %+v", bal)
	}
	txns, _ := svc.Transactions(ctx, user)
	if len(txns) != 0 {
		t.Fatalf("rejected input persisted %d transactions", len(txns))
	}
}

func TestService_RoundTripRestoresBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const user = "u1"

	// Seed some history so the prior state is not zero.
	if _, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 50000, "", "", time.Time{}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, _, err := svc.AddTransaction(ctx, user, domain.KindExpense, 12300, "", "", time.Time{}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	before, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}

	txn, _, err := svc.AddTransaction(ctx, user, domain.KindExpense, 999, "coffee", "food", time.Time{})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	after, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip changed the balance: before %+v, after %+v", before, after)
	}
}

func TestService_ReadIdempotence(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const user = "u1"

	if _, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 1000, "", "", time.Time{}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	first, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	firstList, err := svc.Transactions(ctx, user)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		bal, err := svc.Balance(ctx, user)
		if err != nil {
			t.Fatalf("Balance failed: %v", err)
		}
		if !reflect.DeepEqual(first, bal) {
			t.Fatalf("repeated Balance read differs: %+v vs %+v", first, bal)
		}
		list, err := svc.Transactions(ctx, user)
		if err != nil {
			t.Fatalf("Transactions failed: %v", err)
		}
		if !reflect.DeepEqual(firstList, list) {
			t.Fatalf("repeated Transactions read differs")
		}
	}
}

func TestService_ListOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const user = "u1"

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	mid, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 100, "mid", "", base)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	newest, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 100, "newest", "", base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	// Inserted last but occurred first: must list last, not first.
	oldest, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 100, "oldest", "", base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	txns, err := svc.Transactions(ctx, user)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txns))
	}
	wantOrder := []string{newest.ID, mid.ID, oldest.ID}
	for i, want := range wantOrder {
		if txns[i].ID != want {
			t.Fatalf("position %d = %s (%s), want %s", i, txns[i].ID, txns[i].Description, want)
		}
	}
}

func TestService_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const (
		user    = "u1"
		workers = 25
		amount  = domain.Amount(10000)
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, amount, "", "", time.Time{}); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal.TotalIncome != workers*amount {
		t.Fatalf("lost update: totalIncome = %v, want %v", bal.TotalIncome, workers*amount)
	}
	checkInvariant(t, svc, user)
}

func TestService_ConcurrentAddsDifferentUsers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	const workers = 10

	var wg sync.WaitGroup
	users := []string{"alice", "bob", "carol"}
	wg.Add(workers * len(users))
	for _, user := range users {
		for i := 0; i < workers; i++ {
			go func(user string) {
				defer wg.Done()
				if _, _, err := svc.AddTransaction(ctx, user, domain.KindExpense, 250, "", "", time.Time{}); err != nil {
					t.Errorf("add for %s failed: %v", user, err)
				}
			}(user)
		}
	}
	wg.Wait()

	for _, user := range users {
		bal, err := svc.Balance(ctx, user)
		if err != nil {
			t.Fatalf("Balance failed: %v", err)
		}
		if bal.TotalExpenses != workers*250 {
			t.Fatalf("user %s: totalExpenses = %v, want %v", user, bal.TotalExpenses, workers*250)
		}
		checkInvariant(t, svc, user)
	}
}

func TestService_DeleteNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.DeleteTransaction(ctx, "no-such-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

// failingStore fails every CompareAndSwap on keys with the given prefix,
// simulating a backing store that can no longer write balance records.
type failingStore struct {
	kv.Store
	failPrefix string
}

func (f *failingStore) CompareAndSwap(ctx context.Context, key string, value []byte, expectedVersion int64) error {
	if strings.HasPrefix(key, f.failPrefix) {
		return errors.New("simulated write failure")
	}
	return f.Store.CompareAndSwap(ctx, key, value, expectedVersion)
}

// mismatchStore makes every conditional balance write lose, as when another
// process keeps winning the race on a shared store.
type mismatchStore struct {
	kv.Store
}

func (m *mismatchStore) CompareAndSwap(ctx context.Context, key string, value []byte, expectedVersion int64) error {
	if strings.HasPrefix(key, "balance:") {
		return kv.ErrVersionMismatch
	}
	return m.Store.CompareAndSwap(ctx, key, value, expectedVersion)
}

func TestService_ExhaustedRetriesSurfaceStorageFailure(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&mismatchStore{Store: memory.NewStore()}, zerolog.Nop())

	_, _, err := svc.AddTransaction(ctx, "u1", domain.KindIncome, 100, "", "", time.Time{})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}
	if errors.Is(err, domain.ErrConflict) {
		t.Fatalf("internal conflict leaked across the service boundary: %v", err)
	}
}

func TestService_AddRollsBackWhenAggregateFails(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	svc := NewService(&failingStore{Store: backing, failPrefix: "balance:"}, zerolog.Nop())
	const user = "u1"

	_, _, err := svc.AddTransaction(ctx, user, domain.KindIncome, 1000, "", "", time.Time{})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}

	// The persisted record must have been rolled back: no transaction may be
	// visible without its aggregate delta.
	healthy := NewService(backing, zerolog.Nop())
	txns, err := healthy.Transactions(ctx, user)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("rolled-back add left %d transactions visible", len(txns))
	}
}

func TestService_DeleteRestoresWhenReversalFails(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	healthy := NewService(backing, zerolog.Nop())
	const user = "u1"

	txn, before, err := healthy.AddTransaction(ctx, user, domain.KindIncome, 5000, "", "", time.Time{})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	broken := NewService(&failingStore{Store: backing, failPrefix: "balance:"}, zerolog.Nop())
	if _, err := broken.DeleteTransaction(ctx, txn.ID); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("error = %v, want ErrStorage", err)
	}

	// The record is back and the aggregate is untouched.
	txns, err := healthy.Transactions(ctx, user)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txns) != 1 || txns[0].ID != txn.ID {
		t.Fatalf("deleted transaction was not restored: %+v", txns)
	}
	after, err := healthy.Balance(ctx, user)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed delete changed the aggregate: before %+v, after %+v", before, after)
	}
}
