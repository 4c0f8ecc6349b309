package domain

import (
	"time"
)

// Kind classifies a transaction as money coming in or going out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Valid reports whether k is one of the two allowed transaction kinds.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction is one income or expense event recorded for a user.
// Transactions are immutable once stored; the only mutation is deletion.
// JSON field names match the wire contract: OccurredAt serializes as "date"
// (when the money moved, client-supplied) and RecordedAt as "createdAt"
// (when the server stored the record).
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Kind        Kind      `json:"type"`
	Amount      Amount    `json:"amount"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	OccurredAt  time.Time `json:"date"`
	RecordedAt  time.Time `json:"createdAt"`
}

// Balance is the per-user aggregate derived from the transaction log.
// After every completed ledger operation:
//
//	Balance == TotalIncome - TotalExpenses
//
// and the two totals equal the sums over the currently stored transactions
// of the matching kind.
type Balance struct {
	UserID        string `json:"-"`
	Balance       Amount `json:"balance"`
	TotalIncome   Amount `json:"totalIncome"`
	TotalExpenses Amount `json:"totalExpenses"`
}
