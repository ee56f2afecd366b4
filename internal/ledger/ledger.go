// Package ledger implements the pure balance and validation logic for
// student savings books. Every function here is a stateless computation over
// its explicit inputs: no I/O, no locks, no shared state. Persistence-side
// enforcement of the balance invariant lives in the transaction service.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tabungin/backend/internal/models"
)

// ErrInvalidAmount is returned when a requested amount is missing, zero,
// negative, fractional, or not a finite number.
var ErrInvalidAmount = errors.New("amount must be a positive whole number")

// InsufficientBalanceError reports a withdrawal exceeding the current
// balance. It carries the balance so the caller can show the shortfall.
type InsufficientBalanceError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d exceeds current balance %d", e.Requested, e.Balance)
}

// Summary is the derived state of one student account. It is never stored;
// it is recomputed from the full transaction history on every read.
type Summary struct {
	TotalIncome  int64 `json:"totalIncome"`
	TotalExpense int64 `json:"totalExpense"`
	Balance      int64 `json:"balance"`
}

// Summarize reduces a transaction list to income, expense, and balance
// totals in a single pass. The reduction is commutative, so input order is
// irrelevant. An empty list yields the zero Summary. Unknown kinds never
// occur in stored data (the store constrains them) and contribute to
// neither total.
func Summarize(txs []models.Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		switch tx.Kind {
		case models.KindIncome:
			s.TotalIncome += tx.Amount
		case models.KindExpense:
			s.TotalExpense += tx.Amount
		}
	}
	s.Balance = s.TotalIncome - s.TotalExpense
	return s
}

// ValidateDeposit checks a requested deposit amount and returns it
// normalized to whole rupiah. There is no upper bound on deposits.
func ValidateDeposit(amount float64) (int64, error) {
	return normalizeAmount(amount)
}

// ValidateWithdrawal checks a requested withdrawal against the current
// full-history balance. The boundary is inclusive: withdrawing the exact
// balance succeeds. This is the UX fast path only; the storage layer
// re-checks the invariant atomically at insert time.
func ValidateWithdrawal(balance int64, amount float64) (int64, error) {
	normalized, err := normalizeAmount(amount)
	if err != nil {
		return 0, err
	}
	if normalized > balance {
		return 0, &InsufficientBalanceError{Balance: balance, Requested: normalized}
	}
	return normalized, nil
}

func normalizeAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	// 2^63 is exactly representable as float64; math.MaxInt64 is not, and
	// rounds up to it, so the bound must be exclusive to keep int64(amount)
	// from overflowing.
	if amount <= 0 || amount != math.Trunc(amount) || amount >= math.Ldexp(1, 63) {
		return 0, ErrInvalidAmount
	}
	return int64(amount), nil
}

// SortByRecency returns a new slice ordered by OccurredAt descending.
// Entries with equal timestamps keep their input order; the store fetches
// in insertion order, so ties resolve to newest-inserted last.
func SortByRecency(txs []models.Transaction) []models.Transaction {
	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
	})
	return sorted
}

// FilterStudents narrows a roster by class and search term. The class filter
// is an exact match unless it is empty or the "all" sentinel. The search term
// is a case-insensitive substring match against name or NIS; an empty term
// matches everything. Both filters apply conjunctively.
func FilterStudents(students []models.Student, class, search string) []models.Student {
	search = strings.ToLower(strings.TrimSpace(search))
	filterClass := class != "" && class != models.ClassFilterAll

	filtered := make([]models.Student, 0, len(students))
	for _, st := range students {
		if filterClass && st.ClassName != class {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(st.Name), search) &&
			!strings.Contains(strings.ToLower(st.NIS), search) {
			continue
		}
		filtered = append(filtered, st)
	}
	return filtered
}
