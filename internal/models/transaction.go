package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TransactionKind discriminates deposits from withdrawals.
type TransactionKind string

const (
	KindIncome  TransactionKind = "INCOME"
	KindExpense TransactionKind = "EXPENSE"
)

// Label returns the user-facing Indonesian label for the kind.
func (k TransactionKind) Label() string {
	switch k {
	case KindIncome:
		return "Pemasukan"
	case KindExpense:
		return "Pengeluaran"
	}
	return string(k)
}

// Valid reports whether the kind is one of the two known values.
func (k TransactionKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction represents a single savings book entry. Entries are immutable
// once created; the only allowed mutation is a hard delete.
type Transaction struct {
	ID            int             `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	StudentNIS    string          `json:"nis" db:"student_nis"`
	Kind          TransactionKind `json:"kind" db:"kind"`
	Amount        int64           `json:"amount" db:"amount"` // whole rupiah, always > 0
	Description   string          `json:"description" db:"description"`
	Actor         string          `json:"actor" db:"actor"`
	Metadata      Metadata        `json:"metadata,omitempty" db:"metadata"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"` // effect time, not record creation
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
