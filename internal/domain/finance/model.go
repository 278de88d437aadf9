package finance

import (
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
)

// TxType distinguishes money coming in from money going out.
type TxType string

const (
	TxIncome  TxType = "income"
	TxExpense TxType = "expense"
)

func (t TxType) Valid() bool {
	switch t {
	case TxIncome, TxExpense:
		return true
	}
	return false
}

// CategoryOther is accepted for both types and used when none is given.
const CategoryOther = "other"

// IncomeCategories are the categories offered for income entries.
var IncomeCategories = []string{"patient-payment", "grant", "donation", CategoryOther}

// ExpenseCategories are the categories offered for expense entries.
var ExpenseCategories = []string{"equipment", "pharmacy", "salaries", "maintenance", "catering", CategoryOther}

// Categories returns the known categories for a type.
func Categories(t TxType) []string {
	switch t {
	case TxIncome:
		return IncomeCategories
	case TxExpense:
		return ExpenseCategories
	}
	return nil
}

// Transaction maps to the ledger_transaction table. Transactions are never
// updated once recorded.
type Transaction struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Date        time.Time `db:"date" json:"date"`
	Type        TxType    `db:"type" json:"type"`
	Category    string    `db:"category" json:"category"`
	Description string    `db:"description" json:"description"`
	Amount      float64   `db:"amount" json:"amount"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Totals is the income/expense rollup of the ledger.
type Totals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// ParseDate accepts a calendar date or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalid("invalid date %q", s)
	}
	return t, nil
}
