package finance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/platform/events"
)

const EventRecorded = "finance.transaction_recorded"

// Service is the financial ledger.
type Service struct {
	txs    Repository
	events events.Publisher
	now    func() time.Time
}

func NewService(txs Repository, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{txs: txs, events: pub, now: time.Now}
}

func (s *Service) validate(tx *Transaction) error {
	if !tx.Type.Valid() {
		return domain.Invalid("invalid transaction type: %s", tx.Type)
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return domain.Invalid("amount must be a finite number")
	}
	if tx.Amount < 0 {
		return domain.Invalid("amount must not be negative")
	}
	return nil
}

// Record appends one transaction. The date defaults to today and the category
// to "other".
func (s *Service) Record(ctx context.Context, tx *Transaction) error {
	if err := s.validate(tx); err != nil {
		return err
	}
	tx.Category = domain.NormalizeText(strings.TrimSpace(tx.Category))
	if tx.Category == "" {
		tx.Category = CategoryOther
	}
	tx.Description = domain.NormalizeText(strings.TrimSpace(tx.Description))
	if tx.Date.IsZero() {
		tx.Date = s.now()
	}
	y, m, d := tx.Date.Date()
	tx.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if err := s.txs.Append(ctx, tx); err != nil {
		return err
	}
	_ = s.events.Publish(ctx, events.New(EventRecorded, tx.ID.String(), map[string]interface{}{
		"type":     string(tx.Type),
		"category": tx.Category,
		"amount":   tx.Amount,
	}))
	return nil
}

// Restore appends a transaction read back from an export, keeping its id and
// dates.
func (s *Service) Restore(ctx context.Context, tx *Transaction) error {
	return s.RestoreAll(ctx, []*Transaction{tx})
}

// RestoreAll appends a batch read back from an export. Every row is checked
// before the first write, and the batch is stored as a whole or not at all.
func (s *Service) RestoreAll(ctx context.Context, txs []*Transaction) error {
	seen := make(map[uuid.UUID]bool, len(txs))
	for _, tx := range txs {
		if err := s.validate(tx); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if tx.Date.IsZero() {
			return fmt.Errorf("transaction %s: %w", tx.ID, domain.Invalid("date is required"))
		}
		if tx.ID != uuid.Nil {
			if seen[tx.ID] {
				return domain.Invalid("transaction %s appears twice", tx.ID)
			}
			seen[tx.ID] = true
		}
	}
	return s.txs.AppendAll(ctx, txs)
}

func (s *Service) TotalByType(ctx context.Context, t TxType) (float64, error) {
	if !t.Valid() {
		return 0, domain.Invalid("invalid transaction type: %s", t)
	}
	return s.txs.SumByType(ctx, t)
}

// Balance is total income minus total expense.
func (s *Service) Balance(ctx context.Context) (float64, error) {
	totals, err := s.Totals(ctx)
	if err != nil {
		return 0, err
	}
	return totals.Balance, nil
}

func (s *Service) Totals(ctx context.Context) (Totals, error) {
	income, err := s.txs.SumByType(ctx, TxIncome)
	if err != nil {
		return Totals{}, err
	}
	expense, err := s.txs.SumByType(ctx, TxExpense)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Income: income, Expense: expense, Balance: income - expense}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	return s.txs.List(ctx, limit, offset)
}

func (s *Service) All(ctx context.Context) ([]*Transaction, error) {
	return s.txs.All(ctx)
}
