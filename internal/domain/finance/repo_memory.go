package finance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/pkg/pagination"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items []Transaction
}

// NewMemoryRepo returns a process-local ledger.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Append(ctx context.Context, tx *Transaction) error {
	return r.AppendAll(ctx, []*Transaction{tx})
}

func (r *memoryRepo) AppendAll(_ context.Context, txs []*Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	known := make(map[uuid.UUID]bool, len(r.items)+len(txs))
	for i := range r.items {
		known[r.items[i].ID] = true
	}
	for _, tx := range txs {
		if tx.ID == uuid.Nil {
			continue
		}
		if known[tx.ID] {
			return domain.Invalid("transaction %s is already recorded", tx.ID)
		}
		known[tx.ID] = true
	}
	now := time.Now().UTC()
	for _, tx := range txs {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		r.items = append(r.items, *tx)
	}
	return nil
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Transaction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.items)
	start, end := pagination.Window(total, limit, offset)
	return copyAll(r.items[start:end]), total, nil
}

func (r *memoryRepo) All(_ context.Context) ([]*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAll(r.items), nil
}

func (r *memoryRepo) SumByType(_ context.Context, t TxType) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	for _, tx := range r.items {
		if tx.Type == t {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func copyAll(src []Transaction) []*Transaction {
	out := make([]*Transaction, len(src))
	for i := range src {
		tx := src[i]
		out[i] = &tx
	}
	return out
}
