package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
)

type memoryRepo struct {
	mu        sync.RWMutex
	order     []*Item
	byName    map[string]*Item
	movements map[uuid.UUID][]Movement
}

// NewMemoryRepo returns a process-local stock ledger.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		byName:    make(map[string]*Item),
		movements: make(map[uuid.UUID][]Movement),
	}
}

func (r *memoryRepo) Create(ctx context.Context, item *Item) error {
	return r.CreateAll(ctx, []*Item{item})
}

func (r *memoryRepo) CreateAll(_ context.Context, items []*Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if _, dup := r.byName[item.Name]; dup || seen[item.Name] {
			return domain.Invalid("stock item %q already exists", item.Name)
		}
		seen[item.Name] = true
	}
	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		stored := *item
		r.order = append(r.order, &stored)
		r.byName[stored.Name] = &stored
	}
	return nil
}

func (r *memoryRepo) GetByName(_ context.Context, name string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.byName[name]
	if !ok {
		return nil, domain.NotFound("stock item", name)
	}
	cp := *item
	return &cp, nil
}

func (r *memoryRepo) List(_ context.Context) ([]*Item, error) {
	return r.filter(func(*Item) bool { return true }), nil
}

func (r *memoryRepo) ListAlerts(_ context.Context) ([]*Item, error) {
	return r.filter((*Item).InAlert), nil
}

func (r *memoryRepo) filter(keep func(*Item) bool) []*Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := []*Item{}
	for _, item := range r.order {
		if keep(item) {
			cp := *item
			items = append(items, &cp)
		}
	}
	return items
}

func (r *memoryRepo) Adjust(_ context.Context, name string, m *Movement) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.byName[name]
	if !ok {
		return nil, domain.NotFound("stock item", name)
	}
	after := item.Quantity + m.Delta
	if after < 0 {
		return nil, fmt.Errorf("%w: %s has %d on hand, %d requested", domain.ErrInsufficientStock, name, item.Quantity, -m.Delta)
	}
	if after > MaxQuantity {
		return nil, domain.Invalid("%s would hold %d, above %d", name, after, MaxQuantity)
	}
	item.Quantity = after
	item.UpdatedAt = time.Now().UTC()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.ItemID = item.ID
	m.ItemName = item.Name
	m.QuantityAfter = after
	r.movements[item.ID] = append(r.movements[item.ID], *m)

	cp := *item
	return &cp, nil
}

func (r *memoryRepo) Movements(_ context.Context, itemID uuid.UUID) ([]*Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.movements[itemID]
	out := make([]*Movement, len(src))
	for i := range src {
		m := src[i]
		out[i] = &m
	}
	return out, nil
}
