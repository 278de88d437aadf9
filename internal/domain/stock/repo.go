package stock

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores stock items and their movement log. Adjust must apply the
// quantity change and append the movement atomically, and must reject a change
// that would take the quantity below zero with domain.ErrInsufficientStock, or
// above MaxQuantity with domain.ErrValidation.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	// CreateAll stores every item or none of them.
	CreateAll(ctx context.Context, items []*Item) error
	GetByName(ctx context.Context, name string) (*Item, error)
	// List returns items in creation order.
	List(ctx context.Context) ([]*Item, error)
	ListAlerts(ctx context.Context) ([]*Item, error)
	Adjust(ctx context.Context, name string, m *Movement) (*Item, error)
	Movements(ctx context.Context, itemID uuid.UUID) ([]*Movement, error)
}
