package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/platform/events"
)

const (
	EventItemCreated = "stock.item_created"
	EventAdjusted    = "stock.adjusted"
	// EventAlert fires when a stock-out leaves an item at or below its threshold.
	EventAlert = "stock.alert"
)

// Service is the stock ledger.
type Service struct {
	items  Repository
	events events.Publisher
	now    func() time.Time
}

func NewService(items Repository, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{items: items, events: pub, now: time.Now}
}

func validateItem(item *Item) error {
	item.Name = domain.NormalizeText(strings.TrimSpace(item.Name))
	if item.Name == "" {
		return domain.Invalid("item name is required")
	}
	if item.Quantity < 0 {
		return domain.Invalid("quantity must not be negative")
	}
	if item.AlertThreshold < 0 {
		return domain.Invalid("alert threshold must not be negative")
	}
	if item.Quantity > MaxQuantity || item.AlertThreshold > MaxQuantity {
		return domain.Invalid("quantity and alert threshold must not exceed %d", MaxQuantity)
	}
	return nil
}

func (s *Service) CreateItem(ctx context.Context, name string, quantity, threshold int) (*Item, error) {
	item := &Item{Name: name, Quantity: quantity, AlertThreshold: threshold}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	_ = s.events.Publish(ctx, events.New(EventItemCreated, item.Name, map[string]interface{}{
		"quantity":        item.Quantity,
		"alert_threshold": item.AlertThreshold,
	}))
	return item, nil
}

// Restore inserts an item read back from an export, keeping its id.
func (s *Service) Restore(ctx context.Context, item *Item) error {
	return s.RestoreAll(ctx, []*Item{item})
}

// RestoreAll inserts a batch of items read back from an export. Every item is
// checked before the first write, and the batch is stored as a whole or not at
// all.
func (s *Service) RestoreAll(ctx context.Context, items []*Item) error {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return fmt.Errorf("stock item %s: %w", item.Name, err)
		}
		if seen[item.Name] {
			return domain.Invalid("stock item %q appears twice", item.Name)
		}
		seen[item.Name] = true
	}
	return s.items.CreateAll(ctx, items)
}

// Adjust adds delta to the item's quantity: positive for a delivery, negative
// for use. A stock-out larger than the quantity on hand fails with
// domain.ErrInsufficientStock and leaves the item untouched.
func (s *Service) Adjust(ctx context.Context, name string, delta int, reason string) (*Item, error) {
	if delta == 0 {
		return nil, domain.Invalid("delta must not be zero")
	}
	if delta > MaxQuantity || delta < -MaxQuantity {
		return nil, domain.Invalid("delta must be within ±%d", MaxQuantity)
	}
	m := &Movement{Delta: delta, Reason: strings.TrimSpace(reason), RecordedAt: s.now().UTC()}
	item, err := s.items.Adjust(ctx, name, m)
	if err != nil {
		return nil, err
	}
	_ = s.events.Publish(ctx, events.New(EventAdjusted, item.Name, map[string]interface{}{
		"delta":    delta,
		"quantity": item.Quantity,
		"reason":   m.Reason,
	}))
	if delta < 0 && item.InAlert() {
		_ = s.events.Publish(ctx, events.New(EventAlert, item.Name, map[string]interface{}{
			"quantity":        item.Quantity,
			"alert_threshold": item.AlertThreshold,
		}))
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, name string) (*Item, error) {
	return s.items.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]*Item, error) {
	return s.items.List(ctx)
}

// AlertItems returns the items with quantity at or below their threshold, in
// table order.
func (s *Service) AlertItems(ctx context.Context) ([]*Item, error) {
	return s.items.ListAlerts(ctx)
}

func (s *Service) Movements(ctx context.Context, name string) ([]*Movement, error) {
	item, err := s.items.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.items.Movements(ctx, item.ID)
}
