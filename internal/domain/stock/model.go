package stock

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity is the largest quantity, threshold or delta the stock_item
// INTEGER columns hold.
const MaxQuantity = math.MaxInt32

// Item maps to the stock_item table. Name is the lookup key.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Quantity       int       `db:"quantity" json:"quantity"`
	AlertThreshold int       `db:"alert_threshold" json:"alert_threshold"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// InAlert reports whether the item is at or below its reorder threshold.
func (i *Item) InAlert() bool {
	return i.Quantity <= i.AlertThreshold
}

// Movement maps to the stock_movement table: one accepted adjustment.
type Movement struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ItemID        uuid.UUID `db:"item_id" json:"item_id"`
	ItemName      string    `db:"item_name" json:"item_name"`
	Delta         int       `db:"delta" json:"delta"`
	QuantityAfter int       `db:"quantity_after" json:"quantity_after"`
	Reason        string    `db:"reason" json:"reason"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}
