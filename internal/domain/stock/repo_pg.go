package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/platform/db"
)

type stockRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &stockRepoPG{pool: pool} }

func (r *stockRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const itemCols = `id, name, quantity, alert_threshold, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.AlertThreshold, &item.CreatedAt, &item.UpdatedAt)
	return &item, err
}

func (r *stockRepoPG) Create(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_item (id, name, quantity, alert_threshold)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		item.ID, item.Name, item.Quantity, item.AlertThreshold,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Invalid("stock item %q already exists", item.Name)
		}
		return fmt.Errorf("insert stock item: %w", err)
	}
	return nil
}

// CreateAll inserts the batch in one transaction.
func (r *stockRepoPG) CreateAll(ctx context.Context, items []*Item) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, item := range items {
			if err := r.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *stockRepoPG) GetByName(ctx context.Context, name string) (*Item, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM stock_item WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("stock item", name)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *stockRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *stockRepoPG) List(ctx context.Context) ([]*Item, error) {
	return r.query(ctx, `SELECT `+itemCols+` FROM stock_item ORDER BY seq`)
}

func (r *stockRepoPG) ListAlerts(ctx context.Context) ([]*Item, error) {
	return r.query(ctx, `SELECT `+itemCols+` FROM stock_item WHERE quantity <= alert_threshold ORDER BY seq`)
}

// Adjust applies the delta with a guarded UPDATE so concurrent stock-outs can
// never drive the quantity negative.
func (r *stockRepoPG) Adjust(ctx context.Context, name string, m *Movement) (*Item, error) {
	var item *Item
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		item, err = scanItem(r.conn(ctx).QueryRow(ctx, `
			UPDATE stock_item SET quantity = quantity + $2, updated_at = NOW()
			WHERE name = $1 AND quantity + $2 >= 0
			RETURNING `+itemCols, name, m.Delta))
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := r.GetByName(ctx, name)
			if getErr != nil {
				return getErr
			}
			return fmt.Errorf("%w: %s has %d on hand, %d requested", domain.ErrInsufficientStock, name, current.Quantity, -m.Delta)
		}
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "22003" {
				return domain.Invalid("%s would exceed %d", name, MaxQuantity)
			}
			return fmt.Errorf("update stock item: %w", err)
		}

		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ItemID = item.ID
		m.ItemName = item.Name
		m.QuantityAfter = item.Quantity
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO stock_movement (id, item_id, item_name, delta, quantity_after, reason, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			m.ID, m.ItemID, m.ItemName, m.Delta, m.QuantityAfter, m.Reason, m.RecordedAt)
		if err != nil {
			return fmt.Errorf("insert stock movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *stockRepoPG) Movements(ctx context.Context, itemID uuid.UUID) ([]*Movement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, item_id, item_name, delta, quantity_after, reason, recorded_at
		FROM stock_movement WHERE item_id = $1 ORDER BY seq`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.ItemName, &m.Delta, &m.QuantityAfter, &m.Reason, &m.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
