package finance

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

type transactionRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &transactionRepoPG{pool: pool} }

func (r *transactionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const txCols = `id, date, type, category, description, amount, created_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var tx Transaction
	var typ string
	if err := row.Scan(&tx.ID, &tx.Date, &typ, &tx.Category, &tx.Description, &tx.Amount, &tx.CreatedAt); err != nil {
		return nil, err
	}
	tx.Type = TxType(typ)
	return &tx, nil
}

func (r *transactionRepoPG) Append(ctx context.Context, tx *Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ledger_transaction (id, date, type, category, description, amount)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		tx.ID, tx.Date, string(tx.Type), tx.Category, tx.Description, tx.Amount,
	).Scan(&tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Invalid("transaction %s is already recorded", tx.ID)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// AppendAll inserts the batch in one transaction.
func (r *transactionRepoPG) AppendAll(ctx context.Context, txs []*Transaction) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, tx := range txs {
			if err := r.Append(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *transactionRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Transaction, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	return items, rows.Err()
}

func (r *transactionRepoPG) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transaction`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `SELECT `+txCols+` FROM ledger_transaction ORDER BY seq LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *transactionRepoPG) All(ctx context.Context) ([]*Transaction, error) {
	return r.query(ctx, `SELECT `+txCols+` FROM ledger_transaction ORDER BY seq`)
}

func (r *transactionRepoPG) SumByType(ctx context.Context, t TxType) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::float8 FROM ledger_transaction WHERE type = $1`, string(t)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}
