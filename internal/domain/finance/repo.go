package finance

import "context"

// Repository is an append-only transaction log.
type Repository interface {
	Append(ctx context.Context, tx *Transaction) error
	// AppendAll stores every transaction or none of them. An id already in the
	// log is rejected with domain.ErrValidation.
	AppendAll(ctx context.Context, txs []*Transaction) error
	List(ctx context.Context, limit, offset int) ([]*Transaction, int, error)
	// All returns every transaction in recording order.
	All(ctx context.Context) ([]*Transaction, error)
	SumByType(ctx context.Context, t TxType) (float64, error)
}
