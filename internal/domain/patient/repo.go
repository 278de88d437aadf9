package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores patient records. Implementations return errors wrapping
// domain.ErrNotFound for unknown ids and domain.ErrValidation for a duplicate IPP.
// Evolution entries are only ever appended.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// CreateAll stores every record or none of them.
	CreateAll(ctx context.Context, ps []*Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIPP(ctx context.Context, ipp string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// All returns every patient in admission order.
	All(ctx context.Context) ([]*Patient, error)
	ListByStatus(ctx context.Context, statuses []Status) ([]*Patient, error)
	ListWithComplication(ctx context.Context) ([]*Patient, error)
	// Follow-up mutations
	AppendEvolution(ctx context.Context, id uuid.UUID, e EvolutionEntry) error
	SetStatus(ctx context.Context, id uuid.UUID, s Status) error
	SetComplication(ctx context.Context, id uuid.UUID, c Complication) error
	SetImage(ctx context.Context, id uuid.UUID, img *Image) error
	SetReport(ctx context.Context, id uuid.UUID, report string) error
}
