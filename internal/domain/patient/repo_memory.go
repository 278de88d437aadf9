package patient

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
	order []*Patient
	byID  map[uuid.UUID]*Patient
	byIPP map[string]*Patient
}

// NewMemoryRepo returns a process-local repository. Records live for the
// lifetime of the process.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		byID:  make(map[uuid.UUID]*Patient),
		byIPP: make(map[string]*Patient),
	}
}

func (r *memoryRepo) Create(ctx context.Context, p *Patient) error {
	return r.CreateAll(ctx, []*Patient{p})
}

func (r *memoryRepo) CreateAll(_ context.Context, ps []*Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if _, dup := r.byIPP[p.IPP]; dup || seen[p.IPP] {
			return domain.Invalid("ipp %q is already registered", p.IPP)
		}
		seen[p.IPP] = true
	}
	now := time.Now().UTC()
	for _, p := range ps {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		stored := p.Clone()
		r.order = append(r.order, stored)
		r.byID[stored.ID] = stored
		r.byIPP[stored.IPP] = stored
	}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.NotFound("patient", id.String())
	}
	return p.Clone(), nil
}

func (r *memoryRepo) GetByIPP(_ context.Context, ipp string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byIPP[ipp]
	if !ok {
		return nil, domain.NotFound("patient", ipp)
	}
	return p.Clone(), nil
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.order)
	start, end := pagination.Window(total, limit, offset)
	return cloneAll(r.order[start:end]), total, nil
}

func (r *memoryRepo) All(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.order), nil
}

func (r *memoryRepo) ListByStatus(_ context.Context, statuses []Status) ([]*Patient, error) {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := []*Patient{}
	for _, p := range r.order {
		if want[p.Status] {
			items = append(items, p.Clone())
		}
	}
	return items, nil
}

func (r *memoryRepo) ListWithComplication(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := []*Patient{}
	for _, p := range r.order {
		if p.HasComplication() {
			items = append(items, p.Clone())
		}
	}
	return items, nil
}

func (r *memoryRepo) mutate(id uuid.UUID, fn func(p *Patient)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.NotFound("patient", id.String())
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepo) AppendEvolution(_ context.Context, id uuid.UUID, e EvolutionEntry) error {
	return r.mutate(id, func(p *Patient) { p.EvolutionLog = append(p.EvolutionLog, e) })
}

func (r *memoryRepo) SetStatus(_ context.Context, id uuid.UUID, s Status) error {
	return r.mutate(id, func(p *Patient) { p.Status = s })
}

func (r *memoryRepo) SetComplication(_ context.Context, id uuid.UUID, c Complication) error {
	return r.mutate(id, func(p *Patient) { p.Complication = c })
}

func (r *memoryRepo) SetImage(_ context.Context, id uuid.UUID, img *Image) error {
	return r.mutate(id, func(p *Patient) {
		cp := *img
		cp.Data = append([]byte(nil), img.Data...)
		p.Image = &cp
	})
}

func (r *memoryRepo) SetReport(_ context.Context, id uuid.UUID, report string) error {
	return r.mutate(id, func(p *Patient) { p.Report = &report })
}

func cloneAll(src []*Patient) []*Patient {
	out := make([]*Patient, len(src))
	for i, p := range src {
		out[i] = p.Clone()
	}
	return out
}
