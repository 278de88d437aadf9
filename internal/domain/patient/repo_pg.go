package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `p.id, p.ipp, p.admission_date, p.name, p.age, p.sex, p.diagnosis, p.procedure,
	p.surgeon, p.status, p.complication, p.report, p.created_at, p.updated_at,
	i.content_type, i.data, i.attached_at`

const patientFrom = ` FROM patient p LEFT JOIN patient_image i ON i.patient_id = p.id`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var sex, procedure, status, complication string
	var imgType *string
	var imgData []byte
	var imgAt *time.Time
	err := row.Scan(&p.ID, &p.IPP, &p.AdmissionDate, &p.Name, &p.Age, &sex, &p.Diagnosis, &procedure,
		&p.Surgeon, &status, &complication, &p.Report, &p.CreatedAt, &p.UpdatedAt,
		&imgType, &imgData, &imgAt)
	if err != nil {
		return nil, err
	}
	p.Sex = Sex(sex)
	p.Procedure = Procedure(procedure)
	p.Status = Status(status)
	p.Complication = Complication(complication)
	if imgType != nil {
		p.Image = &Image{ContentType: *imgType, Data: imgData}
		if imgAt != nil {
			p.Image.AttachedAt = *imgAt
		}
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patient (id, ipp, admission_date, name, age, sex, diagnosis, procedure, surgeon, status, complication, report)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING created_at, updated_at`,
			p.ID, p.IPP, p.AdmissionDate, p.Name, p.Age, string(p.Sex), p.Diagnosis, string(p.Procedure),
			p.Surgeon, string(p.Status), string(p.Complication), p.Report,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.Invalid("ipp %q is already registered", p.IPP)
			}
			return fmt.Errorf("insert patient: %w", err)
		}
		for i, e := range p.EvolutionLog {
			if err := r.insertEvolution(ctx, p.ID, i, e); err != nil {
				return err
			}
		}
		if p.Image != nil {
			return r.SetImage(ctx, p.ID, p.Image)
		}
		return nil
	})
}

// CreateAll inserts the batch in one transaction.
func (r *patientRepoPG) CreateAll(ctx context.Context, ps []*Patient) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, p := range ps {
			if err := r.Create(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *patientRepoPG) insertEvolution(ctx context.Context, id uuid.UUID, seq int, e EvolutionEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_evolution (patient_id, seq, recorded_at, text) VALUES ($1,$2,$3,$4)`,
		id, seq, e.RecordedAt, e.Text)
	if err != nil {
		return fmt.Errorf("insert evolution entry: %w", err)
	}
	return nil
}

func (r *patientRepoPG) getOne(ctx context.Context, where string, key interface{}, label string) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE `+where, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("patient", label)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEvolution(ctx, []*Patient{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `p.id = $1`, id, id.String())
}

func (r *patientRepoPG) GetByIPP(ctx context.Context, ipp string) (*Patient, error) {
	return r.getOne(ctx, `p.ipp = $1`, ipp, ipp)
}

func (r *patientRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadEvolution(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// loadEvolution fills the evolution log of every patient with one query.
func (r *patientRepoPG) loadEvolution(ctx context.Context, items []*Patient) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	byID := make(map[uuid.UUID]*Patient, len(items))
	for i, p := range items {
		ids[i] = p.ID
		byID[p.ID] = p
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, recorded_at, text FROM patient_evolution
		WHERE patient_id = ANY($1) ORDER BY patient_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("query evolution log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var e EvolutionEntry
		if err := rows.Scan(&id, &e.RecordedAt, &e.Text); err != nil {
			return err
		}
		if p := byID[id]; p != nil {
			p.EvolutionLog = append(p.EvolutionLog, e)
		}
	}
	return rows.Err()
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `SELECT `+patientCols+patientFrom+` ORDER BY p.seq LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *patientRepoPG) All(ctx context.Context) ([]*Patient, error) {
	return r.query(ctx, `SELECT `+patientCols+patientFrom+` ORDER BY p.seq`)
}

func (r *patientRepoPG) ListByStatus(ctx context.Context, statuses []Status) ([]*Patient, error) {
	codes := make([]string, len(statuses))
	for i, s := range statuses {
		codes[i] = string(s)
	}
	return r.query(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.status = ANY($1) ORDER BY p.seq`, codes)
}

func (r *patientRepoPG) ListWithComplication(ctx context.Context) ([]*Patient, error) {
	return r.query(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.complication <> $1 ORDER BY p.seq`, string(ComplicationNone))
}

func (r *patientRepoPG) touch(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("patient", fmt.Sprint(args[0]))
	}
	return nil
}

func (r *patientRepoPG) AppendEvolution(ctx context.Context, id uuid.UUID, e EvolutionEntry) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		// Locks the patient row so concurrent appends get distinct sequence numbers.
		if err := r.touch(ctx, `UPDATE patient SET updated_at = NOW() WHERE id = $1`, id); err != nil {
			return err
		}
		var next int
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM patient_evolution WHERE patient_id = $1`, id).Scan(&next); err != nil {
			return err
		}
		return r.insertEvolution(ctx, id, next, e)
	})
}

func (r *patientRepoPG) SetStatus(ctx context.Context, id uuid.UUID, s Status) error {
	return r.touch(ctx, `UPDATE patient SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(s))
}

func (r *patientRepoPG) SetComplication(ctx context.Context, id uuid.UUID, c Complication) error {
	return r.touch(ctx, `UPDATE patient SET complication = $2, updated_at = NOW() WHERE id = $1`, id, string(c))
}

func (r *patientRepoPG) SetImage(ctx context.Context, id uuid.UUID, img *Image) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.touch(ctx, `UPDATE patient SET updated_at = NOW() WHERE id = $1`, id); err != nil {
			return err
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_image (patient_id, content_type, data, attached_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (patient_id) DO UPDATE SET content_type = EXCLUDED.content_type,
				data = EXCLUDED.data, attached_at = EXCLUDED.attached_at`,
			id, img.ContentType, img.Data, img.AttachedAt)
		return err
	})
}

func (r *patientRepoPG) SetReport(ctx context.Context, id uuid.UUID, report string) error {
	return r.touch(ctx, `UPDATE patient SET report = $2, updated_at = NOW() WHERE id = $1`, id, report)
}
