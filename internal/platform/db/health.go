package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// Health states reported by /health/db.
const (
	HealthOK          = "ok"
	HealthPending     = "migrations-pending"
	HealthUnavailable = "unavailable"
)

// PoolUsage is the connection count snapshot of the ward pool.
type PoolUsage struct {
	Total int32 `json:"total"`
	Idle  int32 `json:"idle"`
	InUse int32 `json:"in_use"`
	Max   int32 `json:"max"`
}

func PoolUsageOf(pool *pgxpool.Pool) PoolUsage {
	stat := pool.Stat()
	return PoolUsage{
		Total: stat.TotalConns(),
		Idle:  stat.IdleConns(),
		InUse: stat.AcquiredConns(),
		Max:   stat.MaxConns(),
	}
}

// SchemaVersion summarises the migrations recorded in the ward schema.
type SchemaVersion struct {
	Applied int `json:"applied"`
	Latest  int `json:"latest"`
	Pending int `json:"pending"`
}

func schemaVersion(statuses []MigrationStatus) SchemaVersion {
	var v SchemaVersion
	for _, st := range statuses {
		if st.Version > v.Latest {
			v.Latest = st.Version
		}
		if st.Applied {
			if st.Version > v.Applied {
				v.Applied = st.Version
			}
		} else {
			v.Pending++
		}
	}
	return v
}

// DBHealth is the /health/db response body.
type DBHealth struct {
	Status     string        `json:"status"`
	Schema     string        `json:"schema"`
	Migrations SchemaVersion `json:"migrations"`
	Pool       PoolUsage     `json:"pool"`
	Error      string        `json:"error,omitempty"`
}

type migrationStatuser interface {
	Status(ctx context.Context) ([]MigrationStatus, error)
}

// HealthChecker answers /health/db for the ward schema.
type HealthChecker struct {
	schema     string
	ping       func(ctx context.Context) error
	usage      func() PoolUsage
	migrations migrationStatuser
}

func NewHealthChecker(pool *pgxpool.Pool, migrator *Migrator, schema string) *HealthChecker {
	return &HealthChecker{
		schema:     schema,
		ping:       pool.Ping,
		usage:      func() PoolUsage { return PoolUsageOf(pool) },
		migrations: migrator,
	}
}

// Check pings the database and compares the applied migrations with the
// embedded ones. A ward behind on migrations is reachable but not ok.
func (h *HealthChecker) Check(ctx context.Context) DBHealth {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	report := DBHealth{Status: HealthOK, Schema: h.schema, Pool: h.usage()}
	if err := h.ping(ctx); err != nil {
		report.Status = HealthUnavailable
		report.Error = err.Error()
		return report
	}
	statuses, err := h.migrations.Status(ctx)
	if err != nil {
		report.Status = HealthUnavailable
		report.Error = err.Error()
		return report
	}
	report.Migrations = schemaVersion(statuses)
	if report.Migrations.Pending > 0 {
		report.Status = HealthPending
	}
	return report
}

func (h *HealthChecker) Handler(c echo.Context) error {
	report := h.Check(c.Request().Context())
	code := http.StatusOK
	if report.Status != HealthOK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}
