// Package dashboard computes the read-only rollups shown on the ward overview.
// Nothing here mutates a ledger.
package dashboard

import (
	"context"
	"time"

	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

type PatientSource interface {
	All(ctx context.Context) ([]*patient.Patient, error)
}

type LedgerSource interface {
	Totals(ctx context.Context) (finance.Totals, error)
}

type StockSource interface {
	AlertItems(ctx context.Context) ([]*stock.Item, error)
}

// Gauges receives the figures of every computed summary.
type Gauges interface {
	SetWardGauges(active, complications, stockAlerts int, balance float64)
}

// Summary is one snapshot of the ward.
type Summary struct {
	ActivePatients int                       `json:"active_patients"`
	TotalPatients  int                       `json:"total_patients"`
	Complications  int                       `json:"complications"`
	Income         float64                   `json:"income"`
	Expense        float64                   `json:"expense"`
	Balance        float64                   `json:"balance"`
	StockAlerts    int                       `json:"stock_alerts"`
	AlertItems     []string                  `json:"alert_items"`
	Procedures     map[patient.Procedure]int `json:"procedures"`
	ByStatus       map[patient.Status]int    `json:"by_status"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

type Service struct {
	patients PatientSource
	ledger   LedgerSource
	stock    StockSource
	gauges   Gauges
	now      func() time.Time
}

// NewService builds the aggregator. gauges may be nil.
func NewService(patients PatientSource, ledger LedgerSource, stock StockSource, gauges Gauges) *Service {
	return &Service{patients: patients, ledger: ledger, stock: stock, gauges: gauges, now: time.Now}
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.stock.AlertItems(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TotalPatients: len(patients),
		Income:        totals.Income,
		Expense:       totals.Expense,
		Balance:       totals.Balance,
		StockAlerts:   len(alerts),
		AlertItems:    make([]string, 0, len(alerts)),
		Procedures:    make(map[patient.Procedure]int, len(patient.Procedures)),
		ByStatus:      make(map[patient.Status]int, len(patient.Statuses)),
		GeneratedAt:   s.now().UTC(),
	}
	for _, p := range patient.Procedures {
		sum.Procedures[p] = 0
	}
	for _, st := range patient.Statuses {
		sum.ByStatus[st] = 0
	}
	for _, p := range patients {
		if p.Status.Active() {
			sum.ActivePatients++
		}
		if p.HasComplication() {
			sum.Complications++
		}
		sum.Procedures[p.Procedure]++
		sum.ByStatus[p.Status]++
	}
	for _, item := range alerts {
		sum.AlertItems = append(sum.AlertItems, item.Name)
	}

	if s.gauges != nil {
		s.gauges.SetWardGauges(sum.ActivePatients, sum.Complications, sum.StockAlerts, sum.Balance)
	}
	return sum, nil
}
