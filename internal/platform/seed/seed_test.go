package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

func newServices() Services {
	return Services{
		Patients: patient.NewService(patient.NewMemoryRepo(), nil),
		Ledger:   finance.NewService(finance.NewMemoryRepo(), nil),
		Stock:    stock.NewService(stock.NewMemoryRepo(), nil),
	}
}

func TestLoad_Default(t *testing.T) {
	f, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Stock) != 5 {
		t.Fatalf("expected 5 stock items, got %d", len(f.Stock))
	}
	if f.Stock[1].Name != "Plaque LCP 4.5" || f.Stock[1].Quantity != 4 || f.Stock[1].AlertThreshold != 5 {
		t.Errorf("unexpected item %+v", f.Stock[1])
	}
}

func TestApply_DefaultIsIdempotent(t *testing.T) {
	svc := newServices()
	f, _ := Load("")
	ctx := context.Background()

	res, err := Apply(ctx, f, svc, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stock != 5 || res.Skipped != 0 {
		t.Errorf("unexpected first result %+v", res)
	}
	res, err = Apply(ctx, f, svc, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stock != 0 || res.Skipped != 5 {
		t.Errorf("unexpected second result %+v", res)
	}

	alerts, _ := svc.Stock.AlertItems(ctx)
	if len(alerts) != 1 || alerts[0].Name != "Plaque LCP 4.5" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestApply_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	doc := `
patients:
  - ipp: T-100
    name: Diallo
    age: 41
    sex: M
    diagnosis: Tibial shaft fracture
    procedure: nailing
    surgeon: Pr Lamah
    notes: ["J1: stable"]
transactions:
  - date: "2026-10-01"
    type: income
    category: grant
    amount: 1000000
  - type: expense
    category: pharmacy
    amount: 250000
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	svc := newServices()
	ctx := context.Background()
	res, err := Apply(ctx, f, svc, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if res.Patients != 1 || res.Transactions != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	p, err := svc.Patients.GetByIPP(ctx, "T-100")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.EvolutionLog) != 2 {
		t.Errorf("expected admission plus one note, got %v", p.EvolutionLog)
	}
	balance, _ := svc.Ledger.Balance(ctx)
	if balance != 750000 {
		t.Errorf("unexpected balance %v", balance)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("stock:\n  - item: Clou\n")); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestApply_InvalidPatient(t *testing.T) {
	f := &File{Patients: []Patient{{IPP: "", Name: "Nobody"}}}
	if _, err := Apply(context.Background(), f, newServices(), zerolog.Nop()); err == nil {
		t.Error("expected validation error")
	}
}
