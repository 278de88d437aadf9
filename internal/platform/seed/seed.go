// Package seed loads demo data into an empty ward from a YAML file.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

//go:embed default.yaml
var defaultSeed []byte

type StockItem struct {
	Name           string `yaml:"name"`
	Quantity       int    `yaml:"quantity"`
	AlertThreshold int    `yaml:"alert_threshold"`
}

type Patient struct {
	IPP       string   `yaml:"ipp"`
	Name      string   `yaml:"name"`
	Age       int      `yaml:"age"`
	Sex       string   `yaml:"sex"`
	Diagnosis string   `yaml:"diagnosis"`
	Procedure string   `yaml:"procedure"`
	Surgeon   string   `yaml:"surgeon"`
	Notes     []string `yaml:"notes"`
}

type Transaction struct {
	Date        string  `yaml:"date"`
	Type        string  `yaml:"type"`
	Category    string  `yaml:"category"`
	Description string  `yaml:"description"`
	Amount      float64 `yaml:"amount"`
}

// File is the seed document layout.
type File struct {
	Stock        []StockItem   `yaml:"stock"`
	Patients     []Patient     `yaml:"patients"`
	Transactions []Transaction `yaml:"transactions"`
}

// Parse decodes a seed document, rejecting unknown keys.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// Load reads a seed file from disk, or the built-in inventory when path is
// empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Parse(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Services are the registries a seed writes to.
type Services struct {
	Patients *patient.Service
	Ledger   *finance.Service
	Stock    *stock.Service
}

// Result counts what Apply created and skipped.
type Result struct {
	Stock        int
	Patients     int
	Transactions int
	Skipped      int
}

// Apply creates every seeded record. Items and patients whose key already
// exists are skipped so the seed can be re-run.
func Apply(ctx context.Context, f *File, svc Services, logger zerolog.Logger) (Result, error) {
	var res Result
	for _, s := range f.Stock {
		_, err := svc.Stock.CreateItem(ctx, s.Name, s.Quantity, s.AlertThreshold)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				if _, getErr := svc.Stock.Get(ctx, s.Name); getErr == nil {
					logger.Debug().Str("item", s.Name).Msg("seed: stock item exists, skipping")
					res.Skipped++
					continue
				}
			}
			return res, fmt.Errorf("seed stock item %q: %w", s.Name, err)
		}
		res.Stock++
	}

	for _, sp := range f.Patients {
		if _, err := svc.Patients.GetByIPP(ctx, sp.IPP); err == nil {
			logger.Debug().Str("ipp", sp.IPP).Msg("seed: patient exists, skipping")
			res.Skipped++
			continue
		}
		p := &patient.Patient{
			IPP:       sp.IPP,
			Name:      sp.Name,
			Age:       sp.Age,
			Sex:       patient.Sex(sp.Sex),
			Diagnosis: sp.Diagnosis,
			Procedure: patient.Procedure(sp.Procedure),
			Surgeon:   sp.Surgeon,
		}
		if err := svc.Patients.Admit(ctx, p); err != nil {
			return res, fmt.Errorf("seed patient %q: %w", sp.IPP, err)
		}
		for _, note := range sp.Notes {
			if _, err := svc.Patients.AppendNote(ctx, p.ID, note, time.Time{}); err != nil {
				return res, fmt.Errorf("seed note for %q: %w", sp.IPP, err)
			}
		}
		res.Patients++
	}

	for _, st := range f.Transactions {
		tx := &finance.Transaction{
			Type:        finance.TxType(st.Type),
			Category:    st.Category,
			Description: st.Description,
			Amount:      st.Amount,
		}
		if st.Date != "" {
			d, err := finance.ParseDate(st.Date)
			if err != nil {
				return res, err
			}
			tx.Date = d
		}
		if err := svc.Ledger.Record(ctx, tx); err != nil {
			return res, fmt.Errorf("seed transaction %q: %w", st.Description, err)
		}
		res.Transactions++
	}

	logger.Info().
		Int("stock", res.Stock).
		Int("patients", res.Patients).
		Int("transactions", res.Transactions).
		Int("skipped", res.Skipped).
		Msg("seed applied")
	return res, nil
}
