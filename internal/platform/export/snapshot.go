package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

// File names used inside a snapshot directory.
const (
	PatientsFile     = "patients.csv"
	TransactionsFile = "transactions.csv"
	StockFile        = "stock.csv"
)

type PatientStore interface {
	All(ctx context.Context) ([]*patient.Patient, error)
	RestoreAll(ctx context.Context, ps []*patient.Patient) error
}

type LedgerStore interface {
	All(ctx context.Context) ([]*finance.Transaction, error)
	RestoreAll(ctx context.Context, txs []*finance.Transaction) error
}

type StockStore interface {
	List(ctx context.Context) ([]*stock.Item, error)
	RestoreAll(ctx context.Context, items []*stock.Item) error
}

// Ward gives the exporter access to the three tables.
type Ward struct {
	Patients PatientStore
	Ledger   LedgerStore
	Stock    StockStore
}

// Snapshot is the full content of the three tables at one point in time.
type Snapshot struct {
	Patients     []*patient.Patient
	Transactions []*finance.Transaction
	Stock        []*stock.Item
}

func (w *Ward) Snapshot(ctx context.Context) (*Snapshot, error) {
	patients, err := w.Patients.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read patients: %w", err)
	}
	txs, err := w.Ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	items, err := w.Stock.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stock: %w", err)
	}
	return &Snapshot{Patients: patients, Transactions: txs, Stock: items}, nil
}

// ImportPatients restores every parsed record and returns how many were
// stored. A rejected file leaves the registry unchanged.
func (w *Ward) ImportPatients(ctx context.Context, r io.Reader) (int, error) {
	patients, err := ReadPatients(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := w.Patients.RestoreAll(ctx, patients); err != nil {
		return 0, err
	}
	return len(patients), nil
}

func (w *Ward) ImportTransactions(ctx context.Context, r io.Reader) (int, error) {
	txs, err := ReadTransactions(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := w.Ledger.RestoreAll(ctx, txs); err != nil {
		return 0, err
	}
	return len(txs), nil
}

func (w *Ward) ImportStock(ctx context.Context, r io.Reader) (int, error) {
	items, err := ReadStock(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := w.Stock.RestoreAll(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// SaveDir overwrites the three CSV files in dir. Each file is written to a
// temporary name first and renamed into place.
func (w *Ward) SaveDir(ctx context.Context, dir string) error {
	snap, err := w.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{PatientsFile, func(out io.Writer) error { return WritePatients(out, snap.Patients) }},
		{TransactionsFile, func(out io.Writer) error { return WriteTransactions(out, snap.Transactions) }},
		{StockFile, func(out io.Writer) error { return WriteStock(out, snap.Stock) }},
	}
	for _, f := range files {
		if err := writeFileAtomic(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

// LoadDir imports whichever of the three CSV files exist in dir. It returns
// false when none was found. Every file is parsed before the first table is
// written.
func (w *Ward) LoadDir(ctx context.Context, dir string) (bool, error) {
	var (
		snap  Snapshot
		found bool
	)
	readers := []struct {
		name string
		read func(io.Reader) error
	}{
		{PatientsFile, func(r io.Reader) (err error) { snap.Patients, err = ReadPatients(r); return err }},
		{TransactionsFile, func(r io.Reader) (err error) { snap.Transactions, err = ReadTransactions(r); return err }},
		{StockFile, func(r io.Reader) (err error) { snap.Stock, err = ReadStock(r); return err }},
	}
	for _, rd := range readers {
		f, err := os.Open(filepath.Join(dir, rd.name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return found, err
		}
		found = true
		err = rd.read(f)
		f.Close()
		if err != nil {
			return found, fmt.Errorf("load %s: %w: %v", rd.name, domain.ErrValidation, err)
		}
	}

	if err := w.Patients.RestoreAll(ctx, snap.Patients); err != nil {
		return found, fmt.Errorf("load %s: %w", PatientsFile, err)
	}
	if err := w.Ledger.RestoreAll(ctx, snap.Transactions); err != nil {
		return found, fmt.Errorf("load %s: %w", TransactionsFile, err)
	}
	if err := w.Stock.RestoreAll(ctx, snap.Stock); err != nil {
		return found, fmt.Errorf("load %s: %w", StockFile, err)
	}
	return found, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
