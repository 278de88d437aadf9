// Package export moves the three ward tables in and out of CSV files and an
// XLSX workbook. Patient images are never exported.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

const dateLayout = "2006-01-02"

var (
	PatientHeader = []string{
		"id", "ipp", "admission_date", "name", "age", "sex", "diagnosis", "procedure",
		"surgeon", "status", "evolution_notes", "complication", "report",
	}
	TransactionHeader = []string{"id", "date", "type", "category", "description", "amount"}
	StockHeader       = []string{"id", "name", "quantity", "alert_threshold"}
)

func patientRow(p *patient.Patient) []string {
	report := ""
	if p.Report != nil {
		report = *p.Report
	}
	return []string{
		p.ID.String(),
		p.IPP,
		p.AdmissionDate.Format(dateLayout),
		p.Name,
		strconv.Itoa(p.Age),
		string(p.Sex),
		p.Diagnosis,
		string(p.Procedure),
		p.Surgeon,
		string(p.Status),
		patient.EncodeLog(p.EvolutionLog),
		string(p.Complication),
		report,
	}
}

func parsePatient(rec []string) (*patient.Patient, error) {
	id, err := uuid.Parse(rec[0])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	admitted, err := time.Parse(dateLayout, rec[2])
	if err != nil {
		return nil, fmt.Errorf("admission_date: %w", err)
	}
	age, err := strconv.Atoi(rec[4])
	if err != nil {
		return nil, fmt.Errorf("age: %w", err)
	}
	log, err := patient.DecodeLog(rec[10])
	if err != nil {
		return nil, err
	}
	p := &patient.Patient{
		ID:            id,
		IPP:           rec[1],
		AdmissionDate: admitted,
		Name:          rec[3],
		Age:           age,
		Sex:           patient.Sex(rec[5]),
		Diagnosis:     rec[6],
		Procedure:     patient.Procedure(rec[7]),
		Surgeon:       rec[8],
		Status:        patient.Status(rec[9]),
		EvolutionLog:  log,
		Complication:  patient.Complication(rec[11]),
	}
	if rec[12] != "" {
		report := rec[12]
		p.Report = &report
	}
	return p, nil
}

func transactionRow(tx *finance.Transaction) []string {
	return []string{
		tx.ID.String(),
		tx.Date.Format(dateLayout),
		string(tx.Type),
		tx.Category,
		tx.Description,
		strconv.FormatFloat(tx.Amount, 'f', -1, 64),
	}
}

func parseTransaction(rec []string) (*finance.Transaction, error) {
	id, err := uuid.Parse(rec[0])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	date, err := time.Parse(dateLayout, rec[1])
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	amount, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &finance.Transaction{
		ID:          id,
		Date:        date,
		Type:        finance.TxType(rec[2]),
		Category:    rec[3],
		Description: rec[4],
		Amount:      amount,
	}, nil
}

func stockRow(item *stock.Item) []string {
	return []string{
		item.ID.String(),
		item.Name,
		strconv.Itoa(item.Quantity),
		strconv.Itoa(item.AlertThreshold),
	}
}

func parseStock(rec []string) (*stock.Item, error) {
	id, err := uuid.Parse(rec[0])
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	qty, err := strconv.Atoi(rec[2])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	threshold, err := strconv.Atoi(rec[3])
	if err != nil {
		return nil, fmt.Errorf("alert_threshold: %w", err)
	}
	return &stock.Item{ID: id, Name: rec[1], Quantity: qty, AlertThreshold: threshold}, nil
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// readCSV checks the header row and returns the data rows.
func readCSV(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: missing header row")
	}
	for i, name := range header {
		got := records[0][i]
		if i == 0 {
			got = strings.TrimPrefix(got, "\uFEFF")
		}
		if got != name {
			return nil, fmt.Errorf("read csv: column %d is %q, expected %q", i+1, got, name)
		}
	}
	return records[1:], nil
}

func WritePatients(w io.Writer, patients []*patient.Patient) error {
	rows := make([][]string, len(patients))
	for i, p := range patients {
		rows[i] = patientRow(p)
	}
	return writeCSV(w, PatientHeader, rows)
}

func ReadPatients(r io.Reader) ([]*patient.Patient, error) {
	records, err := readCSV(r, PatientHeader)
	if err != nil {
		return nil, err
	}
	out := make([]*patient.Patient, 0, len(records))
	for i, rec := range records {
		p, err := parsePatient(rec)
		if err != nil {
			return nil, fmt.Errorf("patients row %d: %w", i+2, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func WriteTransactions(w io.Writer, txs []*finance.Transaction) error {
	rows := make([][]string, len(txs))
	for i, tx := range txs {
		rows[i] = transactionRow(tx)
	}
	return writeCSV(w, TransactionHeader, rows)
}

func ReadTransactions(r io.Reader) ([]*finance.Transaction, error) {
	records, err := readCSV(r, TransactionHeader)
	if err != nil {
		return nil, err
	}
	out := make([]*finance.Transaction, 0, len(records))
	for i, rec := range records {
		tx, err := parseTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("transactions row %d: %w", i+2, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func WriteStock(w io.Writer, items []*stock.Item) error {
	rows := make([][]string, len(items))
	for i, item := range items {
		rows[i] = stockRow(item)
	}
	return writeCSV(w, StockHeader, rows)
}

func ReadStock(r io.Reader) ([]*stock.Item, error) {
	records, err := readCSV(r, StockHeader)
	if err != nil {
		return nil, err
	}
	out := make([]*stock.Item, 0, len(records))
	for i, rec := range records {
		item, err := parseStock(rec)
		if err != nil {
			return nil, fmt.Errorf("stock row %d: %w", i+2, err)
		}
		out = append(out, item)
	}
	return out, nil
}
