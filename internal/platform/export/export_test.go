package export

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
)

type services struct {
	patients *patient.Service
	ledger   *finance.Service
	stock    *stock.Service
}

func newWard() (*Ward, services) {
	s := services{
		patients: patient.NewService(patient.NewMemoryRepo(), nil),
		ledger:   finance.NewService(finance.NewMemoryRepo(), nil),
		stock:    stock.NewService(stock.NewMemoryRepo(), nil),
	}
	return &Ward{Patients: s.patients, Ledger: s.ledger, Stock: s.stock}, s
}

func populate(t *testing.T, s services) {
	t.Helper()
	ctx := context.Background()
	p := &patient.Patient{
		IPP: "T-100", Name: "Diallo, Mamadou", Age: 41, Sex: patient.SexMale,
		Diagnosis: "Open tibia fracture \"Gustilo II\"", Procedure: patient.ProcedureExternalFixator, Surgeon: "Dr Samaké",
	}
	if err := s.patients.Admit(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := s.patients.AppendNote(ctx, p.ID, "J1: stable, T 37.8", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.patients.DeclareComplication(ctx, p.ID, patient.ComplicationInfection); err != nil {
		t.Fatal(err)
	}
	if _, err := s.patients.GenerateReport(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	q := &patient.Patient{IPP: "T-101", Name: "Bah", Age: 67, Sex: patient.SexFemale, Procedure: patient.ProcedureProsthesis}
	if err := s.patients.Admit(ctx, q); err != nil {
		t.Fatal(err)
	}
	if err := s.patients.AttachImage(ctx, q.ID, []byte{0xff, 0xd8, 0xff}, "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	if err := s.ledger.Record(ctx, &finance.Transaction{Type: finance.TxIncome, Category: "patient-payment", Description: "Diallo", Amount: 350000}); err != nil {
		t.Fatal(err)
	}
	if err := s.ledger.Record(ctx, &finance.Transaction{Type: finance.TxExpense, Category: "pharmacy", Description: "Bétadine, compresses", Amount: 12500.5}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.stock.CreateItem(ctx, "Clou Tibial", 10, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.stock.CreateItem(ctx, "Plaque LCP 4.5", 4, 5); err != nil {
		t.Fatal(err)
	}
}

func TestPatients_RoundTrip(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	ctx := context.Background()

	snap, err := ward.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var first bytes.Buffer
	if err := WritePatients(&first, snap.Patients); err != nil {
		t.Fatal(err)
	}

	restored, _ := newWard()
	n, err := restored.ImportPatients(ctx, bytes.NewReader(first.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported, got %d", n)
	}
	again, err := restored.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var second bytes.Buffer
	if err := WritePatients(&second, again.Patients); err != nil {
		t.Fatal(err)
	}
	if first.String() != second.String() {
		t.Errorf("round trip changed the table:\n%s\n---\n%s", first.String(), second.String())
	}

	diallo := again.Patients[0]
	if diallo.Complication != patient.ComplicationInfection || len(diallo.EvolutionLog) != 2 || diallo.Report == nil {
		t.Errorf("restored record lost state: %+v", diallo)
	}
	if again.Patients[1].Image != nil {
		t.Error("images must not be exported")
	}
}

func TestTransactionsAndStock_RoundTrip(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	ctx := context.Background()
	snap, _ := ward.Snapshot(ctx)

	var txs, items bytes.Buffer
	if err := WriteTransactions(&txs, snap.Transactions); err != nil {
		t.Fatal(err)
	}
	if err := WriteStock(&items, snap.Stock); err != nil {
		t.Fatal(err)
	}

	restored, rs := newWard()
	if _, err := restored.ImportTransactions(ctx, strings.NewReader(txs.String())); err != nil {
		t.Fatal(err)
	}
	if _, err := restored.ImportStock(ctx, strings.NewReader(items.String())); err != nil {
		t.Fatal(err)
	}
	balance, _ := rs.ledger.Balance(ctx)
	if balance != 350000-12500.5 {
		t.Errorf("unexpected balance after import: %v", balance)
	}
	alerts, _ := rs.stock.AlertItems(ctx)
	if len(alerts) != 1 || alerts[0].Name != "Plaque LCP 4.5" {
		t.Errorf("unexpected alerts after import: %+v", alerts)
	}
}

func TestReadCSV_RejectsWrongHeader(t *testing.T) {
	_, err := ReadStock(strings.NewReader("id,item,qty,threshold\n"))
	if err == nil {
		t.Fatal("expected header error")
	}
	ward, _ := newWard()
	_, err = ward.ImportStock(context.Background(), strings.NewReader("id,item,qty,threshold\n"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReadCSV_AcceptsBOM(t *testing.T) {
	items, err := ReadStock(strings.NewReader("\uFEFFid,name,quantity,alert_threshold\n" +
		"7b0c1f3e-7a4e-4a53-9d53-2a86f0e1b1a1,Vis Corticale,50,20\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Quantity != 50 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestImport_RejectsDuplicateOfExisting(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	ctx := context.Background()
	snap, _ := ward.Snapshot(ctx)
	var buf bytes.Buffer
	if err := WriteStock(&buf, snap.Stock); err != nil {
		t.Fatal(err)
	}

	n, err := ward.ImportStock(ctx, &buf)
	if !errors.Is(err, domain.ErrValidation) || n != 0 {
		t.Errorf("expected duplicate rejection, got n=%d err=%v", n, err)
	}
	items, _ := s.stock.List(ctx)
	if len(items) != 2 {
		t.Errorf("expected table to stay at 2 items, got %d", len(items))
	}
}

func TestImport_RejectedFileLeavesTableUnchanged(t *testing.T) {
	ctx := context.Background()
	const (
		idA = "7b0c1f3e-7a4e-4a53-9d53-2a86f0e1b1a1"
		idB = "7b0c1f3e-7a4e-4a53-9d53-2a86f0e1b1a2"
	)

	t.Run("stock negative quantity on second row", func(t *testing.T) {
		ward, s := newWard()
		csv := "id,name,quantity,alert_threshold\n" + idA + ",Gauze,10,2\n" + idB + ",Tape,-5,2\n"
		n, err := ward.ImportStock(ctx, strings.NewReader(csv))
		if !errors.Is(err, domain.ErrValidation) || n != 0 {
			t.Fatalf("expected validation error with nothing imported, got n=%d err=%v", n, err)
		}
		if items, _ := s.stock.List(ctx); len(items) != 0 {
			t.Errorf("rejected import left %d item(s) behind", len(items))
		}
	})

	t.Run("stock duplicate name inside the file", func(t *testing.T) {
		ward, s := newWard()
		csv := "id,name,quantity,alert_threshold\n" + idA + ",Gauze,10,2\n" + idB + ",Gauze,3,1\n"
		if _, err := ward.ImportStock(ctx, strings.NewReader(csv)); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if items, _ := s.stock.List(ctx); len(items) != 0 {
			t.Errorf("rejected import left %d item(s) behind", len(items))
		}
	})

	t.Run("transactions negative amount on second row", func(t *testing.T) {
		src, s := newWard()
		populate(t, s)
		snap, _ := src.Snapshot(ctx)
		var buf bytes.Buffer
		snap.Transactions[1].Amount = -1
		if err := WriteTransactions(&buf, snap.Transactions); err != nil {
			t.Fatal(err)
		}

		ward, rs := newWard()
		if _, err := ward.ImportTransactions(ctx, &buf); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if txs, _ := rs.ledger.All(ctx); len(txs) != 0 {
			t.Errorf("rejected import left %d transaction(s) behind", len(txs))
		}
	})

	t.Run("patients invalid status on second row", func(t *testing.T) {
		src, s := newWard()
		populate(t, s)
		snap, _ := src.Snapshot(ctx)
		var buf bytes.Buffer
		snap.Patients[1].Status = "lost"
		if err := WritePatients(&buf, snap.Patients); err != nil {
			t.Fatal(err)
		}

		ward, rs := newWard()
		if _, err := ward.ImportPatients(ctx, &buf); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if all, _ := rs.patients.All(ctx); len(all) != 0 {
			t.Errorf("rejected import left %d patient(s) behind", len(all))
		}
	})
}

func TestPatients_RoundTripKeepsMultilineText(t *testing.T) {
	ward, s := newWard()
	ctx := context.Background()
	p := &patient.Patient{IPP: "T-200", Name: "Camara", Diagnosis: "Fracture\r\ncol du fémur"}
	if err := s.patients.Admit(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := s.patients.SetReport(ctx, p.ID, "line1\r\nline2\rline3"); err != nil {
		t.Fatal(err)
	}

	snap, _ := ward.Snapshot(ctx)
	var buf bytes.Buffer
	if err := WritePatients(&buf, snap.Patients); err != nil {
		t.Fatal(err)
	}
	back, err := ReadPatients(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(back))
	}
	if back[0].Report == nil || *back[0].Report != *snap.Patients[0].Report || *back[0].Report != "line1\nline2\nline3" {
		t.Errorf("report changed across the round trip: before=%q after=%v", *snap.Patients[0].Report, back[0].Report)
	}
	if back[0].Diagnosis != snap.Patients[0].Diagnosis || back[0].Diagnosis != "Fracture\ncol du fémur" {
		t.Errorf("diagnosis changed across the round trip: before=%q after=%q", snap.Patients[0].Diagnosis, back[0].Diagnosis)
	}
}

func TestSaveDir_LoadDir(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshot")

	if err := ward.SaveDir(ctx, dir); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{PatientsFile, TransactionsFile, StockFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	restored, rs := newWard()
	found, err := restored.LoadDir(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected snapshot files to be found")
	}
	all, _ := rs.patients.All(ctx)
	items, _ := rs.stock.List(ctx)
	txs, _ := rs.ledger.All(ctx)
	if len(all) != 2 || len(items) != 2 || len(txs) != 2 {
		t.Errorf("unexpected restored sizes: %d patients, %d items, %d transactions", len(all), len(items), len(txs))
	}
}

func TestLoadDir_Empty(t *testing.T) {
	ward, _ := newWard()
	found, err := ward.LoadDir(context.Background(), t.TempDir())
	if err != nil || found {
		t.Errorf("expected nothing loaded, got found=%v err=%v", found, err)
	}
}

func TestWriteWorkbook(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	snap, _ := ward.Snapshot(context.Background())

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, snap); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 3 || got[0] != "Patients" || got[1] != "Ledger" || got[2] != "Stock" {
		t.Fatalf("unexpected sheets %v", got)
	}
	rows, err := f.GetRows("Stock")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][1] != "name" || rows[2][1] != "Plaque LCP 4.5" {
		t.Errorf("unexpected stock sheet %v", rows)
	}
	name, _ := f.GetCellValue("Patients", "D2")
	if name != "Diallo, Mamadou" {
		t.Errorf("unexpected patient name cell %q", name)
	}
}

func TestHandler_ExportAndImport(t *testing.T) {
	ward, s := newWard()
	populate(t, s)
	h := NewHandler(ward)
	h.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }
	e := echo.New()

	rec := httptest.NewRecorder()
	if err := h.ExportStock(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "stock_20261018.csv") {
		t.Errorf("unexpected content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,name,quantity,alert_threshold\n") {
		t.Errorf("unexpected csv %q", rec.Body.String())
	}

	target, ts := newWard()
	th := NewHandler(target)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(rec.Body.String()))
	req.Header.Set(echo.HeaderContentType, "text/csv")
	rec2 := httptest.NewRecorder()
	if err := th.ImportStock(e.NewContext(req, rec2)); err != nil {
		t.Fatal(err)
	}
	if rec2.Body.String() != "{\"imported\":2}\n" {
		t.Errorf("unexpected import response %q", rec2.Body.String())
	}
	items, _ := ts.stock.List(context.Background())
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}

	rec3 := httptest.NewRecorder()
	if err := h.ExportWorkbook(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec3)); err != nil {
		t.Fatal(err)
	}
	if rec3.Header().Get(echo.HeaderContentType) != mimeXLSX {
		t.Errorf("unexpected content type %q", rec3.Header().Get(echo.HeaderContentType))
	}
}

func TestHandler_ImportMultipartRequiresFileField(t *testing.T) {
	ward, _ := newWard()
	h := NewHandler(ward)
	e := echo.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("comment", "weekly stock"); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	err := h.ImportStock(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if msg, _ := he.Message.(string); msg != "file field is required" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHandler_ImportMultipartFile(t *testing.T) {
	ward, s := newWard()
	h := NewHandler(ward)
	e := echo.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "stock.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("id,name,quantity,alert_threshold\n7b0c1f3e-7a4e-4a53-9d53-2a86f0e1b1a1,Gauze,10,2\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	if err := h.ImportStock(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if items, _ := s.stock.List(context.Background()); len(items) != 1 || items[0].Name != "Gauze" {
		t.Errorf("unexpected items %+v", items)
	}
}
