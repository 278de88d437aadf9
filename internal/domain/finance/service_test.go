package finance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
)

func newTestService() *Service {
	svc := NewService(NewMemoryRepo(), nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 2, 16, 45, 0, 0, time.UTC) }
	return svc
}

func TestService_Record_Defaults(t *testing.T) {
	svc := newTestService()
	tx := &Transaction{Type: TxIncome, Amount: 150000, Description: " Diallo "}
	if err := svc.Record(context.Background(), tx); err != nil {
		t.Fatal(err)
	}
	if tx.Category != CategoryOther {
		t.Errorf("expected default category, got %q", tx.Category)
	}
	if !tx.Date.Equal(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected today, got %v", tx.Date)
	}
	if tx.Description != "Diallo" {
		t.Errorf("expected trimmed description, got %q", tx.Description)
	}
}

func TestService_Record_Rejects(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, tx := range []*Transaction{
		{Type: TxExpense, Amount: -1},
		{Type: "Recette", Amount: 10},
		{Type: TxIncome, Amount: math.NaN()},
		{Type: TxIncome, Amount: math.Inf(1)},
	} {
		if err := svc.Record(ctx, tx); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", tx, err)
		}
	}
	_, total, _ := svc.List(ctx, 10, 0)
	if total != 0 {
		t.Errorf("rejected transactions must not be recorded, got %d", total)
	}
}

func TestService_Balance_OrderIndependent(t *testing.T) {
	entries := []Transaction{
		{Type: TxIncome, Category: "patient-payment", Amount: 500000},
		{Type: TxExpense, Category: "pharmacy", Amount: 120000},
		{Type: TxIncome, Category: "grant", Amount: 2000000},
		{Type: TxExpense, Category: "salaries", Amount: 900000},
		{Type: TxExpense, Category: "catering", Amount: 0},
	}
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {1, 3, 0, 4, 2}}

	for _, order := range orders {
		svc := newTestService()
		ctx := context.Background()
		for _, i := range order {
			tx := entries[i]
			if err := svc.Record(ctx, &tx); err != nil {
				t.Fatal(err)
			}
		}
		income, _ := svc.TotalByType(ctx, TxIncome)
		expense, _ := svc.TotalByType(ctx, TxExpense)
		balance, err := svc.Balance(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if income != 2500000 || expense != 1020000 {
			t.Errorf("order %v: income %v expense %v", order, income, expense)
		}
		if balance != income-expense {
			t.Errorf("order %v: balance %v != %v", order, balance, income-expense)
		}
	}
}

func TestService_TotalByType_InvalidType(t *testing.T) {
	svc := newTestService()
	if _, err := svc.TotalByType(context.Background(), "refund"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_Restore_RequiresDate(t *testing.T) {
	svc := newTestService()
	if err := svc.Restore(context.Background(), &Transaction{Type: TxIncome, Amount: 1}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_RestoreAll_AllOrNothing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	existing := &Transaction{ID: uuid.New(), Date: day, Type: TxIncome, Amount: 100}
	if err := svc.Restore(ctx, existing); err != nil {
		t.Fatal(err)
	}

	dupID := uuid.New()
	tests := []struct {
		name string
		txs  []*Transaction
	}{
		{"negative amount on second row", []*Transaction{
			{ID: uuid.New(), Date: day, Type: TxIncome, Amount: 5},
			{ID: uuid.New(), Date: day, Type: TxExpense, Amount: -1},
		}},
		{"unknown type on second row", []*Transaction{
			{ID: uuid.New(), Date: day, Type: TxIncome, Amount: 5},
			{ID: uuid.New(), Date: day, Type: "refund", Amount: 1},
		}},
		{"duplicate id inside batch", []*Transaction{
			{ID: dupID, Date: day, Type: TxIncome, Amount: 5},
			{ID: dupID, Date: day, Type: TxIncome, Amount: 6},
		}},
		{"id already recorded", []*Transaction{
			{ID: uuid.New(), Date: day, Type: TxIncome, Amount: 5},
			{ID: existing.ID, Date: day, Type: TxIncome, Amount: 100},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.RestoreAll(ctx, tt.txs); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			all, _ := svc.All(ctx)
			if len(all) != 1 {
				t.Errorf("rejected batch changed the ledger: %d rows", len(all))
			}
		})
	}
}

func TestService_Record_NormalizesLineEndings(t *testing.T) {
	svc := newTestService()
	tx := &Transaction{Type: TxExpense, Description: "plâtre\r\nbandes", Amount: 10}
	if err := svc.Record(context.Background(), tx); err != nil {
		t.Fatal(err)
	}
	if tx.Description != "plâtre\nbandes" {
		t.Errorf("unexpected description %q", tx.Description)
	}
}

func TestCategories(t *testing.T) {
	if len(Categories(TxIncome)) != 4 || len(Categories(TxExpense)) != 6 {
		t.Error("unexpected category lists")
	}
	if Categories("unknown") != nil {
		t.Error("unknown type has no categories")
	}
}
