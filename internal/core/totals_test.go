package core

import (
	"testing"
	"time"
)

func tx(id string, typ TxType, cents int64, date time.Time) Transaction {
	return Transaction{
		ID:      id,
		Type:    typ,
		Amount:  Money{Cents: cents},
		AddedBy: "owner",
		Date:    date,
	}
}

func TestComputeTotals(t *testing.T) {
	d1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	d2 := d1.AddDate(0, 0, 1)

	snapshot := []Transaction{
		tx("a", Income, 10000, d1),
		tx("b", Expense, 3000, d1),
		tx("c", Expense, 2000, d2),
	}

	got := ComputeTotals(snapshot)
	if got.Income.Cents != 10000 {
		t.Errorf("income = %d, want 10000", got.Income.Cents)
	}
	if got.Expense.Cents != 5000 {
		t.Errorf("expense = %d, want 5000", got.Expense.Cents)
	}
	if got.Balance.Cents != 5000 {
		t.Errorf("balance = %d, want 5000", got.Balance.Cents)
	}
	if got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}
}

func TestComputeTotalsEmpty(t *testing.T) {
	got := ComputeTotals(nil)
	if got.Income.Cents != 0 || got.Expense.Cents != 0 || got.Balance.Cents != 0 || got.Count != 0 {
		t.Errorf("expected zero totals, got %+v", got)
	}
}

func TestComputeTotalsAfterDeletes(t *testing.T) {
	d := time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)
	snapshot := []Transaction{
		tx("a", Income, 5000, d),
		tx("b", Income, 2500, d),
		tx("c", Expense, 4000, d),
	}

	// Deleting out of order means a new full snapshot, never an adjustment
	// of a running counter.
	withoutB := []Transaction{snapshot[0], snapshot[2]}
	got := ComputeTotals(withoutB)
	if got.Balance.Cents != 1000 {
		t.Errorf("balance = %d, want 1000", got.Balance.Cents)
	}
	if got.Count != 2 {
		t.Errorf("count = %d, want 2", got.Count)
	}
}
