package core

import (
	"reflect"
	"testing"
	"time"
)

func TestSelectExpensesCustomInclusive(t *testing.T) {
	d1 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.Local)
	d2 := time.Date(2026, 3, 11, 8, 0, 0, 0, time.Local)

	snapshot := []Transaction{
		tx("a", Income, 10000, d1),
		tx("b", Expense, 3000, d1),
		tx("c", Expense, 2000, d2),
	}

	got, err := SelectExpenses(snapshot, ReportCustom, d1, d1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].ID != "b" {
		t.Fatalf("rows = %+v, want only tx b", got.Rows)
	}
	if got.Total.Cents != 3000 {
		t.Errorf("total = %d, want 3000", got.Total.Cents)
	}

	// Both endpoints are inclusive.
	both, err := SelectExpenses(snapshot, ReportCustom, d1, d2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(both.Rows) != 2 || both.Total.Cents != 5000 {
		t.Fatalf("rows = %d total = %d, want 2 rows totalling 5000", len(both.Rows), both.Total.Cents)
	}
}

func TestSelectExpensesEndOfDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)
	lastInstant := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	nextMidnight := day.AddDate(0, 0, 1)

	snapshot := []Transaction{
		tx("late", Expense, 100, lastInstant),
		tx("next", Expense, 200, nextMidnight),
	}

	got, err := SelectExpenses(snapshot, ReportCustom, day, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].ID != "late" {
		t.Fatalf("rows = %+v, want only the end-of-day expense", got.Rows)
	}
}

func TestSelectExpensesToday(t *testing.T) {
	now := time.Now()
	snapshot := []Transaction{
		tx("today", Expense, 500, now),
		tx("yesterday", Expense, 700, now.AddDate(0, 0, -1)),
		tx("income", Income, 900, now),
	}

	got, err := SelectExpenses(snapshot, ReportToday, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].ID != "today" {
		t.Fatalf("rows = %+v, want only today's expense", got.Rows)
	}
	if got.Total.Cents != 500 {
		t.Errorf("total = %d, want 500", got.Total.Cents)
	}
}

func TestSelectExpensesMissingRange(t *testing.T) {
	snapshot := []Transaction{tx("a", Expense, 100, time.Now())}

	if _, err := SelectExpenses(snapshot, ReportCustom, time.Now(), time.Time{}); err != ErrMissingDateRange {
		t.Errorf("missing to: got %v, want ErrMissingDateRange", err)
	}
	if _, err := SelectExpenses(snapshot, ReportCustom, time.Time{}, time.Now()); err != ErrMissingDateRange {
		t.Errorf("missing from: got %v, want ErrMissingDateRange", err)
	}
	if _, err := SelectExpenses(snapshot, "weekly", time.Now(), time.Now()); err != ErrMissingDateRange {
		t.Errorf("unknown mode: got %v, want ErrMissingDateRange", err)
	}
}

func TestSelectExpensesPure(t *testing.T) {
	d := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)
	snapshot := []Transaction{
		tx("a", Expense, 100, d),
		tx("b", Expense, 200, d.Add(time.Hour)),
	}

	first, err := SelectExpenses(snapshot, ReportCustom, d, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SelectExpenses(snapshot, ReportCustom, d, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-invocation differs: %+v vs %+v", first, second)
	}
	// Rows come back newest first.
	if first.Rows[0].ID != "b" || first.Rows[1].ID != "a" {
		t.Errorf("rows not date-descending: %+v", first.Rows)
	}
}
