package core

import (
	"sort"
	"time"
)

const (
	ReportToday  ReportMode = "today"
	ReportCustom ReportMode = "custom"
)

type (
	ReportMode string

	// Report is the result of an expense selection: the matching rows in
	// date-descending order plus their total.
	Report struct {
		Rows  []Transaction `json:"rows"`
		Total Money         `json:"total"`
	}
)

// SelectExpenses filters a ledger snapshot down to the expense rows of the
// requested calendar range and totals them. The function is pure and
// deterministic for unchanged inputs, so a caller can re-invoke it for a
// preview and again for printing.
//
// ReportToday ranges over the current local calendar day. ReportCustom
// requires both bounds (ErrMissingDateRange otherwise); from starts at
// 00:00:00 of its day and to is inclusive through end-of-day.
func SelectExpenses(snapshot []Transaction, mode ReportMode, from, to time.Time) (Report, error) {
	switch mode {
	case ReportToday:
		now := time.Now()
		from, to = now, now
	case ReportCustom:
		if from.IsZero() || to.IsZero() {
			return Report{}, ErrMissingDateRange
		}
	default:
		return Report{}, ErrMissingDateRange
	}

	start := startOfDay(from)
	end := startOfDay(to).AddDate(0, 0, 1).Add(-time.Nanosecond)

	var rows []Transaction
	var total int64
	for _, t := range snapshot {
		if t.Type != Expense {
			continue
		}
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		rows = append(rows, t)
		total += t.Amount.Cents
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})
	return Report{Rows: rows, Total: Money{Cents: total}}, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
