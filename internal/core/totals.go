package core

// Totals is the aggregate view of one ledger snapshot.
type Totals struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Balance Money `json:"balance"`
	Count   int   `json:"count"`
}

// ComputeTotals derives the aggregate figures from a full snapshot. It is a
// pure function and always recomputes from scratch: transactions can be
// deleted out of order, so a running counter would drift from ground truth.
func ComputeTotals(snapshot []Transaction) Totals {
	var income, expense int64
	for _, t := range snapshot {
		switch t.Type {
		case Income:
			income += t.Amount.Cents
		case Expense:
			expense += t.Amount.Cents
		}
	}
	return Totals{
		Income:  Money{Cents: income},
		Expense: Money{Cents: expense},
		Balance: Money{Cents: income - expense},
		Count:   len(snapshot),
	}
}
