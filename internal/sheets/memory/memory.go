// Package memory is an in-process ExpenseWriter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"hisab/internal/core"
)

type Writer struct {
	mu   sync.Mutex
	rows []core.Transaction
}

func New() *Writer {
	return &Writer{}
}

// Append stores the expense and returns a synthetic row reference.
func (w *Writer) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, tx)
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Transaction, len(w.rows))
	copy(out, w.rows)
	return out
}
