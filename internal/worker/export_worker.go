// Package worker exports recorded expenses to an external spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/sheets"
)

// TransactionGetter is the slice of the store the worker needs.
type TransactionGetter interface {
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
}

// ExportWorker consumes export messages and appends the referenced
// expenses to the configured sheet.
type ExportWorker struct {
	store  TransactionGetter
	sheets sheets.ExpenseWriter
}

func NewExportWorker(store TransactionGetter, sheets sheets.ExpenseWriter) *ExportWorker {
	return &ExportWorker{
		store:  store,
		sheets: sheets,
	}
}

// HandleExportMessage processes a single export message from AMQP.
// Entries erased before the worker catches up, and income entries, are
// acknowledged without an append.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportMessage) error {
	slog.InfoContext(ctx, "Processing export message", "id", msg.ID)

	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if tx == nil {
		slog.InfoContext(ctx, "Transaction no longer exists, skipping export", "id", msg.ID)
		return nil
	}
	if tx.Type != core.Expense {
		slog.DebugContext(ctx, "Not an expense, skipping export", "id", msg.ID, "type", tx.Type)
		return nil
	}

	ref, err := w.sheets.Append(ctx, *tx)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Successfully exported expense",
		"id", msg.ID,
		"sheets_ref", ref,
		"amount_cents", tx.Amount.Cents)

	return nil
}
