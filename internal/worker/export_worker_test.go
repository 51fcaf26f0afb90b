package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/core"
	sheetsmem "hisab/internal/sheets/memory"
	storagemem "hisab/internal/storage/memory"
)

func insert(t *testing.T, store *storagemem.Store, typ core.TxType, cents int64) string {
	t.Helper()
	id, err := store.InsertTransaction(context.Background(), core.Transaction{
		Type:    typ,
		Amount:  core.Money{Cents: cents},
		Note:    "groceries",
		AddedBy: "boss",
		Date:    time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestHandleExportMessage(t *testing.T) {
	ctx := context.Background()
	store := storagemem.New()
	writer := sheetsmem.New()
	w := NewExportWorker(store, writer)

	id := insert(t, store, core.Expense, 1250)
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(id)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := writer.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Amount.Cents != 1250 {
		t.Errorf("amount = %d, want 1250", rows[0].Amount.Cents)
	}
}

func TestHandleExportMessage_SkipsIncome(t *testing.T) {
	ctx := context.Background()
	store := storagemem.New()
	writer := sheetsmem.New()
	w := NewExportWorker(store, writer)

	id := insert(t, store, core.Income, 5000)
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(id)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(writer.Rows()) != 0 {
		t.Error("income entries must not be exported")
	}
}

func TestHandleExportMessage_SkipsErased(t *testing.T) {
	ctx := context.Background()
	store := storagemem.New()
	writer := sheetsmem.New()
	w := NewExportWorker(store, writer)

	id := insert(t, store, core.Expense, 900)
	if err := store.RemoveTransaction(ctx, id); err != nil {
		t.Fatal(err)
	}

	// The entry was erased before the worker caught up; ack without export.
	if err := w.HandleExportMessage(ctx, amqp.NewExportMessage(id)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(writer.Rows()) != 0 {
		t.Error("erased entries must not be exported")
	}
}

type failingGetter struct{}

func (failingGetter) GetTransaction(context.Context, string) (*core.Transaction, error) {
	return nil, errors.New("db gone")
}

func TestHandleExportMessage_StorageError(t *testing.T) {
	w := NewExportWorker(failingGetter{}, sheetsmem.New())
	if err := w.HandleExportMessage(context.Background(), amqp.NewExportMessage("x")); err == nil {
		t.Fatal("storage errors must propagate so the message is requeued")
	}
}
