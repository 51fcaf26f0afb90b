package services

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/feed"
	"hisab/internal/storage"
)

// ExportPublisher queues a recorded transaction for the sheets export
// worker. A nil publisher disables export.
type ExportPublisher interface {
	PublishExport(ctx context.Context, id string) error
}

// LedgerSnapshot is the complete transaction set delivered to observers on
// every change. Revision increases monotonically within this process and
// keys derived-view caches.
type LedgerSnapshot struct {
	Revision     int64              `json:"revision"`
	Transactions []core.Transaction `json:"transactions"`
}

// LedgerService records and erases ledger entries and publishes full
// snapshots to observers. Stored transactions are never modified in place:
// the only mutations are insert and delete, so concurrent writers cannot
// conflict on an entry.
type LedgerService struct {
	store    storage.Store
	changes  ChangePublisher
	exports  ExportPublisher
	feed     *feed.Feed[LedgerSnapshot]
	revision atomic.Int64
}

func NewLedgerService(store storage.Store, changes ChangePublisher, exports ExportPublisher) *LedgerService {
	return &LedgerService{
		store:   store,
		changes: changes,
		exports: exports,
		feed:    feed.New[LedgerSnapshot](),
	}
}

// Record validates and stores a new transaction. The amount arrives as the
// raw user string and must parse to a positive finite value; note and
// addedBy are trimmed; the timestamp is assigned here.
func (s *LedgerService) Record(ctx context.Context, typ core.TxType, rawAmount, note, receipt, addedBy string) (core.Transaction, error) {
	amount, err := core.ParseAmount(rawAmount)
	if err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		Type:    typ,
		Amount:  amount,
		Note:    strings.TrimSpace(note),
		Receipt: strings.TrimSpace(receipt),
		AddedBy: core.NormalizeUsername(addedBy),
		Date:    time.Now(),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.InsertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id

	s.Refresh(ctx)
	s.notify(ctx)
	if s.exports != nil {
		if err := s.exports.PublishExport(ctx, id); err != nil {
			// Export is best-effort; the ledger entry is already safe.
			slog.WarnContext(ctx, "Failed to publish export message", "id", id, "error", err)
		}
	}
	return t, nil
}

// Erase deletes a transaction by id. Erasing an unknown or already-deleted
// id succeeds and changes nothing.
func (s *LedgerService) Erase(ctx context.Context, id string) error {
	if err := s.store.RemoveTransaction(ctx, id); err != nil {
		return err
	}
	s.Refresh(ctx)
	s.notify(ctx)
	slog.InfoContext(ctx, "Transaction erased", "id", id)
	return nil
}

// Observe subscribes to full ledger snapshots; the current snapshot is
// delivered immediately once one exists.
func (s *LedgerService) Observe() (<-chan LedgerSnapshot, func()) {
	return s.feed.Subscribe()
}

// Current returns the latest published snapshot, falling back to a store
// read before the first publish.
func (s *LedgerService) Current(ctx context.Context) (LedgerSnapshot, error) {
	if snap, ok := s.feed.Last(); ok {
		return snap, nil
	}
	list, err := s.store.ListTransactions(ctx)
	if err != nil {
		return LedgerSnapshot{}, err
	}
	return LedgerSnapshot{Revision: s.revision.Load(), Transactions: list}, nil
}

// Refresh re-reads the full ledger and republishes it as the authoritative
// snapshot. Called after local mutations and on remote-change
// notifications.
func (s *LedgerService) Refresh(ctx context.Context) {
	list, err := s.store.ListTransactions(ctx)
	if err != nil {
		// A failed refresh must not tear down live subscriptions; the next
		// change delivers a correct snapshot.
		slog.ErrorContext(ctx, "Failed to refresh ledger snapshot", "error", err)
		return
	}
	s.feed.Publish(LedgerSnapshot{
		Revision:     s.revision.Add(1),
		Transactions: list,
	})
}

func (s *LedgerService) Close() {
	s.feed.Close()
}

func (s *LedgerService) notify(ctx context.Context) {
	if s.changes == nil {
		return
	}
	if err := s.changes.PublishChange(ctx, amqp.CollectionTransactions); err != nil {
		slog.WarnContext(ctx, "Failed to publish transactions change", "error", err)
	}
}
