// Package storage provides the persistence abstractions behind the shared
// credential document and the transaction ledger.
package storage

import (
	"context"

	"hisab/internal/core"
)

// Store is the backing document store shared by every client process.
// Implementations assign transaction ids, keep the admins document as a
// versioned singleton, and never mutate a stored transaction in place.
type Store interface {
	// CreatePrincipal persists the one-time owner bootstrap. It fails with
	// core.ErrPrincipalExists once a principal exists (first-writer-wins).
	CreatePrincipal(ctx context.Context, p core.Principal) error

	// GetPrincipal returns the current credential document, or nil when no
	// principal has been registered yet.
	GetPrincipal(ctx context.Context) (*core.Principal, error)

	// ReplacePrincipal rewrites the whole credential document if and only
	// if its stored version still equals expectedVersion; otherwise it
	// fails with core.ErrVersionConflict and the caller re-reads and
	// retries. This closes the last-writer-wins race on the embedded
	// managers list.
	ReplacePrincipal(ctx context.Context, p core.Principal, expectedVersion int64) error

	// InsertTransaction stores a new ledger entry and returns its
	// store-assigned id.
	InsertTransaction(ctx context.Context, t core.Transaction) (string, error)

	// RemoveTransaction deletes by id. Removing an unknown id is a benign
	// no-op.
	RemoveTransaction(ctx context.Context, id string) error

	// ListTransactions returns the full ledger, newest first.
	ListTransactions(ctx context.Context) ([]core.Transaction, error)

	// Close releases any resources held by the store.
	Close() error
}
