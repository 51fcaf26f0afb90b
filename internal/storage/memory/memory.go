// Package memory provides an in-process Store used by tests and by the
// memory backend. Semantics mirror the SQLite store, including the
// versioned credential document and idempotent transaction removal.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"hisab/internal/core"
	"hisab/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	principal *core.Principal
	ledger    []core.Transaction
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) CreatePrincipal(_ context.Context, p core.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal != nil {
		return core.ErrPrincipalExists
	}
	doc := p.Clone()
	doc.Version = 1
	s.principal = &doc
	return nil
}

func (s *Store) GetPrincipal(_ context.Context) (*core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil, nil
	}
	doc := s.principal.Clone()
	return &doc, nil
}

func (s *Store) ReplacePrincipal(_ context.Context, p core.Principal, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return core.ErrNoPrincipal
	}
	if s.principal.Version != expectedVersion {
		return core.ErrVersionConflict
	}
	doc := p.Clone()
	doc.Version = expectedVersion + 1
	s.principal = &doc
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.NewString()
	s.ledger = append(s.ledger, t)
	return t.ID, nil
}

func (s *Store) RemoveTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.ledger {
		if t.ID == id {
			s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.ledger {
		if t.ID == id {
			tx := t
			return &tx, nil
		}
	}
	return nil, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.ledger))
	copy(out, s.ledger)
	// Newest first, matching the SQLite ordering.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
