package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"hisab/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "hisab.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPrincipalLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if p, err := s.GetPrincipal(ctx); err != nil || p != nil {
		t.Fatalf("empty store: got (%v, %v), want (nil, nil)", p, err)
	}

	owner := core.Principal{
		Username:  "boss",
		Password:  "secret",
		Role:      core.RoleOwner,
		CreatedAt: time.Now(),
	}
	if err := s.CreatePrincipal(ctx, owner); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := s.CreatePrincipal(ctx, owner); err != core.ErrPrincipalExists {
		t.Fatalf("second bootstrap: got %v, want ErrPrincipalExists", err)
	}

	p, err := s.GetPrincipal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Username != "boss" || p.Role != core.RoleOwner || p.Version != 1 {
		t.Errorf("principal = %+v", p)
	}

	doc := p.Clone()
	doc.Managers = append(doc.Managers, core.Manager{
		Username: "sara", Password: "pw", Role: core.RoleManager, CreatedAt: time.Now(),
	})
	if err := s.ReplacePrincipal(ctx, doc, p.Version); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.ReplacePrincipal(ctx, doc, p.Version); err != core.ErrVersionConflict {
		t.Fatalf("stale replace: got %v, want ErrVersionConflict", err)
	}

	fresh, err := s.GetPrincipal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version != 2 || len(fresh.Managers) != 1 || fresh.Managers[0].Username != "sara" {
		t.Errorf("after replace: %+v", fresh)
	}
}

func TestConstraintViolationMapsToPrincipalExists(t *testing.T) {
	// A second process can slip its bootstrap insert between our count
	// and our insert; the resulting id collision must surface as
	// ErrPrincipalExists, not a raw driver error.
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unique on fixed id", errors.New("constraint failed: UNIQUE constraint failed: admins.id (1555)"), true},
		{"check on id", errors.New("constraint failed: CHECK constraint failed: id (275)"), true},
		{"wrapped", fmt.Errorf("insert principal: %w", errors.New("UNIQUE constraint failed: admins.id")), true},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), false},
		{"io error", errors.New("disk I/O error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isConstraintViolation(tc.err); got != tc.want {
				t.Errorf("isConstraintViolation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.InsertTransaction(ctx, core.Transaction{
		Type:    core.Income,
		Amount:  core.Money{Cents: 10000},
		Note:    "rent collected",
		AddedBy: "boss",
		Date:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.InsertTransaction(ctx, core.Transaction{
		Type:    core.Expense,
		Amount:  core.Money{Cents: 2500},
		Note:    "supplies",
		Receipt: "receipt-17.pdf",
		AddedBy: "sara",
		Date:    time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Errorf("not newest first: %+v", list)
	}
	if list[0].Receipt != "receipt-17.pdf" || list[0].AddedBy != "sara" {
		t.Errorf("row = %+v", list[0])
	}

	got, err := s.GetTransaction(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Note != "rent collected" {
		t.Errorf("GetTransaction = %+v", got)
	}

	if err := s.RemoveTransaction(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveTransaction(ctx, first); err != nil {
		t.Fatalf("remove must stay idempotent: %v", err)
	}
	if missing, err := s.GetTransaction(ctx, first); err != nil || missing != nil {
		t.Errorf("deleted tx: got (%v, %v), want (nil, nil)", missing, err)
	}

	list, err = s.ListTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != second {
		t.Errorf("after delete: %+v", list)
	}
}
