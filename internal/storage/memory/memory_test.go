package memory

import (
	"context"
	"testing"
	"time"

	"hisab/internal/core"
)

func newPrincipal() core.Principal {
	return core.Principal{
		Username:  "boss",
		Password:  "secret",
		Role:      core.RoleOwner,
		CreatedAt: time.Now(),
	}
}

func TestBootstrapIsSingleShot(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreatePrincipal(ctx, newPrincipal()); err != nil {
		t.Fatalf("first bootstrap failed: %v", err)
	}
	if err := s.CreatePrincipal(ctx, newPrincipal()); err != core.ErrPrincipalExists {
		t.Fatalf("second bootstrap: got %v, want ErrPrincipalExists", err)
	}
}

func TestReplacePrincipalVersioning(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreatePrincipal(ctx, newPrincipal()); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPrincipal(ctx)
	if err != nil || p == nil {
		t.Fatalf("get principal: %v, %v", p, err)
	}

	doc := p.Clone()
	doc.Managers = append(doc.Managers, core.Manager{Username: "sara", Password: "pw", Role: core.RoleManager, CreatedAt: time.Now()})
	if err := s.ReplacePrincipal(ctx, doc, p.Version); err != nil {
		t.Fatalf("replace at current version failed: %v", err)
	}

	// Replaying the same write with the stale version must conflict, not
	// silently clobber.
	if err := s.ReplacePrincipal(ctx, doc, p.Version); err != core.ErrVersionConflict {
		t.Fatalf("stale replace: got %v, want ErrVersionConflict", err)
	}

	fresh, err := s.GetPrincipal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version != p.Version+1 {
		t.Errorf("version = %d, want %d", fresh.Version, p.Version+1)
	}
	if len(fresh.Managers) != 1 || fresh.Managers[0].Username != "sara" {
		t.Errorf("managers = %+v, want [sara]", fresh.Managers)
	}
}

func TestReplaceWithoutPrincipal(t *testing.T) {
	s := New()
	if err := s.ReplacePrincipal(context.Background(), newPrincipal(), 1); err != core.ErrNoPrincipal {
		t.Fatalf("got %v, want ErrNoPrincipal", err)
	}
}

func TestRemoveTransactionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Income, Amount: core.Money{Cents: 100}, AddedBy: "boss", Date: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveTransaction(ctx, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveTransaction(ctx, id); err != nil {
		t.Fatalf("second remove must be a no-op, got %v", err)
	}
	if err := s.RemoveTransaction(ctx, "no-such-id"); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}

	list, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("ledger = %+v, want empty", list)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, cents := range []int64{100, 200, 300} {
		_, err := s.InsertTransaction(ctx, core.Transaction{
			Type:    core.Expense,
			Amount:  core.Money{Cents: cents},
			AddedBy: "boss",
			Date:    time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Amount.Cents != 300 || list[2].Amount.Cents != 100 {
		t.Errorf("unexpected order: %+v", list)
	}
}
