package feed

import "testing"

func TestSubscribeReceivesCurrentSnapshot(t *testing.T) {
	f := New[int]()
	f.Publish(42)

	ch, cancel := f.Subscribe()
	defer cancel()

	if got := <-ch; got != 42 {
		t.Fatalf("got %d, want the already-published 42", got)
	}
}

func TestLatestWins(t *testing.T) {
	f := New[int]()
	ch, cancel := f.Subscribe()
	defer cancel()

	// Publish twice without the consumer reading: the stale snapshot is
	// replaced, never queued.
	f.Publish(1)
	f.Publish(2)

	if got := <-ch; got != 2 {
		t.Fatalf("got %d, want latest snapshot 2", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %d", extra)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	f := New[int]()
	ch, cancel := f.Subscribe()
	cancel()

	f.Publish(7)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	f := New[string]()
	a, cancelA := f.Subscribe()
	defer cancelA()
	b, cancelB := f.Subscribe()
	defer cancelB()

	f.Publish("snap")
	if got := <-a; got != "snap" {
		t.Errorf("subscriber a got %q", got)
	}
	if got := <-b; got != "snap" {
		t.Errorf("subscriber b got %q", got)
	}
}

func TestClose(t *testing.T) {
	f := New[int]()
	ch, _ := f.Subscribe()
	f.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}
	// Publishing after close is a no-op, not a panic.
	f.Publish(1)
	if _, ok := f.Last(); ok {
		t.Fatal("Last must not report snapshots published after Close")
	}
}
