package orchestrator

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewSessionQueue()

	if got := q.Enqueue("a"); got != 0 {
		t.Fatalf("first enqueue position = %d, want 0", got)
	}
	if got := q.Enqueue("b"); got != 1 {
		t.Fatalf("second enqueue position = %d, want 1", got)
	}
	if got := q.Enqueue("c"); got != 2 {
		t.Fatalf("third enqueue position = %d, want 2", got)
	}

	if got := q.Current(); got != "a" {
		t.Fatalf("Current() = %q, want %q", got, "a")
	}
	if got := q.Position("c"); got != 2 {
		t.Fatalf("Position(c) = %d, want 2", got)
	}

	next, ok := q.Advance()
	if !ok || next != "b" {
		t.Fatalf("Advance() = %q, %v, want b, true", next, ok)
	}
	if got := q.Position("c"); got != 1 {
		t.Fatalf("Position(c) after advance = %d, want 1", got)
	}

	next, ok = q.Advance()
	if !ok || next != "c" {
		t.Fatalf("Advance() = %q, %v, want c, true", next, ok)
	}
	if _, ok := q.Advance(); ok {
		t.Fatal("Advance() on a drained queue reported a next session")
	}
	if got := q.Current(); got != "" {
		t.Fatalf("Current() on empty queue = %q, want empty", got)
	}
}

func TestQueueRemovePendingOnly(t *testing.T) {
	q := NewSessionQueue()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	if q.Remove("a") {
		t.Fatal("Remove() dropped the active session")
	}
	if !q.Remove("b") {
		t.Fatal("Remove() failed to drop a pending session")
	}
	if q.Remove("b") {
		t.Fatal("Remove() reported success for an absent session")
	}

	next, ok := q.Advance()
	if !ok || next != "c" {
		t.Fatalf("Advance() = %q, %v, want c, true", next, ok)
	}
}

func TestQueuePositionUnknown(t *testing.T) {
	q := NewSessionQueue()
	if got := q.Position("nope"); got != -1 {
		t.Fatalf("Position(unknown) = %d, want -1", got)
	}
}
