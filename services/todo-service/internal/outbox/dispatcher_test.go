package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	entries   []Entry
	markCalls []uuid.UUID
	markErr   map[uuid.UUID]error
}

func (s *fakeStore) FetchUnprocessed(_ context.Context, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.Processed {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkProcessed(_ context.Context, id uuid.UUID) error {
	s.markCalls = append(s.markCalls, id)
	if err := s.markErr[id]; err != nil {
		return err
	}
	for i := range s.entries {
		if s.entries[i].ID == id && !s.entries[i].Processed {
			now := time.Now().UTC()
			s.entries[i].Processed = true
			s.entries[i].ProcessedAt = &now
		}
	}
	return nil
}

type fakeInvalidator struct {
	calls  []uuid.UUID
	failOn map[uuid.UUID]error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id uuid.UUID) error {
	f.calls = append(f.calls, id)
	if err := f.failOn[id]; err != nil {
		return err
	}
	return nil
}

func entryFor(kind string, todoID uuid.UUID, occurredAt time.Time) Entry {
	body, _ := json.Marshal(map[string]string{"todo_id": todoID.String()})
	return Entry{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    body,
		OccurredAt: occurredAt,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCycleInvalidatesAndMarks(t *testing.T) {
	todoID := uuid.New()
	store := &fakeStore{entries: []Entry{entryFor("TodoMarkedDone", todoID, time.Now())}}
	inv := &fakeInvalidator{}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(inv.calls) != 1 || inv.calls[0] != todoID {
		t.Fatalf("expected one invalidation for %s, got %v", todoID, inv.calls)
	}
	if !store.entries[0].Processed {
		t.Fatal("entry must be marked processed")
	}
	if store.entries[0].ProcessedAt == nil {
		t.Fatal("processed entry must carry a timestamp")
	}
}

func TestCycleDrainsMultipleEntriesForSameTodo(t *testing.T) {
	// Two updates before any cycle: both rows exist, one cycle drains both,
	// invalidating the same key twice without error.
	todoID := uuid.New()
	base := time.Now()
	store := &fakeStore{entries: []Entry{
		entryFor("TodoUpdated", todoID, base),
		entryFor("TodoUpdated", todoID, base.Add(time.Millisecond)),
	}}
	inv := &fakeInvalidator{}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected 2 invalidations, got %d", len(inv.calls))
	}
	for _, e := range store.entries {
		if !e.Processed {
			t.Fatalf("entry %s left pending", e.ID)
		}
	}
	if len(store.markCalls) != 2 {
		t.Fatalf("expected exactly one mark per entry, got %d", len(store.markCalls))
	}
}

func TestCrashBetweenInvalidateAndMarkIsReprocessed(t *testing.T) {
	// First cycle: invalidation succeeds but mark-processed fails, which is
	// what a crash between the two steps looks like after restart. The
	// entry stays pending and converges on the next cycle.
	todoID := uuid.New()
	e := entryFor("TodoMarkedDone", todoID, time.Now())
	store := &fakeStore{
		entries: []Entry{e},
		markErr: map[uuid.UUID]error{e.ID: errors.New("connection reset")},
	}
	inv := &fakeInvalidator{}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if store.entries[0].Processed {
		t.Fatal("entry must stay pending after mark failure")
	}

	store.markErr = nil
	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if !store.entries[0].Processed {
		t.Fatal("entry must be processed after retry")
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected redundant invalidation on retry, got %d calls", len(inv.calls))
	}
}

func TestFailedEntryDoesNotStallBatch(t *testing.T) {
	poison := uuid.New()
	healthy := uuid.New()
	base := time.Now()
	store := &fakeStore{entries: []Entry{
		entryFor("TodoUpdated", poison, base),
		entryFor("TodoUpdated", healthy, base.Add(time.Millisecond)),
	}}
	inv := &fakeInvalidator{failOn: map[uuid.UUID]error{poison: errors.New("cache backend unreachable")}}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if store.entries[0].Processed {
		t.Fatal("failed entry must stay pending")
	}
	if !store.entries[1].Processed {
		t.Fatal("entries after the failed one must still be processed")
	}
}

func TestBatchSizeBoundsCycle(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.entries = append(store.entries, entryFor("TodoUpdated", uuid.New(), time.Now().Add(time.Duration(i)*time.Millisecond)))
	}
	inv := &fakeInvalidator{}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{BatchSize: 2})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(inv.calls))
	}
}

func TestUnknownKindIsMarkedProcessed(t *testing.T) {
	e := Entry{ID: uuid.New(), Kind: "SomethingElse", Payload: []byte(`{}`), OccurredAt: time.Now()}
	store := &fakeStore{entries: []Entry{e}}
	inv := &fakeInvalidator{}
	d := NewDispatcher(store, inv, testLogger(), DispatcherConfig{})

	if err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatal("unknown kind must not invalidate anything")
	}
	if !store.entries[0].Processed {
		t.Fatal("unknown kind must still be marked processed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	d := NewDispatcher(store, &fakeInvalidator{}, testLogger(), DispatcherConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}
}
