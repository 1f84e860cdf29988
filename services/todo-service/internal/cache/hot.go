package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solutions/todolist/services/todo-service/internal/read"
)

const DefaultTTL = 10 * time.Minute

type hotEntry struct {
	view      read.TodoView
	expiresAt time.Time
}

// Hot is the process-local point-lookup cache. It is safe for concurrent
// use by request handlers and the outbox dispatcher. Entries live for a
// fixed TTL from insertion; removal of an absent key is a no-op, which is
// what makes dispatcher redelivery safe.
type Hot struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]hotEntry

	now func() time.Time
}

func NewHot(ttl time.Duration) *Hot {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Hot{
		ttl:     ttl,
		entries: make(map[uuid.UUID]hotEntry),
		now:     time.Now,
	}
}

func (h *Hot) Get(id uuid.UUID) (read.TodoView, bool) {
	h.mu.RLock()
	e, ok := h.entries[id]
	h.mu.RUnlock()
	if !ok {
		return read.TodoView{}, false
	}
	if h.now().After(e.expiresAt) {
		// Expired entries count as misses; the janitor reclaims them.
		return read.TodoView{}, false
	}
	return e.view, true
}

func (h *Hot) Set(view read.TodoView) {
	h.mu.Lock()
	h.entries[view.ID] = hotEntry{view: view, expiresAt: h.now().Add(h.ttl)}
	h.mu.Unlock()
}

func (h *Hot) Remove(id uuid.UUID) {
	h.mu.Lock()
	if _, ok := h.entries[id]; ok {
		delete(h.entries, id)
		hotInvalidations.Inc()
	}
	h.mu.Unlock()
}

func (h *Hot) RemoveMany(ids []uuid.UUID) {
	h.mu.Lock()
	for _, id := range ids {
		if _, ok := h.entries[id]; ok {
			delete(h.entries, id)
			hotInvalidations.Inc()
		}
	}
	h.mu.Unlock()
}

func (h *Hot) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Janitor sweeps expired entries until the context is cancelled. Expiry is
// already enforced lazily on Get; the sweep just bounds memory.
func (h *Hot) Janitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hot) sweep() {
	now := h.now()
	h.mu.Lock()
	for id, e := range h.entries {
		if now.After(e.expiresAt) {
			delete(h.entries, id)
			hotEvictions.Inc()
		}
	}
	h.mu.Unlock()
}
