package cache

import (
	"context"

	"github.com/google/uuid"

	"github.com/solutions/todolist/services/todo-service/internal/read"
)

// ColdReader is the read-model query surface the service falls back to on
// a hot miss. Its consistency with the write store is maintained outside
// this package.
type ColdReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (read.TodoView, bool, error)
	List(ctx context.Context, q read.ListQuery) ([]read.TodoView, error)
}

// Service is the single entry point for reads and invalidations. Point
// lookups go hot-then-cold with write-through on a cold hit; list queries
// always go cold, because invalidating cached lists on every mutation has
// unbounded fan-out.
type Service struct {
	hot  *Hot
	cold ColdReader
}

func NewService(hot *Hot, cold ColdReader) *Service {
	return &Service{hot: hot, cold: cold}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (read.TodoView, bool, error) {
	if view, ok := s.hot.Get(id); ok {
		hotHits.Inc()
		return view, true, nil
	}
	hotMisses.Inc()

	view, ok, err := s.cold.GetByID(ctx, id)
	if err != nil || !ok {
		return read.TodoView{}, false, err
	}
	s.hot.Set(view)
	return view, true, nil
}

func (s *Service) List(ctx context.Context, q read.ListQuery) ([]read.TodoView, error) {
	return s.cold.List(ctx, q)
}

// Invalidate evicts the hot entry for id. The cold side needs no action:
// replication keeps it current. Absent keys are a no-op.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) error {
	s.hot.Remove(id)
	return nil
}

func (s *Service) InvalidateMany(ctx context.Context, ids []uuid.UUID) error {
	s.hot.RemoveMany(ids)
	return nil
}
