package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies what changed on a todo.
type NotificationKind string

const (
	KindTodoUpdated    NotificationKind = "TodoUpdated"
	KindTodoMarkedDone NotificationKind = "TodoMarkedDone"
)

// ChangeNotification is an in-memory record of a committed-to-be change.
// It is buffered on the aggregate and only becomes durable when the
// repository writes it to the outbox in the same transaction as the state.
type ChangeNotification struct {
	Kind       NotificationKind
	TodoID     uuid.UUID
	OccurredAt time.Time
}

// NotificationCarrier is implemented by aggregates that buffer change
// notifications for the commit path to drain.
type NotificationCarrier interface {
	PendingNotifications() []ChangeNotification
	ClearNotifications()
}

type Todo struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	Done        bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	CompletedAt *time.Time

	pending []ChangeNotification
}

// NewTodo constructs a fresh todo. Creation deliberately buffers no
// notification: the cold store picks the row up through replication and
// the first read is a cache miss, so there is nothing to invalidate.
func NewTodo(userID uuid.UUID, title, description string) *Todo {
	return &Todo{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Done:        false,
		CreatedAt:   time.Now().UTC(),
	}
}

func (t *Todo) Update(title, description string) {
	t.Title = title
	t.Description = description
	now := time.Now().UTC()
	t.UpdatedAt = &now
	t.buffer(KindTodoUpdated)
}

// MarkDone is a no-op on an already-done todo: no field change, no
// notification.
func (t *Todo) MarkDone() {
	if t.Done {
		return
	}
	t.Done = true
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.buffer(KindTodoMarkedDone)
}

// Reopen flips a done todo back to open.
func (t *Todo) Reopen() {
	if !t.Done {
		return
	}
	t.Done = false
	t.CompletedAt = nil
	now := time.Now().UTC()
	t.UpdatedAt = &now
	t.buffer(KindTodoUpdated)
}

func (t *Todo) buffer(kind NotificationKind) {
	t.pending = append(t.pending, ChangeNotification{
		Kind:       kind,
		TodoID:     t.ID,
		OccurredAt: time.Now().UTC(),
	})
}

func (t *Todo) PendingNotifications() []ChangeNotification {
	return t.pending
}

// ClearNotifications must only be called after the buffered notifications
// have been durably committed.
func (t *Todo) ClearNotifications() {
	t.pending = nil
}
