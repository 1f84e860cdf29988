package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solutions/todolist/services/todo-service/internal/model"
)

// Store is the slice of the pgx pool the repository uses.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutboxInserter appends a change notification inside the given
// transaction.
type OutboxInserter interface {
	Insert(ctx context.Context, tx pgx.Tx, n model.ChangeNotification) error
}

type TodoRepository struct {
	db     Store
	outbox OutboxInserter
}

func NewTodoRepository(db Store, outbox OutboxInserter) *TodoRepository {
	return &TodoRepository{db: db, outbox: outbox}
}

// Save commits the todo's state and its buffered notifications in one
// transaction: either the row and every outbox entry land together or
// nothing does. The buffer is only cleared once the commit succeeded, so a
// failed commit leaves the aggregate ready for a retry by the caller.
func (r *TodoRepository) Save(ctx context.Context, todo *model.Todo) error {
	return r.SaveAll(ctx, []*model.Todo{todo})
}

// SaveAll is Save over several aggregates in a single atomic unit. Batch
// mutations use it so one commit carries every row and every notification.
func (r *TodoRepository) SaveAll(ctx context.Context, todos []*model.Todo) error {
	if len(todos) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, todo := range todos {
		if err := upsertTodo(ctx, tx, todo); err != nil {
			return err
		}
		for _, n := range todo.PendingNotifications() {
			if err := r.outbox.Insert(ctx, tx, n); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, todo := range todos {
		todo.ClearNotifications()
	}
	return nil
}

func upsertTodo(ctx context.Context, tx pgx.Tx, todo *model.Todo) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO todos (id, user_id, title, description, done, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
			description = EXCLUDED.description,
			done = EXCLUDED.done,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`, todo.ID, todo.UserID, todo.Title, todo.Description, todo.Done, todo.CreatedAt, todo.UpdatedAt, todo.CompletedAt)
	return err
}

// GetByIDForUser reads the authoritative row, scoped to its owner. The
// read path for queries is the cache service; this is for mutations, which
// must start from committed state.
func (r *TodoRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*model.Todo, error) {
	var todo model.Todo
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, title, description, done, created_at, updated_at, completed_at
		FROM todos
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&todo.ID, &todo.UserID, &todo.Title, &todo.Description, &todo.Done, &todo.CreatedAt, &todo.UpdatedAt, &todo.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

// GetAllForUser loads a set of todos owned by userID. IDs that do not
// exist or belong to someone else are silently absent from the result.
func (r *TodoRepository) GetAllForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*model.Todo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, description, done, created_at, updated_at, completed_at
		FROM todos
		WHERE id = ANY($1) AND user_id = $2
	`, ids, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var todos []*model.Todo
	for rows.Next() {
		var todo model.Todo
		if err := rows.Scan(&todo.ID, &todo.UserID, &todo.Title, &todo.Description, &todo.Done, &todo.CreatedAt, &todo.UpdatedAt, &todo.CompletedAt); err != nil {
			return nil, err
		}
		todos = append(todos, &todo)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return todos, nil
}

// Delete removes the row; the replication trigger removes the cold copy in
// the same commit. No notification is emitted, so the caller is expected
// to invalidate the hot key itself.
func (r *TodoRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM todos WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteAll removes the given rows owned by userID and reports the ids it
// actually deleted.
func (r *TodoRepository) DeleteAll(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		DELETE FROM todos WHERE id = ANY($1) AND user_id = $2
		RETURNING id
	`, ids, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deleted, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
