package read

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solutions/todolist/libs/db"
)

// TodoView is the denormalized row served by the read path. It is a
// projection of the write-side todo, keyed by the same id, and is kept in
// sync with the write table by database triggers inside the same commit.
type TodoView struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	Done        bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	CompletedAt *time.Time
}

type Sort string

const (
	SortCreatedAtAsc  Sort = "createdAt_asc"
	SortCreatedAtDesc Sort = "createdAt_desc"
)

// ParseSort maps the wire value onto the closed sort enum, defaulting to
// ascending creation time.
func ParseSort(s string) Sort {
	if s == string(SortCreatedAtDesc) {
		return SortCreatedAtDesc
	}
	return SortCreatedAtAsc
}

type ListQuery struct {
	UserID uuid.UUID
	Search string
	Sort   Sort
	Skip   int
	Take   int
}

// Reader answers point and list queries from materialized_todos. It never
// writes; replication into that table is owned by the database.
type Reader struct {
	pool *db.Pool
}

func NewReader(pool *db.Pool) *Reader {
	return &Reader{pool: pool}
}

func (r *Reader) GetByID(ctx context.Context, id uuid.UUID) (TodoView, bool, error) {
	var v TodoView
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, description, done, created_at, updated_at, completed_at
		FROM materialized_todos
		WHERE id = $1
	`, id).Scan(&v.ID, &v.UserID, &v.Title, &v.Description, &v.Done, &v.CreatedAt, &v.UpdatedAt, &v.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TodoView{}, false, nil
	}
	if err != nil {
		return TodoView{}, false, err
	}
	return v, true, nil
}

func (r *Reader) List(ctx context.Context, q ListQuery) ([]TodoView, error) {
	sql, args := buildListQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []TodoView
	for rows.Next() {
		var v TodoView
		if err := rows.Scan(&v.ID, &v.UserID, &v.Title, &v.Description, &v.Done, &v.CreatedAt, &v.UpdatedAt, &v.CompletedAt); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return views, nil
}

func buildListQuery(q ListQuery) (string, []any) {
	args := []any{q.UserID}
	where := "WHERE user_id = $1"
	if q.Search != "" {
		args = append(args, q.Search)
		where += " AND (title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')"
	}

	order := "ORDER BY created_at ASC"
	if q.Sort == SortCreatedAtDesc {
		order = "ORDER BY created_at DESC"
	}

	skip := q.Skip
	if skip < 0 {
		skip = 0
	}
	take := q.Take
	if take <= 0 {
		take = 20
	}

	sql := fmt.Sprintf(`
		SELECT id, user_id, title, description, done, created_at, updated_at, completed_at
		FROM materialized_todos
		%s
		%s
		OFFSET $%d LIMIT $%d`, where, order, len(args)+1, len(args)+2)
	args = append(args, skip, take)

	return sql, args
}
