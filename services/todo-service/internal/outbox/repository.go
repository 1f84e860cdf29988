package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solutions/todolist/libs/db"
	otelx "github.com/solutions/todolist/libs/otel"
	"github.com/solutions/todolist/services/todo-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry for the notification inside the caller's
// transaction. The caller owns commit and rollback; that is what makes the
// state write and the outbox row atomic.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n model.ChangeNotification) error {
	body, err := encodePayload(n)
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_entries (id, kind, payload, occurred_at, processed, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, false, $5, $6)
	`, uuid.New(), string(n.Kind), body, n.OccurredAt, traceparent, tracestate)
	return err
}

// FetchUnprocessed returns up to limit pending entries, oldest first, so
// the oldest notification bounds cache staleness. No locking: the
// dispatcher runs as a single instance.
func (r *Repository) FetchUnprocessed(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, payload, occurred_at, processed, processed_at, traceparent, tracestate
		FROM outbox_entries
		WHERE NOT processed
		ORDER BY occurred_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.OccurredAt, &e.Processed, &e.ProcessedAt, &e.Traceparent, &e.Tracestate); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// MarkProcessed is idempotent: marking an already-processed entry changes
// nothing and is not an error.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET processed = true, processed_at = $2
		WHERE id = $1 AND NOT processed
	`, id, time.Now().UTC())
	return err
}
