package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/solutions/todolist/services/todo-service/internal/model"
)

// fakeTx records the statements run inside the transaction and whether it
// ended in commit or rollback.
type fakeTx struct {
	execs      []string
	execErr    func(sql string) error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }

func (t *fakeTx) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if t.execErr != nil {
		if err := t.execErr(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported in fake")
}

func (t *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return errRow{} }

func (t *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported in fake")
}

func (t *fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported in fake")
}

func (t *fakeTx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(_ ...any) error { return errors.New("not supported in fake") }

// fakeDB satisfies Store for the Save path; reads are not exercised here.
type fakeDB struct {
	tx *fakeTx
}

func (f *fakeDB) Begin(_ context.Context) (pgx.Tx, error) { return f.tx, nil }

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported in fake")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row { return errRow{} }

func (f *fakeDB) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported in fake")
}

// txOutbox writes through the transaction like the real repository, so a
// failing tx fails the insert.
type txOutbox struct{}

func (txOutbox) Insert(ctx context.Context, tx pgx.Tx, n model.ChangeNotification) error {
	_, err := tx.Exec(ctx, "INSERT INTO outbox_entries", string(n.Kind), n.TodoID)
	return err
}

func TestSaveCommitsStateAndOutboxTogether(t *testing.T) {
	tx := &fakeTx{}
	repo := NewTodoRepository(&fakeDB{tx: tx}, txOutbox{})

	todo := model.NewTodo(uuid.New(), "a", "b")
	todo.MarkDone()

	if err := repo.Save(context.Background(), todo); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !tx.committed {
		t.Fatal("expected commit")
	}
	if tx.rolledBack {
		t.Fatal("unexpected rollback")
	}

	var stateWrites, outboxWrites int
	for _, sql := range tx.execs {
		switch {
		case strings.Contains(sql, "INSERT INTO todos"):
			stateWrites++
		case strings.Contains(sql, "INSERT INTO outbox_entries"):
			outboxWrites++
		}
	}
	if stateWrites != 1 || outboxWrites != 1 {
		t.Fatalf("expected 1 state write and 1 outbox write, got %d/%d", stateWrites, outboxWrites)
	}
	if len(todo.PendingNotifications()) != 0 {
		t.Fatal("buffer must be cleared after a successful commit")
	}
}

func TestSaveRollsBackWhenOutboxInsertFails(t *testing.T) {
	tx := &fakeTx{
		execErr: func(sql string) error {
			if strings.Contains(sql, "outbox_entries") {
				return errors.New("disk full")
			}
			return nil
		},
	}
	repo := NewTodoRepository(&fakeDB{tx: tx}, txOutbox{})

	todo := model.NewTodo(uuid.New(), "a", "b")
	todo.Update("a2", "b2")

	if err := repo.Save(context.Background(), todo); err == nil {
		t.Fatal("expected save to fail")
	}
	if tx.committed {
		t.Fatal("state write must not survive a failed outbox insert")
	}
	if !tx.rolledBack {
		t.Fatal("expected rollback")
	}
	if len(todo.PendingNotifications()) != 1 {
		t.Fatal("buffer must survive a failed commit for retry")
	}
}

func TestSaveRetainsBufferWhenCommitFails(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	repo := NewTodoRepository(&fakeDB{tx: tx}, txOutbox{})

	todo := model.NewTodo(uuid.New(), "a", "b")
	todo.MarkDone()

	if err := repo.Save(context.Background(), todo); err == nil {
		t.Fatal("expected save to fail")
	}
	if len(todo.PendingNotifications()) != 1 {
		t.Fatal("buffer must survive a failed commit")
	}
}

func TestSaveAllWritesEveryNotification(t *testing.T) {
	tx := &fakeTx{}
	repo := NewTodoRepository(&fakeDB{tx: tx}, txOutbox{})

	userID := uuid.New()
	first := model.NewTodo(userID, "a", "")
	second := model.NewTodo(userID, "b", "")
	first.MarkDone()
	second.MarkDone()
	second.Update("b2", "")

	if err := repo.SaveAll(context.Background(), []*model.Todo{first, second}); err != nil {
		t.Fatalf("save all failed: %v", err)
	}

	var outboxWrites int
	for _, sql := range tx.execs {
		if strings.Contains(sql, "outbox_entries") {
			outboxWrites++
		}
	}
	if outboxWrites != 3 {
		t.Fatalf("expected 3 outbox writes, got %d", outboxWrites)
	}
	if len(first.PendingNotifications()) != 0 || len(second.PendingNotifications()) != 0 {
		t.Fatal("all buffers must be cleared after commit")
	}
}

func TestSaveCreateProducesNoOutboxRows(t *testing.T) {
	tx := &fakeTx{}
	repo := NewTodoRepository(&fakeDB{tx: tx}, txOutbox{})

	// Creation alone buffers nothing, so commit writes only state.
	todo := model.NewTodo(uuid.New(), "fresh", "")
	if err := repo.Save(context.Background(), todo); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	for _, sql := range tx.execs {
		if strings.Contains(sql, "outbox_entries") {
			t.Fatal("creation must not produce outbox rows")
		}
	}
}
