package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solutions/todolist/services/todo-service/internal/model"
)

// Entry is one durable change notification. A row exists if and only if
// the aggregate mutation that produced it committed; the repository writes
// both in the same transaction.
type Entry struct {
	ID          uuid.UUID
	Kind        string
	Payload     []byte
	OccurredAt  time.Time
	Processed   bool
	ProcessedAt *time.Time
	Traceparent string
	Tracestate  string
}

type payload struct {
	TodoID uuid.UUID `json:"todo_id"`
}

func encodePayload(n model.ChangeNotification) ([]byte, error) {
	return json.Marshal(payload{TodoID: n.TodoID})
}

// SubjectID decodes the todo the entry is about.
func (e Entry) SubjectID() (uuid.UUID, error) {
	var p payload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return uuid.Nil, fmt.Errorf("outbox entry %s: bad payload: %w", e.ID, err)
	}
	if p.TodoID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("outbox entry %s: payload missing todo_id", e.ID)
	}
	return p.TodoID, nil
}
