package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/solutions/todolist/services/todo-service/internal/model"
)

type batchCreateRequest struct {
	Items []createTodoRequest `json:"items"`
}

type batchIDsRequest struct {
	IDs []string `json:"ids"`
}

type batchDeleteResponse struct {
	Deleted []string `json:"deleted"`
}

// BatchCreate serves POST /api/v1/todos/batch. All todos are persisted in a
// single transaction.
func (h *TodoHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items required", http.StatusBadRequest)
		return
	}

	todos := make([]*model.Todo, 0, len(req.Items))
	for _, item := range req.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			http.Error(w, "title required for every item", http.StatusBadRequest)
			return
		}
		todos = append(todos, model.NewTodo(userID, title, strings.TrimSpace(item.Description)))
	}

	if err := h.repo.SaveAll(r.Context(), todos); err != nil {
		h.logger.Error("batch create failed", "count", len(todos), "err", err)
		http.Error(w, "failed to create todos", http.StatusInternalServerError)
		return
	}

	items := make([]todoResponse, 0, len(todos))
	for _, t := range todos {
		items = append(items, todoToResponse(t))
	}
	writeJSON(w, http.StatusCreated, listResponse{Items: items, Take: len(items)})
}

// BatchMarkDone serves POST /api/v1/todos/batch/done. State changes and their
// outbox rows commit in one transaction; already-done todos are left alone.
func (h *TodoHandler) BatchMarkDone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ids, httpErr := parseBatchIDs(w, r)
	if httpErr {
		return
	}

	todos, err := h.repo.GetAllForUser(r.Context(), ids, userID)
	if err != nil {
		h.logger.Error("batch load failed", "count", len(ids), "err", err)
		http.Error(w, "failed to update todos", http.StatusInternalServerError)
		return
	}
	if len(todos) != len(ids) {
		http.Error(w, "one or more todos not found", http.StatusNotFound)
		return
	}

	for _, t := range todos {
		t.MarkDone()
	}
	if err := h.repo.SaveAll(r.Context(), todos); err != nil {
		h.logger.Error("batch mark done failed", "count", len(todos), "err", err)
		http.Error(w, "failed to update todos", http.StatusInternalServerError)
		return
	}

	items := make([]todoResponse, 0, len(todos))
	for _, t := range todos {
		items = append(items, todoToResponse(t))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Take: len(items)})
}

// BatchDelete serves POST /api/v1/todos/batch/delete. Hot entries for the
// deleted rows are evicted directly since deletion emits no notification.
func (h *TodoHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ids, httpErr := parseBatchIDs(w, r)
	if httpErr {
		return
	}

	deleted, err := h.repo.DeleteAll(r.Context(), ids, userID)
	if err != nil {
		h.logger.Error("batch delete failed", "count", len(ids), "err", err)
		http.Error(w, "failed to delete todos", http.StatusInternalServerError)
		return
	}

	_ = h.cache.InvalidateMany(r.Context(), deleted)

	out := make([]string, 0, len(deleted))
	for _, id := range deleted {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, batchDeleteResponse{Deleted: out})
}

func parseBatchIDs(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	var req batchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return nil, true
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids required", http.StatusBadRequest)
		return nil, true
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid todo id: "+raw, http.StatusBadRequest)
			return nil, true
		}
		ids = append(ids, id)
	}
	return ids, false
}
