package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solutions/todolist/services/todo-service/internal/cache"
	"github.com/solutions/todolist/services/todo-service/internal/model"
	"github.com/solutions/todolist/services/todo-service/internal/read"
	"github.com/solutions/todolist/services/todo-service/internal/storage"
)

const (
	defaultTake = 20
	maxTake     = 100
)

type TodoHandler struct {
	repo   *storage.TodoRepository
	cache  *cache.Service
	logger *slog.Logger
}

func NewTodoHandler(repo *storage.TodoRepository, cacheSvc *cache.Service, logger *slog.Logger) *TodoHandler {
	return &TodoHandler{repo: repo, cache: cacheSvc, logger: logger}
}

type createTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type markDoneRequest struct {
	Done bool `json:"done"`
}

type todoResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type listResponse struct {
	Items []todoResponse `json:"items"`
	Skip  int            `json:"skip"`
	Take  int            `json:"take"`
}

func todoToResponse(t *model.Todo) todoResponse {
	return todoResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Done:        t.Done,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func viewToResponse(v read.TodoView) todoResponse {
	return todoResponse{
		ID:          v.ID.String(),
		Title:       v.Title,
		Description: v.Description,
		Done:        v.Done,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
		CompletedAt: v.CompletedAt,
	}
}

// Collection serves /api/v1/todos: POST creates, GET lists.
func (h *TodoHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item serves /api/v1/todos/{id} and /api/v1/todos/{id}/done.
func (h *TodoHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/todos/")

	if idPart, found := strings.CutSuffix(rest, "/done"); found {
		id, err := uuid.Parse(idPart)
		if err != nil {
			http.Error(w, "invalid todo id", http.StatusBadRequest)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.markDone(w, r, id)
		return
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		http.Error(w, "invalid todo id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TodoHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}

	todo := model.NewTodo(userID, req.Title, strings.TrimSpace(req.Description))
	if err := h.repo.Save(r.Context(), todo); err != nil {
		h.logger.Error("todo create failed", "err", err)
		http.Error(w, "failed to create todo", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, todoToResponse(todo))
}

func (h *TodoHandler) get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	view, found, err := h.cache.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("todo read failed", "todo_id", id, "err", err)
		http.Error(w, "failed to read todo", http.StatusInternalServerError)
		return
	}
	// Ownership is checked on the snapshot: a foreign todo is as good as
	// absent.
	if !found || view.UserID != userID {
		http.Error(w, "todo not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, viewToResponse(view))
}

func (h *TodoHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := read.ListQuery{
		UserID: userID,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Sort:   read.ParseSort(r.URL.Query().Get("sort")),
		Skip:   parseIntParam(r, "skip", 0),
		Take:   parseIntParam(r, "take", defaultTake),
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Take <= 0 {
		q.Take = defaultTake
	}
	if q.Take > maxTake {
		q.Take = maxTake
	}

	views, err := h.cache.List(r.Context(), q)
	if err != nil {
		h.logger.Error("todo list failed", "err", err)
		http.Error(w, "failed to list todos", http.StatusInternalServerError)
		return
	}

	items := make([]todoResponse, 0, len(views))
	for _, v := range views {
		items = append(items, viewToResponse(v))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Skip: q.Skip, Take: q.Take})
}

func (h *TodoHandler) update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}

	todo, err := h.repo.GetByIDForUser(r.Context(), id, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "todo not found", http.StatusNotFound)
			return
		}
		h.logger.Error("todo load failed", "todo_id", id, "err", err)
		http.Error(w, "failed to update todo", http.StatusInternalServerError)
		return
	}

	todo.Update(req.Title, strings.TrimSpace(req.Description))
	if err := h.repo.Save(r.Context(), todo); err != nil {
		h.logger.Error("todo update failed", "todo_id", id, "err", err)
		http.Error(w, "failed to update todo", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, todoToResponse(todo))
}

func (h *TodoHandler) markDone(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req markDoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	todo, err := h.repo.GetByIDForUser(r.Context(), id, userID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "todo not found", http.StatusNotFound)
			return
		}
		h.logger.Error("todo load failed", "todo_id", id, "err", err)
		http.Error(w, "failed to update todo", http.StatusInternalServerError)
		return
	}

	if req.Done {
		todo.MarkDone()
	} else {
		todo.Reopen()
	}
	if err := h.repo.Save(r.Context(), todo); err != nil {
		h.logger.Error("todo mark done failed", "todo_id", id, "err", err)
		http.Error(w, "failed to update todo", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, todoToResponse(todo))
}

func (h *TodoHandler) delete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.repo.Delete(r.Context(), id, userID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "todo not found", http.StatusNotFound)
			return
		}
		h.logger.Error("todo delete failed", "todo_id", id, "err", err)
		http.Error(w, "failed to delete todo", http.StatusInternalServerError)
		return
	}

	// Deletion emits no notification; evict the hot entry here so a read
	// cannot resurrect the deleted row from cache.
	_ = h.cache.Invalidate(r.Context(), id)

	w.WriteHeader(http.StatusNoContent)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
