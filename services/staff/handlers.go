package staff

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
)

// Handler serves /staff.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a staff handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("staff")
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the staff routes on r. Fixed segments are registered
// ahead of /{id} so they are not captured as member ids.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/staff").Subrouter()

	s.HandleFunc("/tasks", h.wrap(h.handleListTasks)).Methods(http.MethodGet)
	s.HandleFunc("/tasks", h.wrap(h.handleCreateTask)).Methods(http.MethodPost)
	s.HandleFunc("/tasks/{id}", h.wrap(h.handleGetTask)).Methods(http.MethodGet)
	s.HandleFunc("/tasks/{id}", h.wrap(h.handleUpdateTask)).Methods(http.MethodPut)
	s.HandleFunc("/tasks/{id}", h.wrap(h.handleDeleteTask)).Methods(http.MethodDelete)
	s.HandleFunc("/departments", h.wrap(h.distinct("department", "departments"))).Methods(http.MethodGet)
	s.HandleFunc("/positions", h.wrap(h.distinct("position", "positions"))).Methods(http.MethodGet)

	s.HandleFunc("", h.wrap(h.handleListMembers)).Methods(http.MethodGet)
	s.HandleFunc("", h.wrap(h.handleCreateMember)).Methods(http.MethodPost)
	s.HandleFunc("/{id}", h.wrap(h.handleGetMember)).Methods(http.MethodGet)
	s.HandleFunc("/{id}", h.wrap(h.handleUpdateMember)).Methods(http.MethodPut)
	s.HandleFunc("/{id}", h.wrap(h.handleDeactivateMember)).Methods(http.MethodDelete)
	s.HandleFunc("/{id}/tasks", h.wrap(h.handleMemberTasks)).Methods(http.MethodGet)
	s.HandleFunc("/{id}/performance", h.wrap(h.handlePerformance)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// =============================================================================
// Members
// =============================================================================

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	f := MemberFilter{Department: httputil.Query(r, "department"), Position: httputil.Query(r, "position")}
	if f.IsActive, err = httputil.QueryBool(r, "is_active"); err != nil {
		return err
	}

	members, err := h.repo.ListMembers(r.Context(), f, page)
	if err != nil {
		return errors.Upstream("list staff", err)
	}
	httputil.WriteJSON(w, http.StatusOK, members)
	return nil
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) error {
	m, err := h.repo.GetMember(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("staff member", "get staff member", err)
	}
	httputil.WriteJSON(w, http.StatusOK, m)
	return nil
}

func (h *Handler) handleCreateMember(w http.ResponseWriter, r *http.Request) error {
	var in MemberInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	m, err := h.repo.CreateMember(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create staff member", err)
	}
	httputil.WriteJSON(w, http.StatusOK, m)
	return nil
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) error {
	var in MemberUpdate
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	changes, msg := in.changes()
	if msg != "" {
		return errors.Validation(msg)
	}
	if len(changes) == 0 {
		return errors.Validation("no fields to update")
	}

	m, err := h.repo.UpdateMember(r.Context(), httputil.PathParam(r, "id"), changes)
	if err != nil {
		return errors.FromStore("staff member", "update staff member", err)
	}
	httputil.WriteJSON(w, http.StatusOK, m)
	return nil
}

func (h *Handler) handleDeactivateMember(w http.ResponseWriter, r *http.Request) error {
	_, err := h.repo.UpdateMember(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"is_active": false})
	if err != nil {
		return errors.FromStore("staff member", "deactivate staff member", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Staff member deactivated successfully"})
	return nil
}

func (h *Handler) distinct(column, key string) httputil.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		values, err := h.repo.DistinctMemberValues(r.Context(), column)
		if err != nil {
			return errors.Upstream("list staff "+key, err)
		}
		httputil.WriteJSON(w, http.StatusOK, map[string][]string{key: values})
		return nil
	}
}

// =============================================================================
// Tasks
// =============================================================================

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	tasks, err := h.repo.ListTasks(r.Context(), TaskFilter{
		AssignedTo: httputil.Query(r, "assigned_to"),
		AssignedBy: httputil.Query(r, "assigned_by"),
		Status:     httputil.Query(r, "status"),
		Priority:   httputil.Query(r, "priority"),
		Category:   httputil.Query(r, "category"),
	}, page)
	if err != nil {
		return errors.Upstream("list tasks", err)
	}
	httputil.WriteJSON(w, http.StatusOK, tasks)
	return nil
}

func (h *Handler) handleMemberTasks(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	tasks, err := h.repo.ListTasks(r.Context(), TaskFilter{AssignedTo: httputil.PathParam(r, "id")}, page)
	if err != nil {
		return errors.Upstream("list staff tasks", err)
	}
	httputil.WriteJSON(w, http.StatusOK, tasks)
	return nil
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) error {
	t, err := h.repo.GetTask(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("task", "get task", err)
	}
	httputil.WriteJSON(w, http.StatusOK, t)
	return nil
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) error {
	var in TaskInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	t, err := h.repo.CreateTask(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create task", err)
	}
	httputil.WriteJSON(w, http.StatusOK, t)
	return nil
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) error {
	var in TaskUpdate
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	changes, msg := in.changes()
	if msg != "" {
		return errors.Validation(msg)
	}
	if len(changes) == 0 {
		return errors.Validation("no fields to update")
	}

	t, err := h.repo.UpdateTask(r.Context(), httputil.PathParam(r, "id"), changes)
	if err != nil {
		return errors.FromStore("task", "update task", err)
	}
	httputil.WriteJSON(w, http.StatusOK, t)
	return nil
}

func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) error {
	if err := h.repo.DeleteTask(r.Context(), httputil.PathParam(r, "id")); err != nil {
		return errors.FromStore("task", "delete task", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
	return nil
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) error {
	tasks, err := h.repo.AllTasksFor(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.Upstream("load staff tasks", err)
	}
	httputil.WriteJSON(w, http.StatusOK, Summarize(tasks))
	return nil
}
