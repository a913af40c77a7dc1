package chat

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/middleware"
	"github.com/zavolah/marketplace/internal/relay"
)

// Handler serves /chat.
type Handler struct {
	svc    *Service
	server *relay.Server
	logger *logging.Logger
}

// NewHandler creates a chat handler. server may be nil to disable the
// WebSocket endpoint.
func NewHandler(svc *Service, server *relay.Server, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault("chat")
	}
	return &Handler{svc: svc, server: server, logger: logger}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/chat").Subrouter()
	if h.server != nil {
		s.HandleFunc("/ws/{user_id}", h.wrap(h.handleWebSocket)).Methods(http.MethodGet)
	}

	s.HandleFunc("/rooms", h.wrap(h.handleListRooms)).Methods(http.MethodGet)
	s.HandleFunc("/rooms", h.wrap(h.handleCreateRoom)).Methods(http.MethodPost)
	s.HandleFunc("/rooms/{id}", h.wrap(h.handleGetRoom)).Methods(http.MethodGet)
	s.HandleFunc("/rooms/{id}", h.wrap(h.handleDeleteRoom)).Methods(http.MethodDelete)
	s.HandleFunc("/rooms/{id}/messages", h.wrap(h.handleRoomMessages)).Methods(http.MethodGet)
	s.HandleFunc("/rooms/{id}/participants", h.wrap(h.handleParticipants)).Methods(http.MethodGet)
	s.HandleFunc("/rooms/{id}/participants", h.wrap(h.handleAddParticipant)).Methods(http.MethodPost)
	s.HandleFunc("/rooms/{id}/participants/{user_id}", h.wrap(h.handleRemoveParticipant)).Methods(http.MethodDelete)

	s.HandleFunc("/messages", h.wrap(h.handleSendMessage)).Methods(http.MethodPost)
	s.HandleFunc("/messages/{id}", h.wrap(h.handleGetMessage)).Methods(http.MethodGet)
	s.HandleFunc("/messages/{id}", h.wrap(h.handleUpdateMessage)).Methods(http.MethodPut)
	s.HandleFunc("/messages/{id}", h.wrap(h.handleDeleteMessage)).Methods(http.MethodDelete)
	s.HandleFunc("/messages/{id}/read", h.wrap(h.handleMarkRead)).Methods(http.MethodPut)

	s.HandleFunc("/user/{user_id}/unread-count", h.wrap(h.handleUnreadCount)).Methods(http.MethodGet)
	s.HandleFunc("/search", h.wrap(h.handleSearch)).Methods(http.MethodGet)
}

func (h *Handler) wrap(fn httputil.HandlerFunc) http.HandlerFunc {
	return httputil.Handle(h.logger, fn)
}

// handleWebSocket opens a relay session for the path user. An authenticated
// caller may only open its own session.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) error {
	userID := httputil.PathParam(r, "user_id")
	if caller := middleware.GetUserID(r.Context()); caller != "" && caller != userID {
		h.logger.LogSecurityEvent(r.Context(), "chat_session_user_mismatch", map[string]interface{}{
			"caller":    caller,
			"requested": userID,
		})
		return errors.Forbidden("cannot open a chat session for another user")
	}
	h.server.Serve(w, r, userID)
	return nil
}

// =============================================================================
// Rooms
// =============================================================================

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	roomType := httputil.Query(r, "type")
	if roomType == "" {
		roomType = httputil.Query(r, "room_type")
	}
	rooms, err := h.svc.repo.ListRooms(r.Context(), httputil.Query(r, "user_id"), roomType, page)
	if err != nil {
		return errors.Upstream("list rooms", err)
	}
	httputil.WriteJSON(w, http.StatusOK, rooms)
	return nil
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) error {
	room, err := h.svc.repo.GetRoom(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("room", "get room", err)
	}
	httputil.WriteJSON(w, http.StatusOK, room)
	return nil
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) error {
	var in RoomInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	room, err := h.svc.repo.CreateRoom(r.Context(), &in)
	if err != nil {
		return errors.Upstream("create room", err)
	}
	httputil.WriteJSON(w, http.StatusOK, room)
	return nil
}

func (h *Handler) handleDeleteRoom(w http.ResponseWriter, r *http.Request) error {
	if err := h.svc.repo.DeleteRoom(r.Context(), httputil.PathParam(r, "id")); err != nil {
		return errors.FromStore("room", "delete room", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Room deleted successfully"})
	return nil
}

func (h *Handler) handleRoomMessages(w http.ResponseWriter, r *http.Request) error {
	page, err := httputil.Pagination(r, httputil.DefaultLimit)
	if err != nil {
		return err
	}
	msgs, err := h.svc.repo.RoomMessages(r.Context(), httputil.PathParam(r, "id"), page)
	if err != nil {
		return errors.Upstream("list room messages", err)
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
	return nil
}

// =============================================================================
// Participants
// =============================================================================

func (h *Handler) handleParticipants(w http.ResponseWriter, r *http.Request) error {
	ps, err := h.svc.repo.Participants(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.Upstream("list participants", err)
	}
	httputil.WriteJSON(w, http.StatusOK, ps)
	return nil
}

func (h *Handler) handleAddParticipant(w http.ResponseWriter, r *http.Request) error {
	userID, err := httputil.RequiredQuery(r, "user_id")
	if err != nil {
		return err
	}
	role := httputil.Query(r, "role")
	if role == "" {
		role = RoleMember
	}
	if !roles[role] {
		return errors.Validationf("role must be %s or %s", RoleAdmin, RoleMember)
	}

	if _, err := h.svc.repo.AddParticipant(r.Context(), httputil.PathParam(r, "id"), userID, role); err != nil {
		return errors.Upstream("add participant", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Participant added successfully"})
	return nil
}

func (h *Handler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) error {
	err := h.svc.repo.RemoveParticipant(r.Context(), httputil.PathParam(r, "id"), httputil.PathParam(r, "user_id"))
	if err != nil {
		return errors.FromStore("participant", "remove participant", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Participant removed successfully"})
	return nil
}

// =============================================================================
// Messages
// =============================================================================

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) error {
	var in MessageInput
	if err := httputil.Decode(r, &in); err != nil {
		return err
	}
	if msg := in.validate(); msg != "" {
		return errors.Validation(msg)
	}

	msg, err := h.svc.Send(r.Context(), in)
	if err != nil {
		return errors.Upstream("send message", err)
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
	return nil
}

func (h *Handler) handleGetMessage(w http.ResponseWriter, r *http.Request) error {
	msg, err := h.svc.repo.GetMessage(r.Context(), httputil.PathParam(r, "id"))
	if err != nil {
		return errors.FromStore("message", "get message", err)
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
	return nil
}

func (h *Handler) handleUpdateMessage(w http.ResponseWriter, r *http.Request) error {
	content, err := httputil.RequiredQuery(r, "content")
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.Validation("content must not be blank")
	}
	if _, err := h.svc.repo.UpdateMessage(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"content": content}); err != nil {
		return errors.FromStore("message", "update message", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Message updated successfully"})
	return nil
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) error {
	if err := h.svc.repo.DeleteMessage(r.Context(), httputil.PathParam(r, "id")); err != nil {
		return errors.FromStore("message", "delete message", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
	return nil
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.svc.repo.UpdateMessage(r.Context(), httputil.PathParam(r, "id"), map[string]interface{}{"is_read": true}); err != nil {
		return errors.FromStore("message", "mark message read", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Message marked as read"})
	return nil
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) error {
	n, err := h.svc.repo.UnreadCount(r.Context(), httputil.PathParam(r, "user_id"))
	if err != nil {
		return errors.Upstream("unread count", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": n})
	return nil
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) error {
	text, err := httputil.RequiredQuery(r, "query")
	if err != nil {
		return err
	}
	limit, err := httputil.QueryInt(r, "limit", httputil.DefaultLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return errors.Validation("limit must be positive")
	}

	msgs, err := h.svc.repo.Search(r.Context(), SearchQuery{
		Text:   text,
		RoomID: httputil.Query(r, "room_id"),
		UserID: httputil.Query(r, "user_id"),
		Limit:  limit,
	})
	if err != nil {
		return errors.Upstream("search messages", err)
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
	return nil
}
