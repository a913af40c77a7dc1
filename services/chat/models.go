// Package chat serves chat rooms, their participants and messages, and binds
// the WebSocket relay to message persistence.
package chat

import "strings"

const (
	roomsTable        = "chat_rooms"
	participantsTable = "chat_participants"
	messagesTable     = "messages"
)

// Participant roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// DefaultMessageType applies when a message does not name one.
const DefaultMessageType = "text"

var roles = map[string]bool{RoleAdmin: true, RoleMember: true}

// Room is a row of chat_rooms.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RoomInput is the body of POST /chat/rooms.
type RoomInput struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
	CreatedBy    string   `json:"created_by"`
}

func (in *RoomInput) validate() string {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "name is required"
	case strings.TrimSpace(in.Type) == "":
		return "type is required"
	case strings.TrimSpace(in.CreatedBy) == "":
		return "created_by is required"
	}
	return ""
}

// members returns the participant list with the creator included exactly
// once and duplicates dropped, in request order.
func (in *RoomInput) members() []string {
	seen := make(map[string]bool, len(in.Participants)+1)
	out := make([]string, 0, len(in.Participants)+1)
	for _, id := range append([]string{in.CreatedBy}, in.Participants...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Participant is a row of chat_participants.
type Participant struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// Message is a row of messages.
type Message struct {
	ID          string        `json:"id"`
	RoomID      string        `json:"room_id"`
	SenderID    string        `json:"sender_id"`
	MessageType string        `json:"message_type"`
	Content     string        `json:"content"`
	Attachments []interface{} `json:"attachments"`
	IsRead      bool          `json:"is_read"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

// MessageInput is the body of POST /chat/messages.
type MessageInput struct {
	RoomID      string        `json:"room_id"`
	SenderID    string        `json:"sender_id"`
	MessageType string        `json:"message_type"`
	Content     string        `json:"content"`
	Attachments []interface{} `json:"attachments"`
}

func (in *MessageInput) validate() string {
	switch {
	case strings.TrimSpace(in.RoomID) == "":
		return "room_id is required"
	case strings.TrimSpace(in.SenderID) == "":
		return "sender_id is required"
	case strings.TrimSpace(in.Content) == "":
		return "content is required"
	}
	return ""
}

func (in *MessageInput) withDefaults() MessageInput {
	out := *in
	if out.MessageType == "" {
		out.MessageType = DefaultMessageType
	}
	if out.Attachments == nil {
		out.Attachments = []interface{}{}
	}
	return out
}

// SearchQuery narrows GET /chat/search.
type SearchQuery struct {
	Text   string
	RoomID string
	UserID string
	Limit  int
}
