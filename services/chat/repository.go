package chat

import (
	"context"
	"fmt"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/httputil"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/relay"
	"github.com/zavolah/marketplace/internal/saga"
)

// Repository is the chat data access surface.
type Repository interface {
	relay.MemberSource

	ListRooms(ctx context.Context, userID, roomType string, page httputil.Page) ([]Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	CreateRoom(ctx context.Context, in *RoomInput) (*Room, error)
	DeleteRoom(ctx context.Context, id string) error

	RoomMessages(ctx context.Context, roomID string, page httputil.Page) ([]Message, error)
	CreateMessage(ctx context.Context, in MessageInput) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessage(ctx context.Context, id string, changes map[string]interface{}) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	Search(ctx context.Context, q SearchQuery) ([]Message, error)
	UnreadCount(ctx context.Context, userID string) (int, error)

	Participants(ctx context.Context, roomID string) ([]Participant, error)
	AddParticipant(ctx context.Context, roomID, userID, role string) (*Participant, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) error
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository stores chat state in the hosted store.
type SupabaseRepository struct {
	client   *supabase.Client
	recorder saga.Recorder
	logger   *logging.Logger
}

// Option configures a SupabaseRepository.
type Option func(*SupabaseRepository)

// WithSagaRecorder counts saga compensations.
func WithSagaRecorder(rec saga.Recorder) Option {
	return func(r *SupabaseRepository) { r.recorder = rec }
}

// WithLogger sets the repository logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *SupabaseRepository) { r.logger = l }
}

// NewSupabaseRepository creates a repository over client.
func NewSupabaseRepository(client *supabase.Client, opts ...Option) *SupabaseRepository {
	r := &SupabaseRepository{client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewDefault("chat")
	}
	return r
}

// =============================================================================
// Rooms
// =============================================================================

// RoomMembers lists the user ids participating in roomID.
func (r *SupabaseRepository) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	return supabase.Distinct(ctx, r.client.From(participantsTable).Eq("room_id", roomID), "user_id")
}

func (r *SupabaseRepository) roomsOf(ctx context.Context, userID string) ([]string, error) {
	return supabase.Distinct(ctx, r.client.From(participantsTable).Eq("user_id", userID), "room_id")
}

func (r *SupabaseRepository) ListRooms(ctx context.Context, userID, roomType string, page httputil.Page) ([]Room, error) {
	q := r.client.From(roomsTable).Select("*")
	if userID != "" {
		ids, err := r.roomsOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []Room{}, nil
		}
		q = q.In("id", ids)
	}
	if roomType != "" {
		q = q.Eq("type", roomType)
	}
	return supabase.List[Room](ctx, q.Order("created_at", supabase.OrderDesc).Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) GetRoom(ctx context.Context, id string) (*Room, error) {
	return supabase.One[Room](ctx, r.client.From(roomsTable).Select("*").Eq("id", id))
}

// CreateRoom inserts the room and its participants. The creator joins as
// admin; a failed participant insert removes the room again.
func (r *SupabaseRepository) CreateRoom(ctx context.Context, in *RoomInput) (*Room, error) {
	var room *Room
	run := saga.New("create_room", r.logger, r.recorder).
		Step("insert_room", func(ctx context.Context) error {
			created, err := supabase.First[Room](ctx, r.client.From(roomsTable).Insert(map[string]interface{}{
				"name":       in.Name,
				"type":       in.Type,
				"created_by": in.CreatedBy,
			}))
			if err != nil {
				return err
			}
			room = created
			return nil
		}, func(ctx context.Context) error {
			_, err := r.client.From(roomsTable).Delete().Eq("id", room.ID).Execute(ctx)
			return err
		}).
		Step("insert_participants", func(ctx context.Context) error {
			members := in.members()
			rows := make([]map[string]interface{}, 0, len(members))
			for _, userID := range members {
				role := RoleMember
				if userID == in.CreatedBy {
					role = RoleAdmin
				}
				rows = append(rows, map[string]interface{}{"room_id": room.ID, "user_id": userID, "role": role})
			}
			_, err := r.client.From(participantsTable).Insert(rows).Execute(ctx)
			return err
		}, nil)

	if err := run.Run(ctx); err != nil {
		return nil, err
	}
	return room, nil
}

// DeleteRoom removes the room's participants, then its messages, then the
// room itself.
func (r *SupabaseRepository) DeleteRoom(ctx context.Context, id string) error {
	if _, err := r.GetRoom(ctx, id); err != nil {
		return err
	}
	if _, err := r.client.From(participantsTable).Delete().Eq("room_id", id).Execute(ctx); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	if _, err := r.client.From(messagesTable).Delete().Eq("room_id", id).Execute(ctx); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	_, err := supabase.First[Room](ctx, r.client.From(roomsTable).Delete().Eq("id", id))
	return err
}

// =============================================================================
// Messages
// =============================================================================

func (r *SupabaseRepository) RoomMessages(ctx context.Context, roomID string, page httputil.Page) ([]Message, error) {
	return supabase.List[Message](ctx, r.client.From(messagesTable).Select("*").
		Eq("room_id", roomID).
		Order("created_at", supabase.OrderDesc).
		Page(page.Limit, page.Offset))
}

func (r *SupabaseRepository) CreateMessage(ctx context.Context, in MessageInput) (*Message, error) {
	in = in.withDefaults()
	return supabase.First[Message](ctx, r.client.From(messagesTable).Insert(map[string]interface{}{
		"room_id":      in.RoomID,
		"sender_id":    in.SenderID,
		"message_type": in.MessageType,
		"content":      in.Content,
		"attachments":  in.Attachments,
		"is_read":      false,
	}))
}

func (r *SupabaseRepository) GetMessage(ctx context.Context, id string) (*Message, error) {
	return supabase.One[Message](ctx, r.client.From(messagesTable).Select("*").Eq("id", id))
}

func (r *SupabaseRepository) UpdateMessage(ctx context.Context, id string, changes map[string]interface{}) (*Message, error) {
	return supabase.First[Message](ctx, r.client.From(messagesTable).Update(changes).Eq("id", id))
}

func (r *SupabaseRepository) DeleteMessage(ctx context.Context, id string) error {
	_, err := supabase.First[Message](ctx, r.client.From(messagesTable).Delete().Eq("id", id))
	return err
}

func (r *SupabaseRepository) Search(ctx context.Context, sq SearchQuery) ([]Message, error) {
	q := r.client.From(messagesTable).Select("*").ILike("content", "%"+sq.Text+"%")
	if sq.RoomID != "" {
		q = q.Eq("room_id", sq.RoomID)
	}
	if sq.UserID != "" {
		q = q.Eq("sender_id", sq.UserID)
	}
	return supabase.List[Message](ctx, q.Order("created_at", supabase.OrderDesc).Limit(sq.Limit))
}

// UnreadCount counts unread messages sent by others in the rooms userID
// participates in.
func (r *SupabaseRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	ids, err := r.roomsOf(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	rows, err := supabase.List[map[string]interface{}](ctx, r.client.From(messagesTable).Select("id").
		In("room_id", ids).
		Eq("is_read", false).
		Neq("sender_id", userID))
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// =============================================================================
// Participants
// =============================================================================

func (r *SupabaseRepository) Participants(ctx context.Context, roomID string) ([]Participant, error) {
	return supabase.List[Participant](ctx, r.client.From(participantsTable).Select("*").Eq("room_id", roomID))
}

func (r *SupabaseRepository) AddParticipant(ctx context.Context, roomID, userID, role string) (*Participant, error) {
	return supabase.First[Participant](ctx, r.client.From(participantsTable).Insert(map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
		"role":    role,
	}))
}

func (r *SupabaseRepository) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	_, err := supabase.First[Participant](ctx, r.client.From(participantsTable).Delete().
		Eq("room_id", roomID).
		Eq("user_id", userID))
	return err
}
