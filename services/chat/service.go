package chat

import (
	"context"
	"encoding/json"

	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/relay"
)

// Service persists chat messages and fans them out to connected room
// members. It handles frames arriving over relay sessions.
type Service struct {
	repo     Repository
	registry *relay.Registry
	logger   *logging.Logger
}

var _ relay.FrameHandler = (*Service)(nil)

// NewService creates a chat service. registry may be nil, in which case
// messages are stored but not pushed.
func NewService(repo Repository, registry *relay.Registry, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefault("chat")
	}
	return &Service{repo: repo, registry: registry, logger: logger}
}

// Send stores the message and pushes the stored row to every connected
// member of its room except the sender. Delivery failures are logged only.
func (s *Service) Send(ctx context.Context, in MessageInput) (*Message, error) {
	msg, err := s.repo.CreateMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	if s.registry == nil {
		return msg, nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("encode chat message")
		return msg, nil
	}
	delivered, err := s.registry.DeliverToRoom(ctx, msg.RoomID, payload, msg.SenderID)
	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"room_id":    msg.RoomID,
		"message_id": msg.ID,
		"delivered":  delivered,
	})
	if err != nil {
		log.WithError(err).Warn("chat fan-out failed")
		return msg, nil
	}
	log.Debug("chat message fanned out")
	return msg, nil
}

// HandleFrame stores and fans out a frame sent by userID over a relay
// session.
func (s *Service) HandleFrame(ctx context.Context, userID string, frame relay.Frame) {
	_, err := s.Send(ctx, MessageInput{
		RoomID:      frame.RoomID,
		SenderID:    userID,
		MessageType: frame.MessageType,
		Content:     frame.Content,
		Attachments: frame.Attachments,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"user_id": userID,
			"room_id": frame.RoomID,
		}).Error("store relay frame")
	}
}
