package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// Default per-user message rate.
const (
	DefaultMessageRateLimit  = 100
	DefaultMessageRateWindow = time.Minute
)

// Reaction operations.
const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
	ReactionToggle = "toggle"
)

// MessageLimits is the per-user send rate.
type MessageLimits struct {
	MaxRequests int
	Window      time.Duration
}

// MessageService runs the chat flows: rate check, persist, mutate, publish.
//
// Event publishing is best-effort. Once storage accepted the change the
// action has succeeded, and a publish failure is only logged.
type MessageService struct {
	repo      MessageRepository
	reads     *ReadStatusService
	limiter   *RateLimiter
	publisher EventPublisher
	limits    MessageLimits
	log       logger.Logger
	now       func() time.Time
}

// NewMessageService creates a MessageService. A zero limits uses the
// defaults.
func NewMessageService(repo MessageRepository, limiter *RateLimiter, publisher EventPublisher, limits MessageLimits, log logger.Logger) *MessageService {
	if limits.MaxRequests <= 0 {
		limits.MaxRequests = DefaultMessageRateLimit
	}
	if limits.Window <= 0 {
		limits.Window = DefaultMessageRateWindow
	}
	if log == nil {
		log = logger.Default()
	}
	return &MessageService{
		repo:      repo,
		reads:     NewReadStatusService(repo, log),
		limiter:   limiter,
		publisher: publisher,
		limits:    limits,
		log:       log.With("component", "message"),
		now:       time.Now,
	}
}

func (s *MessageService) publish(ctx context.Context, eventType domain.EventType, payload any) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		logger.L(ctx).Warn("event not published, local action kept", "event_type", eventType, "error", err)
	}
}

// ============================================================================
// Send
// ============================================================================

// SendMessageRequest contains parameters for sending a message.
type SendMessageRequest struct {
	RoomID   string
	SenderID string
	Content  string
	Type     domain.MessageType // defaults to text
	FileID   string
	AIType   string
	Mentions []string
}

// SendMessageResponse contains the stored message and the rate decision.
type SendMessageResponse struct {
	Message   *domain.Message
	RateLimit domain.RateLimitCheckResult
}

func (r *SendMessageRequest) validate() error {
	if r.RoomID == "" {
		return domain.ErrMissingArgument.WithDetails("room_id is required")
	}
	if r.SenderID == "" {
		return domain.ErrMissingArgument.WithDetails("sender_id is required")
	}
	switch r.Type {
	case "":
		r.Type = domain.MessageTypeText
	case domain.MessageTypeText, domain.MessageTypeFile, domain.MessageTypeSystem, domain.MessageTypeAI:
	default:
		return domain.ErrInvalidArgument.WithDetails("unknown message type " + string(r.Type))
	}
	if r.Type == domain.MessageTypeFile && r.FileID == "" {
		return domain.ErrMissingArgument.WithDetails("file_id is required for file messages")
	}
	if r.Type != domain.MessageTypeFile && strings.TrimSpace(r.Content) == "" {
		return domain.ErrMissingArgument.WithDetails("content is required")
	}
	return nil
}

// Send stores a new message and announces it to the room.
//
// When the sender is over the message rate the response still carries
// the rejected RateLimit, together with ErrRateLimited.
func (s *MessageService) Send(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	rl, err := s.limiter.Check(ctx, "msg:"+req.SenderID, s.limits.MaxRequests, s.limits.Window)
	if err != nil {
		return nil, err
	}
	if !rl.Allowed {
		return &SendMessageResponse{RateLimit: rl}, domain.ErrRateLimited.WithDetails("message rate exceeded")
	}

	msg := &domain.Message{
		ID:        ulid.Make().String(),
		RoomID:    req.RoomID,
		Content:   req.Content,
		SenderID:  req.SenderID,
		Type:      req.Type,
		FileID:    req.FileID,
		AIType:    req.AIType,
		Mentions:  req.Mentions,
		Timestamp: s.now(),
	}

	if msg.FileID != "" {
		file, err := s.repo.FindFile(ctx, msg.FileID)
		switch {
		case err == nil:
			msg.AttachFileMetadata(file)
		case errors.Is(err, domain.ErrFileNotFound):
			logger.L(ctx).Warn("message references unknown file", "file_id", msg.FileID)
		default:
			return nil, domain.ErrStorageError.WithCause(err)
		}
	}

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}

	s.publish(ctx, domain.EventMessage, msg.View())
	return &SendMessageResponse{Message: msg, RateLimit: rl}, nil
}

// ============================================================================
// React
// ============================================================================

// ReactRequest contains parameters for a reaction change.
type ReactRequest struct {
	MessageID string
	Reaction  string
	UserID    string
	Type      string // ReactionAdd, ReactionRemove or ReactionToggle
}

// React applies a reaction change and announces the resulting reaction
// map. A change that does nothing (re-adding, removing an absent
// reaction) is neither stored nor announced.
func (s *MessageService) React(ctx context.Context, req *ReactRequest) (*domain.ReactionUpdatePayload, error) {
	if req.MessageID == "" || req.UserID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("message_id and user_id are required")
	}
	if strings.TrimSpace(req.Reaction) == "" {
		return nil, domain.ErrInvalidReaction.WithDetails("reaction is required")
	}

	var mutate func(*domain.Message) bool
	switch req.Type {
	case ReactionAdd:
		mutate = func(m *domain.Message) bool { return m.AddReaction(req.Reaction, req.UserID) }
	case ReactionRemove:
		mutate = func(m *domain.Message) bool { return m.RemoveReaction(req.Reaction, req.UserID) }
	case ReactionToggle:
		mutate = func(m *domain.Message) bool {
			m.ToggleReaction(req.Reaction, req.UserID)
			return true
		}
	default:
		return nil, domain.ErrInvalidReaction.WithDetails("unknown reaction type " + req.Type)
	}

	// Read, mutate and write in one storage transaction so a concurrent
	// read receipt or reaction on the same message is not overwritten.
	msg, changed, err := s.repo.Mutate(ctx, req.MessageID, mutate)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return nil, err
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}

	update := &domain.ReactionUpdatePayload{
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		Reactions: msg.Reactions.Lists(),
	}
	if !changed {
		return update, nil
	}
	s.publish(ctx, domain.EventMessageReactionUpdate, update)
	return update, nil
}

// ============================================================================
// Mark read
// ============================================================================

// MarkReadRequest contains parameters for a read receipt.
type MarkReadRequest struct {
	RoomID     string
	UserID     string
	MessageIDs []string
}

// MarkRead records read receipts and announces them to the room.
func (s *MessageService) MarkRead(ctx context.Context, req *MarkReadRequest) (*domain.MessagesReadPayload, error) {
	if req.RoomID == "" || req.UserID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("room_id and user_id are required")
	}
	if len(req.MessageIDs) == 0 {
		return nil, nil
	}

	readAt := s.now()
	if err := s.reads.UpdateReadStatus(ctx, req.MessageIDs, req.UserID, readAt); err != nil {
		return nil, err
	}

	payload := &domain.MessagesReadPayload{
		RoomID:     req.RoomID,
		UserID:     req.UserID,
		MessageIDs: req.MessageIDs,
		ReadAt:     readAt.UnixMilli(),
	}
	s.publish(ctx, domain.EventMessagesRead, payload)
	return payload, nil
}

// ============================================================================
// Room events
// ============================================================================

// RoomEventRequest carries a room lifecycle event produced by the room
// service. Which fields are used depends on Type.
type RoomEventRequest struct {
	Type         domain.EventType
	RoomID       string
	UserID       string
	UserName     string
	Participants []domain.Participant
	Room         *domain.RoomSummary
}

// AnnounceRoomEvent publishes a room lifecycle event. Unlike the message
// flows the publish is the whole action, so its failure is returned.
func (s *MessageService) AnnounceRoomEvent(ctx context.Context, req *RoomEventRequest) error {
	var payload any
	switch req.Type {
	case domain.EventParticipantsUpdate:
		payload = domain.ParticipantsUpdatePayload{RoomID: req.RoomID, Participants: req.Participants}
	case domain.EventUserLeft:
		if req.UserID == "" {
			return domain.ErrMissingArgument.WithDetails("user_id is required")
		}
		payload = domain.UserLeftPayload{RoomID: req.RoomID, UserID: req.UserID, UserName: req.UserName}
	case domain.EventRoomUpdate:
		if req.Room == nil {
			return domain.ErrMissingArgument.WithDetails("room is required")
		}
		payload = domain.RoomUpdatePayload{RoomID: req.RoomID, Room: *req.Room}
	case domain.EventRoomCreated:
		if req.Room == nil {
			return domain.ErrMissingArgument.WithDetails("room is required")
		}
		payload = domain.RoomCreatedPayload{Room: *req.Room}
	default:
		return domain.ErrInvalidArgument.WithDetails("unsupported room event " + string(req.Type))
	}
	if req.RoomID == "" && req.Type != domain.EventRoomCreated {
		return domain.ErrMissingArgument.WithDetails("room_id is required")
	}
	return s.publisher.Publish(ctx, req.Type, payload)
}
