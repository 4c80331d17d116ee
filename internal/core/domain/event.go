package domain

import (
	"encoding/json"
	"fmt"
)

// EventType names a cross-instance chat event. The value is also the event
// name delivered to clients.
type EventType string

// Event vocabulary. Each type maps to one fixed topic.
const (
	EventMessage               EventType = "message"
	EventMessageReactionUpdate EventType = "messageReactionUpdate"
	EventParticipantsUpdate    EventType = "participantsUpdate"
	EventUserLeft              EventType = "userLeft"
	EventMessagesRead          EventType = "messagesRead"
	EventRoomCreated           EventType = "roomCreated"
	EventRoomUpdate            EventType = "roomUpdated"
	EventSessionEnded          EventType = "session_ended"
)

// Topic names.
const (
	TopicMessage      = "chat:message"
	TopicReaction     = "chat:reaction"
	TopicParticipants = "chat:participants"
	TopicRoom         = "chat:room"
	TopicRead         = "chat:read"
	TopicRoomList     = "chat:room-list"
	TopicRoomUpdate   = "chat:room-update"
	TopicSession      = "chat:session"
	TopicDefault      = "chat:default"
)

// RoomListRoom is the delivery room every client browsing the room list joins.
const RoomListRoom = "room-list"

var topicMap = map[EventType]string{
	EventMessage:               TopicMessage,
	EventMessageReactionUpdate: TopicReaction,
	EventParticipantsUpdate:    TopicParticipants,
	EventUserLeft:              TopicRoom,
	EventMessagesRead:          TopicRead,
	EventRoomCreated:           TopicRoomList,
	EventRoomUpdate:            TopicRoomUpdate,
	EventSessionEnded:          TopicSession,
}

// EventTypes returns the known event vocabulary in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventMessage,
		EventMessageReactionUpdate,
		EventParticipantsUpdate,
		EventUserLeft,
		EventMessagesRead,
		EventRoomCreated,
		EventRoomUpdate,
		EventSessionEnded,
	}
}

// Known reports whether t belongs to the event vocabulary.
func (t EventType) Known() bool {
	_, ok := topicMap[t]
	return ok
}

// ResolveTopic returns the topic for an event type. Unknown types route to
// TopicDefault rather than failing.
func ResolveTopic(t EventType) string {
	if topic, ok := topicMap[t]; ok {
		return topic
	}
	return TopicDefault
}

// AllTopics returns every distinct topic, including TopicDefault, in a stable
// order.
func AllTopics() []string {
	seen := make(map[string]struct{}, len(topicMap)+1)
	topics := make([]string, 0, len(topicMap)+1)
	for _, t := range EventTypes() {
		topic := topicMap[t]
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return append(topics, TopicDefault)
}

// Envelope carries one event over pub/sub.
type Envelope struct {
	EventType EventType       `json:"eventType"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope resolves the topic for eventType and encodes payload.
func NewEnvelope(eventType EventType, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrEventDecode.WithDetails(fmt.Sprintf("encode %s payload", eventType)).WithCause(err)
	}
	return &Envelope{
		EventType: eventType,
		Topic:     ResolveTopic(eventType),
		Payload:   raw,
	}, nil
}

// DecodeEnvelope parses an envelope received from the broker.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrEventDecode.WithCause(err)
	}
	if env.EventType == "" {
		return nil, ErrEventDecode.WithDetails("missing eventType")
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return ErrEventDecode.WithDetails(string(e.EventType)).WithCause(err)
	}
	return nil
}

// ============================================================================
// Payloads
// ============================================================================

// MessagePayload is the client view of a message (EventMessage).
type MessagePayload struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomId"`
	Content   string              `json:"content"`
	Type      MessageType         `json:"type"`
	Timestamp int64               `json:"timestamp"`
	SenderID  string              `json:"senderId"`
	FileID    string              `json:"fileId,omitempty"`
	Mentions  []string            `json:"mentions,omitempty"`
	Reactions map[string][]string `json:"reactions"`
	Readers   []Reader            `json:"readers"`
	Metadata  map[string]any      `json:"metadata,omitempty"`
}

// ReactionUpdatePayload carries the full reaction map after a change.
type ReactionUpdatePayload struct {
	RoomID    string              `json:"roomId"`
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

// Participant is a room member as shown to clients.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// ParticipantsUpdatePayload carries a room's participant list.
type ParticipantsUpdatePayload struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

// UserLeftPayload announces a user leaving a room.
type UserLeftPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// MessagesReadPayload announces read receipts.
type MessagesReadPayload struct {
	RoomID     string   `json:"roomId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
	ReadAt     int64    `json:"readAt"`
}

// RoomSummary is the room-list view of a room.
type RoomSummary struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	HasPassword      bool          `json:"hasPassword"`
	Creator          *Participant  `json:"creator,omitempty"`
	Participants     []Participant `json:"participants,omitempty"`
	ParticipantCount int           `json:"participantsCount"`
	CreatedAt        int64         `json:"createdAt"`
}

// RoomCreatedPayload announces a new room to the room list.
type RoomCreatedPayload struct {
	Room RoomSummary `json:"room"`
}

// RoomUpdatePayload announces a change to an existing room.
type RoomUpdatePayload struct {
	RoomID string      `json:"roomId"`
	Room   RoomSummary `json:"room"`
}

// Session end reasons.
const (
	SessionEndDuplicateLogin = "duplicate_login"
	SessionEndLogout         = "logout"
)

// SessionEndedPayload tells a user's clients their session is gone.
// SessionID names the ended session so that connections holding a newer
// session for the same user can ignore it.
type SessionEndedPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}
