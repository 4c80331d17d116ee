package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// MessageType classifies a chat message.
type MessageType string

// Message types.
const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
	MessageTypeAI     MessageType = "ai"
)

// File metadata keys copied into Message.Metadata on attach.
const (
	MetaFileType     = "fileType"
	MetaFileSize     = "fileSize"
	MetaOriginalName = "originalName"
)

// File is the subset of an uploaded file the message layer needs.
type File struct {
	ID           string `json:"id"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	OriginalName string `json:"original_name"`
}

// Message is a chat message as persisted by the storage collaborator.
//
// Reactions never hold an empty user set: removing the last user removes the
// symbol. Readers holds one read time per user.
type Message struct {
	ID        string               `json:"id"`
	RoomID    string               `json:"room_id"`
	Content   string               `json:"content"`
	SenderID  string               `json:"sender_id"`
	Type      MessageType          `json:"type"`
	FileID    string               `json:"file_id,omitempty"`
	AIType    string               `json:"ai_type,omitempty"`
	Mentions  []string             `json:"mentions,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Reactions Reactions            `json:"reactions,omitempty"`
	Readers   map[string]time.Time `json:"readers,omitempty"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
	IsDeleted bool                 `json:"is_deleted"`
}

// Reactions maps a reaction symbol to the set of users who reacted with it.
type Reactions map[string]map[string]struct{}

// MarshalJSON encodes each set as a sorted list of user ids.
func (r Reactions) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Lists())
}

// UnmarshalJSON decodes symbol → []userID, dropping empty lists.
func (r *Reactions) UnmarshalJSON(data []byte) error {
	var lists map[string][]string
	if err := json.Unmarshal(data, &lists); err != nil {
		return err
	}
	out := make(Reactions, len(lists))
	for symbol, users := range lists {
		if len(users) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}
		out[symbol] = set
	}
	*r = out
	return nil
}

// Lists returns the reactions as symbol → sorted user ids.
func (r Reactions) Lists() map[string][]string {
	out := make(map[string][]string, len(r))
	for symbol, set := range r {
		users := make([]string, 0, len(set))
		for u := range set {
			users = append(users, u)
		}
		sort.Strings(users)
		out[symbol] = users
	}
	return out
}

// AddReaction records userID under symbol. It returns true only when the
// user was not already present; re-adding is a no-op.
func (m *Message) AddReaction(symbol, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(Reactions)
	}
	users, ok := m.Reactions[symbol]
	if !ok {
		users = make(map[string]struct{})
		m.Reactions[symbol] = users
	}
	if _, exists := users[userID]; exists {
		return false
	}
	users[userID] = struct{}{}
	return true
}

// RemoveReaction removes userID from symbol. It returns false when the symbol
// or the user's entry is absent. Removing the last user deletes the symbol.
func (m *Message) RemoveReaction(symbol, userID string) bool {
	users, ok := m.Reactions[symbol]
	if !ok {
		return false
	}
	if _, exists := users[userID]; !exists {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.Reactions, symbol)
	}
	return true
}

// ToggleReaction removes the user's reaction when present and adds it
// otherwise. It returns true when the reaction was added.
func (m *Message) ToggleReaction(symbol, userID string) bool {
	if m.RemoveReaction(symbol, userID) {
		return false
	}
	return m.AddReaction(symbol, userID)
}

// HasReaction reports whether userID reacted with symbol.
func (m *Message) HasReaction(symbol, userID string) bool {
	_, ok := m.Reactions[symbol][userID]
	return ok
}

// AttachFileMetadata copies file details into Metadata. First write wins: it
// only applies when the message references a file and has no metadata yet.
func (m *Message) AttachFileMetadata(file *File) {
	if file == nil || m.FileID == "" || len(m.Metadata) > 0 {
		return
	}
	m.Metadata = map[string]any{
		MetaFileType:     file.MimeType,
		MetaFileSize:     file.Size,
		MetaOriginalName: file.OriginalName,
	}
}

// MarkRead sets the read time for userID. Set, not merge: an earlier readAt
// overwrites a later one.
func (m *Message) MarkRead(userID string, readAt time.Time) {
	if m.Readers == nil {
		m.Readers = make(map[string]time.Time)
	}
	m.Readers[userID] = readAt
}

// Reader is one read receipt.
type Reader struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// ReadersList returns read receipts ordered by user id.
func (m *Message) ReadersList() []Reader {
	out := make([]Reader, 0, len(m.Readers))
	for u, at := range m.Readers {
		out = append(out, Reader{UserID: u, ReadAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// View shapes the message into the payload carried by MESSAGE events.
func (m *Message) View() MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Content:   m.Content,
		Type:      m.Type,
		Timestamp: m.Timestamp.UnixMilli(),
		SenderID:  m.SenderID,
		FileID:    m.FileID,
		Mentions:  m.Mentions,
		Reactions: m.Reactions.Lists(),
		Readers:   m.ReadersList(),
		Metadata:  m.Metadata,
	}
}
