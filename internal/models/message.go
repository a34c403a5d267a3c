package models

import (
	"strings"
	"time"
)

// DeletedPlaceholder replaces the content of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// MessageType classifies message content.
type MessageType string

const (
	MessageRegular MessageType = "regular"
	MessageSystem  MessageType = "system"
	MessageImage   MessageType = "image"
	MessageVideo   MessageType = "video"
	MessageAudio   MessageType = "audio"
	MessageFile    MessageType = "file"
)

// MessageTypeForMime picks the message type for an attached file.
func MessageTypeForMime(mime string) MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MessageImage
	case strings.HasPrefix(mime, "video/"):
		return MessageVideo
	case strings.HasPrefix(mime, "audio/"):
		return MessageAudio
	default:
		return MessageFile
	}
}

// MessageStatus is the delivery state of a message. It only moves forward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown values rank below sent.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// CanAdvanceTo reports whether next is strictly after s.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// Predecessors lists the statuses that may advance to s.
func (s MessageStatus) Predecessors() []MessageStatus {
	var out []MessageStatus
	for _, candidate := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if candidate.CanAdvanceTo(s) {
			out = append(out, candidate)
		}
	}
	return out
}

// FileInfo describes an uploaded attachment.
type FileInfo struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	Emoji  string `db:"emoji" json:"emoji"`
	UserID string `db:"user_id" json:"userId"`
}

// Message is a single chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	Status         MessageStatus `json:"status"`
	ReplyToID      *string       `json:"replyToId,omitempty"`
	ReplyTo        *ReplySnippet `json:"replyTo,omitempty"`
	File           *FileInfo     `json:"file,omitempty"`
	Reactions      []Reaction    `json:"reactions"`
	IsPinned       bool          `json:"isPinned"`
	IsDeleted      bool          `json:"isDeleted"`
	DeletedBy      []string      `json:"-"`
	CreatedAt      time.Time     `json:"timestamp"`
}

// PreviewText is the sidebar preview for the message. File-only messages
// fall back to a label.
func (m Message) PreviewText() string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	if content := strings.TrimSpace(m.Content); content != "" {
		return content
	}
	if m.File == nil {
		return ""
	}
	switch m.Type {
	case MessageImage:
		return "📷 Image"
	case MessageVideo:
		return "🎥 Video"
	}
	if m.File.Name != "" {
		return m.File.Name
	}
	return "File"
}

// Preview builds the denormalized last-message record for m.
func (m Message) Preview() *LastMessage {
	return &LastMessage{Content: m.PreviewText(), SenderID: m.SenderID, Timestamp: m.CreatedAt}
}

// DeletedFor reports whether userID hid the message for themselves.
func (m Message) DeletedFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ReactionOf returns the reaction userID left on the message, if any.
func (m Message) ReactionOf(userID string) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r, true
		}
	}
	return Reaction{}, false
}

// Snippet is the quoted view of m shown under replies to it.
func (m Message) Snippet() *ReplySnippet {
	return &ReplySnippet{ID: m.ID, Content: m.PreviewText(), SenderID: m.SenderID}
}

// ReplySnippet is the denormalized view of a replied-to message.
type ReplySnippet struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	SenderID string `json:"senderId"`
}

// StatusChange records one message moved forward by a bulk transition.
type StatusChange struct {
	MessageID      string `db:"id"`
	ConversationID string `db:"conversation_id"`
	SenderID       string `db:"sender_id"`
}
