package models

import (
	"sort"
	"time"
)

// ConversationType distinguishes two-party chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// LastMessage is the denormalized preview used to sort conversation lists.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is either a direct chat between exactly two users or a group.
// Its ID doubles as the broadcast room ID.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	Name           string           `json:"name,omitempty"`
	OwnerID        string           `json:"ownerId,omitempty"`
	ParticipantIDs []string         `json:"participantIds"`
	LastMessage    *LastMessage     `json:"lastMessage"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// IsGroup reports whether the conversation is a group.
func (c Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c Conversation) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// Peer returns the other participant of a direct conversation.
func (c Conversation) Peer(userID string) string {
	if c.IsGroup() {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// DirectKey canonicalizes an unordered participant pair so that only one
// direct conversation can exist per pair.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	OtherUser        *User      `json:"otherUser,omitempty"`
	UnreadCount      int        `json:"unreadCount"`
	IsManuallyUnread bool       `json:"isManuallyUnread"`
	IsPinned         bool       `json:"isPinned"`
	PinnedAt         *time.Time `json:"pinnedAt,omitempty"`
}

// LastActivity is the timestamp used to order conversation lists.
func (s ConversationSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.Timestamp
	}
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}
