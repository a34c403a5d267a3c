package models

import (
	"encoding/json"
	"time"
)

// Client → core events.
const (
	EventJoinConversation       = "join_conversation"
	EventLeaveConversation      = "leave_conversation"
	EventTyping                 = "typing"
	EventSendMessage            = "send_message"
	EventTogglePinMessage       = "toggle_pin_message"
	EventAddReaction            = "add_reaction"
	EventToggleReaction         = "toggle_reaction"
	EventDeleteMessage          = "delete_message"
	EventDeleteMessageForMe     = "delete_message_for_me"
	EventMarkMessagesRead       = "mark_messages_read"
	EventMarkConversationUnread = "mark_conversation_unread"
	EventTogglePinConversation  = "toggle_pin_conversation"
	EventCreateGroup            = "create_group"
	EventAddToGroup             = "add_to_group"
	EventRemoveFromGroup        = "remove_from_group"
	EventLeaveGroup             = "leave_group"
	EventDeleteGroup            = "delete_group"
)

// Core → client events.
const (
	EventUserOnline            = "user_online"
	EventUserOffline           = "user_offline"
	EventActiveUsers           = "active_users"
	EventUserTyping            = "user_typing"
	EventReceiveMessage        = "receive_message"
	EventMessageDelivered      = "message_delivered"
	EventMessageRead           = "message_read"
	EventMessagePinned         = "message_pinned"
	EventMessageReactionUpdate = "message_reaction_update"
	EventMessageDeleted        = "message_deleted"
	EventConversationUpdated   = "conversation_updated"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
	EventGroupCreated          = "group_created"
	EventGroupDeleted          = "group_deleted"
	EventRemovedFromGroup      = "removed_from_group"
	EventConversationPinned    = "conversation_pinned"
	EventConversationUnread    = "conversation_unread"
)

// Frame is an inbound client frame. A non-empty ID asks for exactly one
// acknowledgement carrying the same ID.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a broadcast frame.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// AckFrame answers a correlated Frame.
type AckFrame struct {
	Ack  string `json:"ack"`
	Data Ack    `json:"data"`
}

// Ack is the result of a client request.
type Ack struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Data           any    `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
}

// MessagePayload is the fully assembled receive_message body.
type MessagePayload struct {
	Message
	SenderUsername string `json:"senderUsername,omitempty"`
}

type UserOnlineEvent struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type UserOfflineEvent struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

type ActiveUsersEvent struct {
	UserIDs []string `json:"userIds"`
}

type TypingEvent struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageDeliveredEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	IsDelivered    bool   `json:"isDelivered"`
}

type MessageReadEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReaderID       string   `json:"readerId"`
}

type MessagePinnedEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	IsPinned       bool   `json:"isPinned"`
}

type ReactionUpdateEvent struct {
	MessageID      string     `json:"messageId"`
	ConversationID string     `json:"conversationId"`
	Reactions      []Reaction `json:"reactions"`
}

type MessageDeletedEvent struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type ConversationUpdatedEvent struct {
	ConversationID string       `json:"conversationId"`
	LastMessage    *LastMessage `json:"lastMessage"`
	MessageID      string       `json:"messageId,omitempty"`
	DeletedForMe   bool         `json:"deletedForMe,omitempty"`
}

type MemberEvent struct {
	ConversationID string        `json:"conversationId"`
	UserID         string        `json:"userId"`
	Username       string        `json:"username,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}

type GroupEvent struct {
	ConversationID string        `json:"conversationId"`
	Name           string        `json:"name"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}

type ConversationPinnedEvent struct {
	ConversationID string     `json:"conversationId"`
	IsPinned       bool       `json:"isPinned"`
	PinnedAt       *time.Time `json:"pinnedAt,omitempty"`
}

type ConversationUnreadEvent struct {
	ConversationID   string `json:"conversationId"`
	IsManuallyUnread bool   `json:"isManuallyUnread"`
}
