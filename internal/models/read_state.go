package models

import "time"

// ReadState tracks one user's position in one conversation.
type ReadState struct {
	UserID           string     `db:"user_id" json:"userId"`
	ConversationID   string     `db:"conversation_id" json:"conversationId"`
	LastReadAt       *time.Time `db:"last_read_at" json:"lastReadAt,omitempty"`
	IsManuallyUnread bool       `db:"is_manually_unread" json:"isManuallyUnread"`
	IsPinned         bool       `db:"is_pinned" json:"isPinned"`
	PinnedAt         *time.Time `db:"pinned_at" json:"pinnedAt,omitempty"`
}

// Since returns the unread watermark; the zero time when nothing was read.
func (r ReadState) Since() time.Time {
	if r.LastReadAt == nil {
		return time.Time{}
	}
	return *r.LastReadAt
}

// ReadStateUpdate carries the fields to change in an upsert. Nil fields are
// left untouched.
type ReadStateUpdate struct {
	LastReadAt       *time.Time
	IsManuallyUnread *bool
}

// Apply merges the update into r.
func (u ReadStateUpdate) Apply(r ReadState) ReadState {
	if u.LastReadAt != nil {
		t := *u.LastReadAt
		r.LastReadAt = &t
	}
	if u.IsManuallyUnread != nil {
		r.IsManuallyUnread = *u.IsManuallyUnread
	}
	return r
}

// TogglePin flips the pin. Pinning stamps at; unpinning clears the stamp.
func (r ReadState) TogglePin(at time.Time) ReadState {
	r.IsPinned = !r.IsPinned
	r.PinnedAt = nil
	if r.IsPinned {
		r.PinnedAt = &at
	}
	return r
}
