package router

import (
	"context"
	"strings"
	"time"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// StartDirectChat returns the direct conversation between the user and the
// named user, creating it when missing. created reports a new conversation,
// in which case both users' live connections join its room.
func (r *Router) StartDirectChat(ctx context.Context, userID, otherUsername string) (models.Conversation, bool, error) {
	otherUsername = strings.TrimSpace(otherUsername)
	if otherUsername == "" {
		return models.Conversation{}, false, apperr.Validation("username is required")
	}
	other, err := r.store.Users().GetUserByUsername(ctx, otherUsername)
	if err != nil {
		return models.Conversation{}, false, err
	}
	if other.ID == userID {
		return models.Conversation{}, false, apperr.Validation("cannot create chat with self")
	}

	var conv models.Conversation
	var created bool
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		var err error
		conv, created, err = tx.Conversations().GetOrCreateDirect(ctx, userID, other.ID)
		return err
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	if created {
		r.hub.JoinUser(userID, conv.ID)
		r.hub.JoinUser(other.ID, conv.ID)
	}
	return conv, created, nil
}

// ListMessages returns one page of history, oldest first, older than before
// when it is set. Messages the user deleted for themselves are left out.
func (r *Router) ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	if _, err := r.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return r.store.Messages().ListMessages(ctx, conversationID, userID, before, limit)
}

// Summaries returns the user's conversation list.
func (r *Router) Summaries(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	return r.reconciler.Summaries(ctx, userID)
}

// MarkUnread flags a conversation as unread for the session's user.
func (r *Router) MarkUnread(ctx context.Context, s models.Session, conversationID string) error {
	return r.reconciler.MarkUnread(ctx, s, conversationID)
}

// OnlineUsers lists users with at least one live connection.
func (r *Router) OnlineUsers() []string {
	return r.presence.OnlineUsers()
}
