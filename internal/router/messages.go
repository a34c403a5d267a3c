package router

import (
	"context"
	"encoding/json"
	"strings"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type conversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ReplyToID      string `json:"replyToId"`
	FileURL        string `json:"fileUrl"`
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
	FileType       string `json:"fileType"`
}

type messageRequest struct {
	MessageID string `json:"messageId"`
}

type reactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type pinAck struct {
	Content  string `json:"content"`
	IsPinned bool   `json:"isPinned"`
}

func (r *Router) joinConversation(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if _, err := r.participantConversation(ctx, s.UserID, req.ConversationID); err != nil {
		return models.Ack{}, err
	}
	r.hub.Join(s.ConnID, req.ConversationID)
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) leaveConversation(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	r.hub.Leave(s.ConnID, req.ConversationID)
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) typing(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req typingRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if !r.hub.InRoom(s.ConnID, req.ConversationID) {
		return models.Ack{}, apperr.Validation("not in conversation")
	}
	r.hub.EmitExcept(req.ConversationID, s.ConnID, models.EventUserTyping, models.TypingEvent{
		UserID:         s.UserID,
		Username:       s.Username,
		ConversationID: req.ConversationID,
		IsTyping:       req.IsTyping,
	})
	return models.Ack{}, nil
}

func (r *Router) sendMessage(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req sendMessageRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && req.FileURL == "" {
		return models.Ack{}, apperr.Validation("empty message")
	}
	conv, err := r.participantConversation(ctx, s.UserID, req.ConversationID)
	if err != nil {
		return models.Ack{}, err
	}

	var reply *models.ReplySnippet
	if req.ReplyToID != "" {
		original, err := r.store.Messages().GetMessage(ctx, req.ReplyToID)
		if err != nil {
			return models.Ack{}, err
		}
		if original.ConversationID != conv.ID {
			return models.Ack{}, apperr.Validation("reply target belongs to another conversation")
		}
		reply = original.Snippet()
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       s.UserID,
		Content:        content,
		Type:           models.MessageRegular,
	}
	if req.FileURL != "" {
		msg.File = &models.FileInfo{URL: req.FileURL, Name: req.FileName, Size: req.FileSize, MimeType: req.FileType}
		msg.Type = models.MessageTypeForMime(req.FileType)
	}
	if reply != nil {
		replyID := reply.ID
		msg.ReplyToID = &replyID
		msg.ReplyTo = reply
	}

	// persisted order equals broadcast order within a conversation
	unlock := r.locks.Lock(conv.ID)
	defer unlock()

	msg.Status = r.reconciler.InitialStatus(conv, s.UserID)
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		created, err := tx.Messages().CreateMessage(ctx, msg)
		if err != nil {
			return err
		}
		msg = created
		return tx.Conversations().UpdateLastMessage(ctx, conv.ID, created.Preview())
	})
	if err != nil {
		return models.Ack{}, err
	}

	r.hub.Fanout(conv.ID, conv.OtherParticipants(s.UserID), models.EventReceiveMessage, models.MessagePayload{
		Message:        msg,
		SenderUsername: s.Username,
	})
	if msg.Status == models.StatusDelivered {
		r.hub.EmitToUser(s.UserID, models.EventMessageDelivered, models.MessageDeliveredEvent{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			IsDelivered:    true,
		})
	}
	return models.Ack{MessageID: msg.ID, ConversationID: conv.ID}, nil
}

func (r *Router) togglePinMessage(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req messageRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	msg, conv, err := r.participantMessage(ctx, s.UserID, req.MessageID)
	if err != nil {
		return models.Ack{}, err
	}
	pinned, err := r.store.Messages().TogglePinned(ctx, msg.ID)
	if err != nil {
		return models.Ack{}, err
	}

	r.hub.Emit(conv.ID, models.EventMessagePinned, models.MessagePinnedEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		IsPinned:       pinned,
	})
	return models.Ack{MessageID: msg.ID, Data: pinAck{Content: msg.Content, IsPinned: pinned}}, nil
}

// react adds, replaces or removes the user's single reaction on a message.
func (r *Router) react(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req reactionRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" {
		return models.Ack{}, apperr.Validation("emoji is required")
	}
	msg, conv, err := r.participantMessage(ctx, s.UserID, req.MessageID)
	if err != nil {
		return models.Ack{}, err
	}
	if msg.IsDeleted {
		return models.Ack{}, apperr.Validation("message was deleted")
	}

	next := emoji
	if current, ok := msg.ReactionOf(s.UserID); ok && current.Emoji == emoji {
		next = ""
	}
	var reactions []models.Reaction
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		if err := tx.Messages().SetReaction(ctx, msg.ID, s.UserID, next); err != nil {
			return err
		}
		var err error
		reactions, err = tx.Messages().ListReactions(ctx, msg.ID)
		return err
	})
	if err != nil {
		return models.Ack{}, err
	}

	r.hub.Emit(conv.ID, models.EventMessageReactionUpdate, models.ReactionUpdateEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Reactions:      reactions,
	})
	return models.Ack{MessageID: msg.ID, Data: reactions}, nil
}

func (r *Router) deleteMessage(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req messageRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	msg, conv, err := r.participantMessage(ctx, s.UserID, req.MessageID)
	if err != nil {
		return models.Ack{}, err
	}
	if msg.SenderID != s.UserID {
		return models.Ack{}, apperr.Validation("only the sender can delete a message")
	}
	if msg.IsDeleted {
		return models.Ack{MessageID: msg.ID}, nil
	}

	unlock := r.locks.Lock(conv.ID)
	defer unlock()

	var preview *models.LastMessage
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		if err := tx.Messages().MarkDeleted(ctx, msg.ID); err != nil {
			return err
		}
		latest, err := tx.Messages().LatestVisible(ctx, conv.ID, "")
		if err != nil {
			return err
		}
		if latest != nil {
			preview = latest.Preview()
		}
		return tx.Conversations().UpdateLastMessage(ctx, conv.ID, preview)
	})
	if err != nil {
		return models.Ack{}, err
	}

	r.hub.Emit(conv.ID, models.EventMessageDeleted, models.MessageDeletedEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Content:        models.DeletedPlaceholder,
	})
	r.hub.Fanout(conv.ID, conv.ParticipantIDs, models.EventConversationUpdated, models.ConversationUpdatedEvent{
		ConversationID: conv.ID,
		LastMessage:    preview,
		MessageID:      msg.ID,
	})
	return models.Ack{MessageID: msg.ID}, nil
}

func (r *Router) deleteMessageForMe(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req messageRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	msg, conv, err := r.participantMessage(ctx, s.UserID, req.MessageID)
	if err != nil {
		return models.Ack{}, err
	}

	var preview *models.LastMessage
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		if err := tx.Messages().AddDeletedBy(ctx, msg.ID, s.UserID); err != nil {
			return err
		}
		latest, err := tx.Messages().LatestVisible(ctx, conv.ID, s.UserID)
		if err != nil {
			return err
		}
		if latest != nil {
			preview = latest.Preview()
		}
		return nil
	})
	if err != nil {
		return models.Ack{}, err
	}

	r.hub.EmitToUserExcept(s.UserID, s.ConnID, models.EventConversationUpdated, models.ConversationUpdatedEvent{
		ConversationID: conv.ID,
		LastMessage:    preview,
		MessageID:      msg.ID,
		DeletedForMe:   true,
	})
	return models.Ack{MessageID: msg.ID}, nil
}

func (r *Router) markRead(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	ids, err := r.reconciler.MarkRead(ctx, s, req.ConversationID)
	if err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID, Data: ids}, nil
}

func (r *Router) markUnread(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if err := r.reconciler.MarkUnread(ctx, s, req.ConversationID); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) togglePinConversation(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	state, err := r.reconciler.TogglePin(ctx, s, req.ConversationID)
	if err != nil {
		return models.Ack{}, err
	}
	return models.Ack{
		ConversationID: req.ConversationID,
		Data: models.ConversationPinnedEvent{
			ConversationID: req.ConversationID,
			IsPinned:       state.IsPinned,
			PinnedAt:       state.PinnedAt,
		},
	}, nil
}
