package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversationIDsForUser(ctx context.Context, userID string) ([]string, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID string, preview *models.LastMessage) error
	AddParticipant(ctx context.Context, conversationID string, userID string) error
	RemoveParticipant(ctx context.Context, conversationID string, userID string) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	q querier
}

type conversationRow struct {
	ID                  string         `db:"id"`
	Type                string         `db:"type"`
	Name                sql.NullString `db:"name"`
	OwnerID             sql.NullString `db:"owner_id"`
	LastMessageContent  sql.NullString `db:"last_message_content"`
	LastMessageSenderID sql.NullString `db:"last_message_sender_id"`
	LastMessageAt       sql.NullTime   `db:"last_message_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

const conversationSelect = `SELECT c.id, c.type, g.name, g.owner_id, c.last_message_content, c.last_message_sender_id,
        c.last_message_at, c.created_at, c.updated_at
        FROM conversations c
        LEFT JOIN groups g ON g.conversation_id = c.id`

func (row conversationRow) toModel(participants []string) models.Conversation {
	conv := models.Conversation{
		ID:             row.ID,
		Type:           models.ConversationType(row.Type),
		Name:           row.Name.String,
		OwnerID:        row.OwnerID.String,
		ParticipantIDs: participants,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if conv.ParticipantIDs == nil {
		conv.ParticipantIDs = []string{}
	}
	if row.LastMessageAt.Valid {
		conv.LastMessage = &models.LastMessage{
			Content:   row.LastMessageContent.String,
			SenderID:  row.LastMessageSenderID.String,
			Timestamp: row.LastMessageAt.Time,
		}
	}
	return conv
}

// GetConversation fetches a conversation with its participants.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var row conversationRow
	err := r.q.GetContext(ctx, &row, conversationSelect+` WHERE c.id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, apperr.Persistence(err)
	}
	participants, err := r.participants(ctx, []string{row.ID})
	if err != nil {
		return models.Conversation{}, err
	}
	return row.toModel(participants[row.ID]), nil
}

// ListConversationIDsForUser returns the ids of every conversation the user belongs to.
func (r *ConversationRepo) ListConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := r.q.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1`, userID); err != nil {
		return nil, apperr.Persistence(err)
	}
	return ids, nil
}

// ListConversationsForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := conversationSelect + `
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1
        ORDER BY COALESCE(c.last_message_at, c.updated_at) DESC`
	var rows []conversationRow
	if err := r.q.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, apperr.Persistence(err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	participants, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel(participants[row.ID]))
	}
	return result, nil
}

// GetOrCreateDirect returns the single direct conversation for the pair,
// creating it when missing. created reports whether a new row was inserted.
// The row and its participants are separate statements; run it inside InTx
// so a concurrent caller never sees the row without participants.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error) {
	if userID == otherID {
		return models.Conversation{}, false, apperr.Validation("cannot create chat with self")
	}
	key := models.DirectKey(userID, otherID)

	var id string
	err := r.q.GetContext(ctx, &id, `SELECT id FROM conversations WHERE direct_key=$1`, key)
	if err == nil {
		conv, err := r.GetConversation(ctx, id)
		return conv, false, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, false, apperr.Persistence(err)
	}

	now := time.Now().UTC()
	err = r.q.GetContext(ctx, &id, `INSERT INTO conversations (id, type, direct_key, created_at, updated_at)
        VALUES ($1, 'direct', $2, $3, $3)
        ON CONFLICT (direct_key) DO NOTHING
        RETURNING id`, uuid.NewString(), key, now)
	if errors.Is(err, sql.ErrNoRows) {
		// a concurrent request created it first
		if err := r.q.GetContext(ctx, &id, `SELECT id FROM conversations WHERE direct_key=$1`, key); err != nil {
			return models.Conversation{}, false, apperr.Persistence(err)
		}
		conv, err := r.GetConversation(ctx, id)
		return conv, false, err
	}
	if err != nil {
		return models.Conversation{}, false, apperr.Persistence(err)
	}

	for _, participant := range []string{userID, otherID} {
		if err := r.AddParticipant(ctx, id, participant); err != nil {
			return models.Conversation{}, false, err
		}
	}
	conv, err := r.GetConversation(ctx, id)
	return conv, true, err
}

// UpdateLastMessage stores the denormalized preview and touches updated_at.
// A nil preview clears it.
func (r *ConversationRepo) UpdateLastMessage(ctx context.Context, conversationID string, preview *models.LastMessage) error {
	var content, senderID interface{}
	var at interface{}
	if preview != nil {
		content, senderID, at = preview.Content, preview.SenderID, preview.Timestamp
	}
	res, err := r.q.ExecContext(ctx, `UPDATE conversations
        SET last_message_content=$2, last_message_sender_id=$3, last_message_at=$4, updated_at=NOW()
        WHERE id=$1`, conversationID, content, senderID, at)
	return expectOne(res, err, ErrConversationNotFound)
}

// AddParticipant adds a user to the conversation; adding twice is a no-op.
func (r *ConversationRepo) AddParticipant(ctx context.Context, conversationID string, userID string) error {
	if _, err := r.q.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
        ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// RemoveParticipant removes a user from the conversation.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID string, userID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// DeleteConversation removes the conversation; messages, reactions,
// deletions, group metadata and read states cascade.
func (r *ConversationRepo) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID)
	return expectOne(res, err, ErrConversationNotFound)
}

func (r *ConversationRepo) participants(ctx context.Context, conversationIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	var rows []struct {
		ConversationID string `db:"conversation_id"`
		UserID         string `db:"user_id"`
	}
	err := r.q.SelectContext(ctx, &rows, `SELECT conversation_id, user_id FROM conversation_participants
        WHERE conversation_id = ANY($1)
        ORDER BY joined_at, user_id`, pq.Array(conversationIDs))
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	for _, row := range rows {
		result[row.ConversationID] = append(result[row.ConversationID], row.UserID)
	}
	return result, nil
}

func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return apperr.Persistence(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return apperr.Persistence(err)
	}
	if count == 0 {
		return notFound
	}
	return nil
}
