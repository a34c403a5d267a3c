package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// ReadStateRepository persists per-user conversation state.
type ReadStateRepository interface {
	GetReadState(ctx context.Context, userID string, conversationID string) (models.ReadState, error)
	ListReadStates(ctx context.Context, userID string) ([]models.ReadState, error)
	UpsertReadState(ctx context.Context, userID string, conversationID string, update models.ReadStateUpdate) (models.ReadState, error)
	TogglePin(ctx context.Context, userID string, conversationID string, at time.Time) (models.ReadState, error)
}

// ReadStateRepo is a sqlx implementation of ReadStateRepository.
type ReadStateRepo struct {
	q querier
}

const readStateColumns = `user_id, conversation_id, last_read_at, is_manually_unread, is_pinned, pinned_at`

// GetReadState returns the stored state, or an empty one when none exists.
func (r *ReadStateRepo) GetReadState(ctx context.Context, userID string, conversationID string) (models.ReadState, error) {
	var state models.ReadState
	err := r.q.GetContext(ctx, &state, `SELECT `+readStateColumns+` FROM read_states WHERE user_id=$1 AND conversation_id=$2`, userID, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReadState{UserID: userID, ConversationID: conversationID}, nil
	}
	if err != nil {
		return models.ReadState{}, apperr.Persistence(err)
	}
	return state, nil
}

// ListReadStates returns every stored state for the user.
func (r *ReadStateRepo) ListReadStates(ctx context.Context, userID string) ([]models.ReadState, error) {
	var states []models.ReadState
	if err := r.q.SelectContext(ctx, &states, `SELECT `+readStateColumns+` FROM read_states WHERE user_id=$1`, userID); err != nil {
		return nil, apperr.Persistence(err)
	}
	return states, nil
}

// UpsertReadState creates or updates the state; nil fields keep their value.
func (r *ReadStateRepo) UpsertReadState(ctx context.Context, userID string, conversationID string, update models.ReadStateUpdate) (models.ReadState, error) {
	query := `INSERT INTO read_states (user_id, conversation_id, last_read_at, is_manually_unread, updated_at)
        VALUES ($1, $2, $3::timestamptz, COALESCE($4::boolean, FALSE), NOW())
        ON CONFLICT (user_id, conversation_id) DO UPDATE SET
            last_read_at = COALESCE($3::timestamptz, read_states.last_read_at),
            is_manually_unread = COALESCE($4::boolean, read_states.is_manually_unread),
            updated_at = NOW()
        RETURNING ` + readStateColumns
	var state models.ReadState
	err := r.q.GetContext(ctx, &state, query, userID, conversationID, update.LastReadAt, update.IsManuallyUnread)
	if err != nil {
		return models.ReadState{}, apperr.Persistence(err)
	}
	return state, nil
}

// TogglePin flips the user's pin on the conversation in one statement.
// Pinning stamps pinned_at with at; unpinning clears it.
func (r *ReadStateRepo) TogglePin(ctx context.Context, userID string, conversationID string, at time.Time) (models.ReadState, error) {
	query := `INSERT INTO read_states (user_id, conversation_id, is_pinned, pinned_at, updated_at)
        VALUES ($1, $2, TRUE, $3, NOW())
        ON CONFLICT (user_id, conversation_id) DO UPDATE SET
            is_pinned = NOT read_states.is_pinned,
            pinned_at = CASE WHEN read_states.is_pinned THEN NULL ELSE $3 END,
            updated_at = NOW()
        RETURNING ` + readStateColumns
	var state models.ReadState
	if err := r.q.GetContext(ctx, &state, query, userID, conversationID, at); err != nil {
		return models.ReadState{}, apperr.Persistence(err)
	}
	return state, nil
}
