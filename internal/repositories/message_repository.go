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

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string, viewerID string, before time.Time, limit int) ([]models.Message, error)
	MarkDeliveredFor(ctx context.Context, recipientID string) ([]models.StatusChange, error)
	MarkReadIn(ctx context.Context, conversationID string, readerID string) ([]string, error)
	SetReaction(ctx context.Context, messageID string, userID string, emoji string) error
	ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error)
	TogglePinned(ctx context.Context, messageID string) (bool, error)
	MarkDeleted(ctx context.Context, messageID string) error
	AddDeletedBy(ctx context.Context, messageID string, userID string) error
	LatestVisible(ctx context.Context, conversationID string, viewerID string) (*models.Message, error)
	CountUnread(ctx context.Context, conversationID string, userID string, since time.Time) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	q querier
}

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderID       string         `db:"sender_id"`
	Content        string         `db:"content"`
	Type           string         `db:"message_type"`
	Status         string         `db:"status"`
	ReplyToID      sql.NullString `db:"reply_to_id"`
	FileURL        sql.NullString `db:"file_url"`
	FileName       sql.NullString `db:"file_name"`
	FileSize       sql.NullInt64  `db:"file_size"`
	MimeType       sql.NullString `db:"mime_type"`
	IsPinned       bool           `db:"is_pinned"`
	IsDeleted      bool           `db:"is_deleted"`
	CreatedAt      time.Time      `db:"created_at"`

	// filled only by history queries
	ReplySenderID  sql.NullString `db:"reply_sender_id"`
	ReplyContent   sql.NullString `db:"reply_content"`
	ReplyType      sql.NullString `db:"reply_message_type"`
	ReplyFileURL   sql.NullString `db:"reply_file_url"`
	ReplyFileName  sql.NullString `db:"reply_file_name"`
	ReplyIsDeleted sql.NullBool   `db:"reply_is_deleted"`
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.status, m.reply_to_id,
        m.file_url, m.file_name, m.file_size, m.mime_type, m.is_pinned, m.is_deleted, m.created_at`

const replyColumns = `, r.sender_id AS reply_sender_id, r.content AS reply_content, r.message_type AS reply_message_type,
        r.file_url AS reply_file_url, r.file_name AS reply_file_name, r.is_deleted AS reply_is_deleted`

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Content:        row.Content,
		Type:           models.MessageType(row.Type),
		Status:         models.MessageStatus(row.Status),
		Reactions:      []models.Reaction{},
		IsPinned:       row.IsPinned,
		IsDeleted:      row.IsDeleted,
		CreatedAt:      row.CreatedAt,
	}
	if row.ReplyToID.Valid {
		replyTo := row.ReplyToID.String
		msg.ReplyToID = &replyTo
		if row.ReplySenderID.Valid {
			msg.ReplyTo = row.replyOriginal().Snippet()
		}
	}
	if row.FileURL.Valid {
		msg.File = &models.FileInfo{
			URL:      row.FileURL.String,
			Name:     row.FileName.String,
			Size:     row.FileSize.Int64,
			MimeType: row.MimeType.String,
		}
	}
	return msg
}

func (row messageRow) replyOriginal() models.Message {
	original := models.Message{
		ID:        row.ReplyToID.String,
		SenderID:  row.ReplySenderID.String,
		Content:   row.ReplyContent.String,
		Type:      models.MessageType(row.ReplyType.String),
		IsDeleted: row.ReplyIsDeleted.Bool,
	}
	if row.ReplyFileURL.Valid {
		original.File = &models.FileInfo{URL: row.ReplyFileURL.String, Name: row.ReplyFileName.String}
	}
	return original
}

// CreateMessage persists a message. ID and CreatedAt are filled when empty.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = models.MessageRegular
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	msg.Reactions = []models.Reaction{}

	var fileURL, fileName, mimeType sql.NullString
	var fileSize sql.NullInt64
	if msg.File != nil {
		fileURL = sql.NullString{String: msg.File.URL, Valid: true}
		fileName = sql.NullString{String: msg.File.Name, Valid: msg.File.Name != ""}
		mimeType = sql.NullString{String: msg.File.MimeType, Valid: msg.File.MimeType != ""}
		fileSize = sql.NullInt64{Int64: msg.File.Size, Valid: msg.File.Size > 0}
	}

	_, err := r.q.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, message_type, status,
        reply_to_id, file_url, file_name, file_size, mime_type, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, string(msg.Type), string(msg.Status),
		msg.ReplyToID, fileURL, fileName, fileSize, mimeType, msg.CreatedAt)
	if err != nil {
		return models.Message{}, apperr.Persistence(err)
	}
	return msg, nil
}

// GetMessage retrieves a single message with its reactions and deletions.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.q.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages m WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, apperr.Persistence(err)
	}
	msg := row.toModel()
	if msg.Reactions, err = r.ListReactions(ctx, messageID); err != nil {
		return models.Message{}, err
	}
	if err := r.q.SelectContext(ctx, &msg.DeletedBy, `SELECT user_id FROM message_deletions WHERE message_id=$1`, messageID); err != nil {
		return models.Message{}, apperr.Persistence(err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages older than before (zero means
// newest), oldest first, skipping messages the viewer deleted for themselves.
// Replies carry a snippet of the message they quote.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string, viewerID string, before time.Time, limit int) ([]models.Message, error) {
	var cursor interface{}
	if !before.IsZero() {
		cursor = before
	}
	query := `SELECT ` + messageColumns + replyColumns + ` FROM messages m
        LEFT JOIN messages r ON r.id = m.reply_to_id
        WHERE m.conversation_id=$1
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id=$2)
        AND ($3::timestamptz IS NULL OR m.created_at < $3)
        ORDER BY m.created_at DESC
        LIMIT $4`
	var rows []messageRow
	if err := r.q.SelectContext(ctx, &rows, query, conversationID, viewerID, cursor, limit); err != nil {
		return nil, apperr.Persistence(err)
	}

	msgs := make([]models.Message, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = row.toModel()
		ids[i] = row.ID
	}
	if len(ids) == 0 {
		return msgs, nil
	}

	var reactions []struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
		Emoji     string `db:"emoji"`
	}
	if err := r.q.SelectContext(ctx, &reactions, `SELECT message_id, user_id, emoji FROM message_reactions
        WHERE message_id = ANY($1) ORDER BY created_at`, pq.Array(ids)); err != nil {
		return nil, apperr.Persistence(err)
	}
	byMessage := make(map[string][]models.Reaction, len(reactions))
	for _, reaction := range reactions {
		byMessage[reaction.MessageID] = append(byMessage[reaction.MessageID], models.Reaction{Emoji: reaction.Emoji, UserID: reaction.UserID})
	}
	for i := range msgs {
		if list, ok := byMessage[msgs[i].ID]; ok {
			msgs[i].Reactions = list
		}
	}
	return msgs, nil
}

// MarkDeliveredFor moves every sent direct-chat message addressed to the
// recipient to delivered.
func (r *MessageRepo) MarkDeliveredFor(ctx context.Context, recipientID string) ([]models.StatusChange, error) {
	query := `UPDATE messages m SET status='delivered'
        FROM conversation_participants p, conversations c
        WHERE p.conversation_id = m.conversation_id
        AND p.user_id=$1
        AND c.id = m.conversation_id
        AND c.type = 'direct'
        AND m.sender_id <> $1
        AND m.status = 'sent'
        RETURNING m.id, m.conversation_id, m.sender_id`
	var changes []models.StatusChange
	if err := r.q.SelectContext(ctx, &changes, query, recipientID); err != nil {
		return nil, apperr.Persistence(err)
	}
	return changes, nil
}

// MarkReadIn moves every message in the conversation not sent by the reader
// to read and returns the ids that changed.
func (r *MessageRepo) MarkReadIn(ctx context.Context, conversationID string, readerID string) ([]string, error) {
	var ids []string
	err := r.q.SelectContext(ctx, &ids, `UPDATE messages SET status='read'
        WHERE conversation_id=$1 AND sender_id<>$2 AND status = ANY($3)
        RETURNING id`, conversationID, readerID, pq.Array(statusStrings(models.StatusRead.Predecessors())))
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return ids, nil
}

// SetReaction stores the user's reaction; an empty emoji removes it.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID string, userID string, emoji string) error {
	var err error
	if emoji == "" {
		_, err = r.q.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	} else {
		_, err = r.q.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
            ON CONFLICT (message_id, user_id) DO UPDATE SET emoji = EXCLUDED.emoji, created_at = NOW()`, messageID, userID, emoji)
	}
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// ListReactions returns the message's reactions in the order they were set.
func (r *MessageRepo) ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	reactions := []models.Reaction{}
	if err := r.q.SelectContext(ctx, &reactions, `SELECT emoji, user_id FROM message_reactions WHERE message_id=$1 ORDER BY created_at`, messageID); err != nil {
		return nil, apperr.Persistence(err)
	}
	return reactions, nil
}

// TogglePinned flips the pin flag in one statement and returns the new value.
func (r *MessageRepo) TogglePinned(ctx context.Context, messageID string) (bool, error) {
	var pinned bool
	err := r.q.GetContext(ctx, &pinned, `UPDATE messages SET is_pinned = NOT is_pinned WHERE id=$1 RETURNING is_pinned`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrMessageNotFound
	}
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return pinned, nil
}

// MarkDeleted deletes a message for everyone: the content becomes the
// placeholder and the attachment is dropped.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE messages
        SET is_deleted=TRUE, content=$2, file_url=NULL, file_name=NULL, file_size=NULL, mime_type=NULL
        WHERE id=$1`, messageID, models.DeletedPlaceholder)
	return expectOne(res, err, ErrMessageNotFound)
}

// AddDeletedBy hides the message for one user.
func (r *MessageRepo) AddDeletedBy(ctx context.Context, messageID string, userID string) error {
	if _, err := r.q.ExecContext(ctx, `INSERT INTO message_deletions (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// LatestVisible returns the newest message that is not deleted for everyone
// and, when viewerID is set, not hidden by the viewer. Nil when none is left.
func (r *MessageRepo) LatestVisible(ctx context.Context, conversationID string, viewerID string) (*models.Message, error) {
	var row messageRow
	err := r.q.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages m
        WHERE m.conversation_id=$1
        AND m.is_deleted = FALSE
        AND ($2 = '' OR NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id=$2))
        ORDER BY m.created_at DESC
        LIMIT 1`, conversationID, viewerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	msg := row.toModel()
	return &msg, nil
}

// CountUnread counts messages from other senders newer than since.
func (r *MessageRepo) CountUnread(ctx context.Context, conversationID string, userID string, since time.Time) (int, error) {
	var count int
	err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages
        WHERE conversation_id=$1 AND sender_id<>$2 AND created_at > $3`, conversationID, userID, since)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return count, nil
}

func statusStrings(statuses []models.MessageStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
