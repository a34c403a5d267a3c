package repositories

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// CreateGroup creates a group conversation, its metadata and its members.
// The owner is always a member. Callers group it with the system message in
// one Store.InTx.
func (r *ConversationRepo) CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	if _, err := r.q.ExecContext(ctx, `INSERT INTO conversations (id, type, created_at, updated_at) VALUES ($1, 'group', $2, $2)`, id, now); err != nil {
		return models.Conversation{}, apperr.Persistence(err)
	}
	if _, err := r.q.ExecContext(ctx, `INSERT INTO groups (conversation_id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`, id, name, ownerID, now); err != nil {
		return models.Conversation{}, apperr.Persistence(err)
	}

	for _, memberID := range GroupMembers(ownerID, memberIDs) {
		if err := r.AddParticipant(ctx, id, memberID); err != nil {
			return models.Conversation{}, err
		}
	}
	return r.GetConversation(ctx, id)
}

// GroupMembers returns the owner followed by the other members, deduplicated
// and sorted.
func GroupMembers(ownerID string, memberIDs []string) []string {
	memberSet := map[string]struct{}{}
	for _, id := range memberIDs {
		if id != "" && id != ownerID {
			memberSet[id] = struct{}{}
		}
	}
	others := make([]string, 0, len(memberSet))
	for id := range memberSet {
		others = append(others, id)
	}
	sort.Strings(others)
	return append([]string{ownerID}, others...)
}
