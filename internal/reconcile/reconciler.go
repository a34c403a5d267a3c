package reconcile

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

const repairTimeout = 5 * time.Second

// Notifier is the slice of the hub the reconciler emits through.
type Notifier interface {
	Emit(room, event string, payload interface{})
	EmitToUser(userID, event string, payload interface{})
	EmitToUserExcept(userID, exceptConn, event string, payload interface{})
}

// Presence answers online checks.
type Presence interface {
	IsOnline(userID string) bool
}

// Reconciler drives message status and per-user read state.
type Reconciler struct {
	store    repositories.Store
	notifier Notifier
	presence Presence
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Reconciler.
func New(store repositories.Store, notifier Notifier, presence Presence, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		notifier: notifier,
		presence: presence,
		logger:   logger.With(zap.String("component", "reconcile")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// InitialStatus is the status of a new message: delivered when the other
// side of a direct chat is online, sent otherwise. Group messages always
// start and stay sent.
func (r *Reconciler) InitialStatus(conv models.Conversation, senderID string) models.MessageStatus {
	if conv.IsGroup() {
		return models.StatusSent
	}
	if peer := conv.Peer(senderID); peer != "" && r.presence.IsOnline(peer) {
		return models.StatusDelivered
	}
	return models.StatusSent
}

// OnConnect marks every pending direct message addressed to the user as
// delivered and tells each online sender.
func (r *Reconciler) OnConnect(ctx context.Context, userID string) ([]models.StatusChange, error) {
	changes, err := r.store.Messages().MarkDeliveredFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, change := range changes {
		if !r.presence.IsOnline(change.SenderID) {
			continue
		}
		r.notifier.EmitToUser(change.SenderID, models.EventMessageDelivered, models.MessageDeliveredEvent{
			MessageID:      change.MessageID,
			ConversationID: change.ConversationID,
			IsDelivered:    true,
		})
	}
	if len(changes) > 0 {
		r.logger.Debug("messages delivered on connect", zap.String("user_id", userID), zap.Int("count", len(changes)))
	}
	return changes, nil
}

// MarkRead marks the conversation read for the session's user, clears the
// manual-unread flag and broadcasts message_read to the room.
func (r *Reconciler) MarkRead(ctx context.Context, s models.Session, conversationID string) ([]string, error) {
	conv, err := r.participantConversation(ctx, s.UserID, conversationID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	unread := false
	readIDs := []string{}
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		if !conv.IsGroup() {
			ids, err := tx.Messages().MarkReadIn(ctx, conversationID, s.UserID)
			if err != nil {
				return err
			}
			readIDs = append(readIDs, ids...)
		}
		_, err := tx.ReadStates().UpsertReadState(ctx, s.UserID, conversationID, models.ReadStateUpdate{
			LastReadAt:       &now,
			IsManuallyUnread: &unread,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.notifier.Emit(conversationID, models.EventMessageRead, models.MessageReadEvent{
		ConversationID: conversationID,
		MessageIDs:     readIDs,
		ReaderID:       s.UserID,
	})
	return readIDs, nil
}

// MarkUnread flags the conversation as manually unread and tells the user's
// other sessions. Message statuses are untouched.
func (r *Reconciler) MarkUnread(ctx context.Context, s models.Session, conversationID string) error {
	if _, err := r.participantConversation(ctx, s.UserID, conversationID); err != nil {
		return err
	}
	unread := true
	if _, err := r.store.ReadStates().UpsertReadState(ctx, s.UserID, conversationID, models.ReadStateUpdate{IsManuallyUnread: &unread}); err != nil {
		return err
	}
	r.notifier.EmitToUserExcept(s.UserID, s.ConnID, models.EventConversationUnread, models.ConversationUnreadEvent{
		ConversationID:   conversationID,
		IsManuallyUnread: true,
	})
	return nil
}

// TogglePin flips the user's pin on the conversation.
func (r *Reconciler) TogglePin(ctx context.Context, s models.Session, conversationID string) (models.ReadState, error) {
	if _, err := r.participantConversation(ctx, s.UserID, conversationID); err != nil {
		return models.ReadState{}, err
	}

	state, err := r.store.ReadStates().TogglePin(ctx, s.UserID, conversationID, r.now())
	if err != nil {
		return models.ReadState{}, err
	}

	r.notifier.EmitToUserExcept(s.UserID, s.ConnID, models.EventConversationPinned, models.ConversationPinnedEvent{
		ConversationID: conversationID,
		IsPinned:       state.IsPinned,
		PinnedAt:       state.PinnedAt,
	})
	return state, nil
}

// UnreadCount counts messages from others newer than the user's last read.
func (r *Reconciler) UnreadCount(ctx context.Context, userID, conversationID string) (int, error) {
	state, err := r.store.ReadStates().GetReadState(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	return r.store.Messages().CountUnread(ctx, conversationID, userID, state.Since())
}

// Summaries builds the user's conversation list: pinned first by pin time,
// then by last activity. Conversations missing a preview get an
// asynchronous repair.
func (r *Reconciler) Summaries(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	convs, err := r.store.Conversations().ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	states, err := r.store.ReadStates().ListReadStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	stateByConv := make(map[string]models.ReadState, len(states))
	for _, state := range states {
		stateByConv[state.ConversationID] = state
	}

	var peerIDs []string
	for _, conv := range convs {
		if peer := conv.Peer(userID); peer != "" {
			peerIDs = append(peerIDs, peer)
		}
	}
	peers, err := r.store.Users().GetUsers(ctx, peerIDs)
	if err != nil {
		return nil, err
	}
	peerByID := make(map[string]models.User, len(peers))
	for _, peer := range peers {
		peerByID[peer.ID] = peer
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		state := stateByConv[conv.ID]
		unread, err := r.store.Messages().CountUnread(ctx, conv.ID, userID, state.Since())
		if err != nil {
			return nil, err
		}
		summary := models.ConversationSummary{
			Conversation:     conv,
			UnreadCount:      unread,
			IsManuallyUnread: state.IsManuallyUnread,
			IsPinned:         state.IsPinned,
			PinnedAt:         state.PinnedAt,
		}
		if peer, ok := peerByID[conv.Peer(userID)]; ok {
			peer := peer
			summary.OtherUser = &peer
		}
		if conv.LastMessage == nil {
			go r.repairAsync(ctx, conv.ID)
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if a.IsPinned && a.PinnedAt != nil && b.PinnedAt != nil && !a.PinnedAt.Equal(*b.PinnedAt) {
			return a.PinnedAt.After(*b.PinnedAt)
		}
		return a.LastActivity().After(b.LastActivity())
	})
	return summaries, nil
}

func (r *Reconciler) repairAsync(ctx context.Context, conversationID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), repairTimeout)
	defer cancel()
	if err := r.RepairPreview(ctx, conversationID); err != nil {
		r.logger.Warn("preview repair failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// RepairPreview backfills a missing lastMessage from the newest visible
// message. A preview written concurrently wins.
func (r *Reconciler) RepairPreview(ctx context.Context, conversationID string) error {
	return r.store.InTx(ctx, func(tx repositories.Store) error {
		conv, err := tx.Conversations().GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.LastMessage != nil {
			return nil
		}
		latest, err := tx.Messages().LatestVisible(ctx, conversationID, "")
		if err != nil || latest == nil {
			return err
		}
		return tx.Conversations().UpdateLastMessage(ctx, conversationID, latest.Preview())
	})
}

func (r *Reconciler) participantConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	if conversationID == "" {
		return models.Conversation{}, apperr.Validation("conversationId is required")
	}
	conv, err := r.store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, apperr.Validation("not a participant")
	}
	return conv, nil
}
