package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
)

type fixture struct {
	store  *mocks.MemoryStore
	hub    *mocks.RecordingHub
	online mocks.Online
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mocks.NewMemoryStore()
	store.AddUser("alice", "alice")
	store.AddUser("bob", "bob")
	store.AddUser("carol", "carol")
	hub := mocks.NewRecordingHub(0)
	online := mocks.Online{}
	rec := New(store, hub, online, nil)
	rec.now = store.Now
	return &fixture{store: store, hub: hub, online: online, rec: rec}
}

func session(userID string) models.Session {
	return models.Session{ConnID: userID + "-conn", UserID: userID, Username: userID}
}

func TestInitialStatus(t *testing.T) {
	f := newFixture(t)
	direct := f.store.AddDirect("d1", "alice", "bob")
	group := f.store.AddGroup("g1", "team", "alice", "bob")

	assert.Equal(t, models.StatusSent, f.rec.InitialStatus(direct, "alice"))

	f.online["bob"] = true
	assert.Equal(t, models.StatusDelivered, f.rec.InitialStatus(direct, "alice"))
	assert.Equal(t, models.StatusSent, f.rec.InitialStatus(group, "alice"))
}

func TestOnConnectDeliversPendingDirectMessages(t *testing.T) {
	f := newFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	f.store.AddDirect("d2", "carol", "bob")
	f.store.AddGroup("g1", "team", "alice", "bob")
	fromAlice := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "hi"})
	fromCarol := f.store.AddMessage(models.Message{ConversationID: "d2", SenderID: "carol", Content: "yo"})
	own := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "mine"})
	inGroup := f.store.AddMessage(models.Message{ConversationID: "g1", SenderID: "alice", Content: "all"})
	alreadyRead := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "old", Status: models.StatusRead})
	f.online["alice"] = true

	changes, err := f.rec.OnConnect(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, changes, 2)

	status := func(id string) models.MessageStatus {
		msg, ok := f.store.Message(id)
		require.True(t, ok)
		return msg.Status
	}
	assert.Equal(t, models.StatusDelivered, status(fromAlice.ID))
	assert.Equal(t, models.StatusDelivered, status(fromCarol.ID))
	assert.Equal(t, models.StatusSent, status(own.ID))
	assert.Equal(t, models.StatusSent, status(inGroup.ID))
	assert.Equal(t, models.StatusRead, status(alreadyRead.ID))

	delivered := f.hub.Events(models.EventMessageDelivered)
	require.Len(t, delivered, 1, "offline senders are not notified")
	assert.Equal(t, "user", delivered[0].Kind)
	assert.Equal(t, "alice", delivered[0].Target)
	assert.Equal(t, models.MessageDeliveredEvent{MessageID: fromAlice.ID, ConversationID: "d1", IsDelivered: true}, delivered[0].Payload)
}

func TestMarkReadAdvancesStatusAndResetsUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	delivered := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "one", Status: models.StatusDelivered})
	pending := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "two"})
	own := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "three"})
	require.NoError(t, f.rec.MarkUnread(ctx, session("bob"), "d1"))

	unread, err := f.rec.UnreadCount(ctx, "bob", "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	ids, err := f.rec.MarkRead(ctx, session("bob"), "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{delivered.ID, pending.ID}, ids)

	for _, id := range ids {
		msg, _ := f.store.Message(id)
		assert.Equal(t, models.StatusRead, msg.Status)
	}
	msg, _ := f.store.Message(own.ID)
	assert.Equal(t, models.StatusSent, msg.Status)

	state, ok := f.store.ReadState("bob", "d1")
	require.True(t, ok)
	assert.False(t, state.IsManuallyUnread)
	require.NotNil(t, state.LastReadAt)

	unread, err = f.rec.UnreadCount(ctx, "bob", "d1")
	require.NoError(t, err)
	assert.Zero(t, unread)

	reads := f.hub.Events(models.EventMessageRead)
	require.Len(t, reads, 1)
	assert.Equal(t, "room", reads[0].Kind)
	assert.Equal(t, "d1", reads[0].Target)
	assert.Equal(t, models.MessageReadEvent{ConversationID: "d1", MessageIDs: ids, ReaderID: "bob"}, reads[0].Payload)

	// a later reconnect never moves read messages backwards
	changes, err := f.rec.OnConnect(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, changes)
	msg, _ = f.store.Message(delivered.ID)
	assert.Equal(t, models.StatusRead, msg.Status)

	f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "four"})
	unread, err = f.rec.UnreadCount(ctx, "bob", "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkReadInGroupKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.store.AddGroup("g1", "team", "alice", "bob", "carol")
	msg := f.store.AddMessage(models.Message{ConversationID: "g1", SenderID: "alice", Content: "hello"})

	ids, err := f.rec.MarkRead(context.Background(), session("bob"), "g1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	stored, _ := f.store.Message(msg.ID)
	assert.Equal(t, models.StatusSent, stored.Status)

	reads := f.hub.Events(models.EventMessageRead)
	require.Len(t, reads, 1)
	payload := reads[0].Payload.(models.MessageReadEvent)
	assert.NotNil(t, payload.MessageIDs)
	assert.Empty(t, payload.MessageIDs)
}

func TestMarkReadRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	f.store.AddDirect("d1", "alice", "bob")

	_, err := f.rec.MarkRead(context.Background(), session("carol"), "d1")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.rec.MarkRead(context.Background(), session("bob"), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.rec.MarkRead(context.Background(), session("bob"), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Empty(t, f.hub.Emissions())
}

func TestMarkReadRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "hi"})
	f.store.FailOn("UpsertReadState", errors.New("disk full"))

	_, err := f.rec.MarkRead(context.Background(), session("bob"), "d1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

	stored, _ := f.store.Message(msg.ID)
	assert.Equal(t, models.StatusSent, stored.Status)
	assert.Empty(t, f.hub.Emissions())
}

func TestMarkUnreadNotifiesOtherSessions(t *testing.T) {
	f := newFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "hi", Status: models.StatusDelivered})

	require.NoError(t, f.rec.MarkUnread(context.Background(), session("bob"), "d1"))

	state, ok := f.store.ReadState("bob", "d1")
	require.True(t, ok)
	assert.True(t, state.IsManuallyUnread)

	stored, _ := f.store.Message(msg.ID)
	assert.Equal(t, models.StatusDelivered, stored.Status)

	events := f.hub.Events(models.EventConversationUnread)
	require.Len(t, events, 1)
	assert.Equal(t, "bob", events[0].Target)
	assert.Equal(t, "bob-conn", events[0].Except)
}

func TestTogglePinFlipsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")

	state, err := f.rec.TogglePin(ctx, session("alice"), "d1")
	require.NoError(t, err)
	assert.True(t, state.IsPinned)
	require.NotNil(t, state.PinnedAt)

	state, err = f.rec.TogglePin(ctx, session("alice"), "d1")
	require.NoError(t, err)
	assert.False(t, state.IsPinned)
	assert.Nil(t, state.PinnedAt)

	events := f.hub.Events(models.EventConversationPinned)
	require.Len(t, events, 2)
	assert.True(t, events[0].Payload.(models.ConversationPinnedEvent).IsPinned)
	assert.False(t, events[1].Payload.(models.ConversationPinnedEvent).IsPinned)
}

func TestConcurrentTogglePinKeepsEveryFlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.TogglePin(ctx, session("alice"), "d1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, ok := f.store.ReadState("alice", "d1")
	require.True(t, ok)
	assert.False(t, state.IsPinned)
	assert.Nil(t, state.PinnedAt)
	assert.Len(t, f.hub.Events(models.EventConversationPinned), 8)
}

func TestSummariesOrderAndRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	f.store.AddDirect("d2", "alice", "carol")
	f.store.AddGroup("g1", "team", "alice", "bob", "carol")

	older := f.store.Now()
	newer := f.store.Now()
	require.NoError(t, f.store.UpdateLastMessage(ctx, "d1", &models.LastMessage{Content: "old", SenderID: "bob", Timestamp: older}))
	require.NoError(t, f.store.UpdateLastMessage(ctx, "d2", &models.LastMessage{Content: "new", SenderID: "carol", Timestamp: newer}))
	f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "unread"})
	groupMsg := f.store.AddMessage(models.Message{ConversationID: "g1", SenderID: "bob", Content: "group hello"})
	_, err := f.rec.TogglePin(ctx, session("alice"), "g1")
	require.NoError(t, err)

	summaries, err := f.rec.Summaries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, "g1", summaries[0].ID)
	assert.True(t, summaries[0].IsPinned)
	assert.Nil(t, summaries[0].OtherUser)
	assert.Equal(t, "d2", summaries[1].ID)
	assert.Equal(t, "d1", summaries[2].ID)
	require.NotNil(t, summaries[2].OtherUser)
	assert.Equal(t, "bob", summaries[2].OtherUser.Username)
	assert.Equal(t, 1, summaries[2].UnreadCount)

	require.Eventually(t, func() bool {
		conv, _ := f.store.Conversation("g1")
		return conv.LastMessage != nil
	}, time.Second, 10*time.Millisecond)
	conv, _ := f.store.Conversation("g1")
	assert.Equal(t, "group hello", conv.LastMessage.Content)
	assert.Equal(t, groupMsg.CreatedAt, conv.LastMessage.Timestamp)
}

func TestRepairPreviewSkipsDeletedAndKeepsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "visible"})
	f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: models.DeletedPlaceholder, IsDeleted: true})

	require.NoError(t, f.rec.RepairPreview(ctx, "d1"))
	conv, _ := f.store.Conversation("d1")
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "visible", conv.LastMessage.Content)

	require.NoError(t, f.store.UpdateLastMessage(ctx, "d1", &models.LastMessage{Content: "fresh", SenderID: "bob", Timestamp: f.store.Now()}))
	require.NoError(t, f.rec.RepairPreview(ctx, "d1"))
	conv, _ = f.store.Conversation("d1")
	assert.Equal(t, "fresh", conv.LastMessage.Content)
}

func TestRepairPreviewWithNoMessages(t *testing.T) {
	f := newFixture(t)
	f.store.AddDirect("d1", "alice", "bob")

	require.NoError(t, f.rec.RepairPreview(context.Background(), "d1"))
	conv, _ := f.store.Conversation("d1")
	assert.Nil(t, conv.LastMessage)
}
