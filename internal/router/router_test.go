package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/apperr"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/presence"
	"chat-core/internal/reconcile"
)

type routerFixture struct {
	store    *mocks.MemoryStore
	hub      *mocks.RecordingHub
	presence *presence.Registry
	audit    *mocks.AuditMock
	router   *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	store := mocks.NewMemoryStore()
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		store.AddUser(name, name)
	}
	hub := mocks.NewRecordingHub(0)
	reg := presence.NewRegistry(store, nil)
	audit := new(mocks.AuditMock)
	audit.On("Emit", mock.Anything, "INFO", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	rec := reconcile.New(store, hub, reg, nil)
	return &routerFixture{
		store:    store,
		hub:      hub,
		presence: reg,
		audit:    audit,
		router:   New(store, hub, reg, rec, audit, nil),
	}
}

func sess(userID string) models.Session {
	return models.Session{ConnID: userID + "-1", UserID: userID, Username: userID}
}

func (f *routerFixture) send(s models.Session, event string, payload interface{}) models.Ack {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return f.router.Dispatch(context.Background(), s, event, data)
}

func (f *routerFixture) connect(s models.Session) {
	f.router.Connect(context.Background(), s)
}

func TestDispatchUnknownEvent(t *testing.T) {
	f := newRouterFixture(t)

	ack := f.router.Dispatch(context.Background(), sess("alice"), "launch_rockets", nil)
	assert.False(t, ack.Success)
	assert.Equal(t, "unknown event", ack.Error)
}

func TestDispatchRejectsMalformedPayload(t *testing.T) {
	f := newRouterFixture(t)

	ack := f.router.Dispatch(context.Background(), sess("alice"), models.EventSendMessage, json.RawMessage(`{"conversationId":`))
	assert.Equal(t, "invalid payload", ack.Error)

	ack = f.router.Dispatch(context.Background(), sess("alice"), models.EventSendMessage, nil)
	assert.Equal(t, "missing payload", ack.Error)
}

func TestSendMessageToOfflineRecipient(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	alice := sess("alice")
	f.connect(alice)

	ack := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "  hello  "})
	require.True(t, ack.Success, ack.Error)
	require.NotEmpty(t, ack.MessageID)

	stored, ok := f.store.Message(ack.MessageID)
	require.True(t, ok)
	assert.Equal(t, "hello", stored.Content)
	assert.Equal(t, models.StatusSent, stored.Status)

	conv, _ := f.store.Conversation("d1")
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hello", conv.LastMessage.Content)
	assert.Equal(t, "alice", conv.LastMessage.SenderID)

	received := f.hub.Events(models.EventReceiveMessage)
	require.Len(t, received, 1)
	assert.Equal(t, "fanout", received[0].Kind)
	assert.Equal(t, "d1", received[0].Target)
	assert.Equal(t, []string{"bob"}, received[0].Users)
	payload := received[0].Payload.(models.MessagePayload)
	assert.Equal(t, ack.MessageID, payload.ID)
	assert.Equal(t, "alice", payload.SenderUsername)
	assert.Nil(t, payload.ReplyTo)
	assert.Empty(t, f.hub.Events(models.EventMessageDelivered))

	// bob comes online and the pending message is delivered
	f.connect(sess("bob"))
	stored, _ = f.store.Message(ack.MessageID)
	assert.Equal(t, models.StatusDelivered, stored.Status)
	delivered := f.hub.Events(models.EventMessageDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "alice", delivered[0].Target)
	assert.Equal(t, ack.MessageID, delivered[0].Payload.(models.MessageDeliveredEvent).MessageID)
}

func TestSendMessageToOnlineRecipient(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	alice := sess("alice")
	f.connect(alice)
	f.connect(sess("bob"))

	ack := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "hi"})
	require.True(t, ack.Success, ack.Error)

	stored, _ := f.store.Message(ack.MessageID)
	assert.Equal(t, models.StatusDelivered, stored.Status)

	delivered := f.hub.Events(models.EventMessageDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "user", delivered[0].Kind)
	assert.Equal(t, "alice", delivered[0].Target)
}

func TestSendMessageInGroupStaysSent(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddGroup("g1", "team", "alice", "bob", "carol")
	f.connect(sess("bob"))

	ack := f.send(sess("alice"), models.EventSendMessage, map[string]string{"conversationId": "g1", "content": "hey all"})
	require.True(t, ack.Success, ack.Error)

	stored, _ := f.store.Message(ack.MessageID)
	assert.Equal(t, models.StatusSent, stored.Status)
	received := f.hub.Events(models.EventReceiveMessage)
	require.Len(t, received, 1)
	assert.Equal(t, []string{"bob", "carol"}, received[0].Users)
}

func TestSendMessageWithReply(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	f.store.AddDirect("d2", "alice", "carol")
	original := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "question?"})
	elsewhere := f.store.AddMessage(models.Message{ConversationID: "d2", SenderID: "carol", Content: "other"})
	alice := sess("alice")

	ack := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "answer", "replyToId": original.ID})
	require.True(t, ack.Success, ack.Error)
	stored, _ := f.store.Message(ack.MessageID)
	require.NotNil(t, stored.ReplyToID)
	assert.Equal(t, original.ID, *stored.ReplyToID)

	payload := f.hub.Events(models.EventReceiveMessage)[0].Payload.(models.MessagePayload)
	assert.Equal(t, &models.ReplySnippet{ID: original.ID, Content: "question?", SenderID: "bob"}, payload.ReplyTo)

	ack = f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "x", "replyToId": elsewhere.ID})
	assert.Equal(t, "reply target belongs to another conversation", ack.Error)

	ack = f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "x", "replyToId": "missing"})
	assert.Equal(t, "message not found", ack.Error)
}

func TestSendMessageFile(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")

	ack := f.send(sess("alice"), models.EventSendMessage, map[string]interface{}{
		"conversationId": "d1",
		"fileUrl":        "https://cdn.example.com/cat.png",
		"fileName":       "cat.png",
		"fileSize":       2048,
		"fileType":       "image/png",
	})
	require.True(t, ack.Success, ack.Error)

	stored, _ := f.store.Message(ack.MessageID)
	assert.Equal(t, models.MessageImage, stored.Type)
	require.NotNil(t, stored.File)
	assert.Equal(t, "cat.png", stored.File.Name)
	conv, _ := f.store.Conversation("d1")
	assert.Equal(t, "📷 Image", conv.LastMessage.Content)
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		payload map[string]string
		want    string
	}{
		{name: "blank content", userID: "alice", payload: map[string]string{"conversationId": "d1", "content": "   "}, want: "empty message"},
		{name: "missing conversation id", userID: "alice", payload: map[string]string{"content": "hi"}, want: "conversationId is required"},
		{name: "unknown conversation", userID: "alice", payload: map[string]string{"conversationId": "nope", "content": "hi"}, want: "conversation not found"},
		{name: "not a participant", userID: "carol", payload: map[string]string{"conversationId": "d1", "content": "hi"}, want: "not a participant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.store.AddDirect("d1", "alice", "bob")

			ack := f.send(sess(tt.userID), models.EventSendMessage, tt.payload)
			assert.False(t, ack.Success)
			assert.Equal(t, tt.want, ack.Error)
			assert.Zero(t, f.store.Calls("CreateMessage"))
			assert.Empty(t, f.hub.Emissions())
		})
	}
}

func TestSendMessagePersistenceFailureLeavesNoTrace(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	f.store.FailOn("UpdateLastMessage", errors.New("connection reset"))

	ack := f.send(sess("alice"), models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "hi"})
	assert.False(t, ack.Success)
	assert.Equal(t, "internal error", ack.Error)
	assert.Empty(t, f.store.MessagesIn("d1"))
	assert.Empty(t, f.hub.Emissions())
}

func TestConcurrentSendsBroadcastInPersistedOrder(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddGroup("g1", "team", "alice", "bob", "carol")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := []string{"alice", "bob", "carol"}[i%3]
			ack := f.send(sess(sender), models.EventSendMessage, map[string]string{"conversationId": "g1", "content": fmt.Sprintf("m%d", i)})
			assert.True(t, ack.Success, ack.Error)
		}(i)
	}
	wg.Wait()

	var broadcast []string
	for _, e := range f.hub.Events(models.EventReceiveMessage) {
		broadcast = append(broadcast, e.Payload.(models.MessagePayload).ID)
	}
	var persisted []string
	for _, msg := range f.store.MessagesIn("g1") {
		persisted = append(persisted, msg.ID)
	}
	assert.Len(t, persisted, 20)
	assert.Equal(t, persisted, broadcast)
	assert.Zero(t, f.router.locks.size())
}

func TestReactionsKeepOnePerUser(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "nice"})
	alice := sess("alice")
	react := func(event, emoji string) []models.Reaction {
		ack := f.send(alice, event, map[string]string{"messageId": msg.ID, "emoji": emoji})
		require.True(t, ack.Success, ack.Error)
		stored, _ := f.store.Message(msg.ID)
		return stored.Reactions
	}

	assert.Equal(t, []models.Reaction{{Emoji: "👍", UserID: "alice"}}, react(models.EventAddReaction, "👍"))
	assert.Empty(t, react(models.EventToggleReaction, "👍"))
	react(models.EventAddReaction, "❤️")
	assert.Equal(t, []models.Reaction{{Emoji: "🔥", UserID: "alice"}}, react(models.EventToggleReaction, "🔥"))

	updates := f.hub.Events(models.EventMessageReactionUpdate)
	require.Len(t, updates, 4)
	assert.Equal(t, "room", updates[3].Kind)
	assert.Equal(t, "d1", updates[3].Target)

	ack := f.send(sess("carol"), models.EventAddReaction, map[string]string{"messageId": msg.ID, "emoji": "👍"})
	assert.Equal(t, "not a participant", ack.Error)
	ack = f.send(alice, models.EventAddReaction, map[string]string{"messageId": msg.ID})
	assert.Equal(t, "emoji is required", ack.Error)
}

func TestTogglePinMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "remember this"})

	ack := f.send(sess("alice"), models.EventTogglePinMessage, map[string]string{"messageId": msg.ID})
	require.True(t, ack.Success, ack.Error)
	assert.Equal(t, pinAck{Content: "remember this", IsPinned: true}, ack.Data)

	ack = f.send(sess("bob"), models.EventTogglePinMessage, map[string]string{"messageId": msg.ID})
	require.True(t, ack.Success, ack.Error)
	assert.Equal(t, pinAck{Content: "remember this", IsPinned: false}, ack.Data)

	pins := f.hub.Events(models.EventMessagePinned)
	require.Len(t, pins, 2)
	assert.True(t, pins[0].Payload.(models.MessagePinnedEvent).IsPinned)
	assert.False(t, pins[1].Payload.(models.MessagePinnedEvent).IsPinned)
}

func TestDeleteMessageRecomputesPreview(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	alice := sess("alice")
	first := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "first"})
	second := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "second"})
	f.hub.Reset()

	ack := f.send(sess("bob"), models.EventDeleteMessage, map[string]string{"messageId": second.MessageID})
	assert.Equal(t, "only the sender can delete a message", ack.Error)
	assert.Empty(t, f.hub.Emissions())

	ack = f.send(alice, models.EventDeleteMessage, map[string]string{"messageId": second.MessageID})
	require.True(t, ack.Success, ack.Error)

	stored, _ := f.store.Message(second.MessageID)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, stored.Content)
	conv, _ := f.store.Conversation("d1")
	assert.Equal(t, "first", conv.LastMessage.Content)

	deleted := f.hub.Events(models.EventMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "d1", deleted[0].Target)
	updated := f.hub.Events(models.EventConversationUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "fanout", updated[0].Kind)
	assert.Equal(t, []string{"alice", "bob"}, updated[0].Users)

	// deleting again acks without broadcasting
	f.hub.Reset()
	ack = f.send(alice, models.EventDeleteMessage, map[string]string{"messageId": second.MessageID})
	assert.True(t, ack.Success)
	assert.Empty(t, f.hub.Emissions())

	ack = f.send(alice, models.EventDeleteMessage, map[string]string{"messageId": first.MessageID})
	require.True(t, ack.Success)
	conv, _ = f.store.Conversation("d1")
	assert.Nil(t, conv.LastMessage)
}

func TestDeleteMessageForMe(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	alice := sess("alice")
	f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "keep"})
	hidden := f.send(alice, models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "oops"})
	f.hub.Reset()

	bob := sess("bob")
	ack := f.send(bob, models.EventDeleteMessageForMe, map[string]string{"messageId": hidden.MessageID})
	require.True(t, ack.Success, ack.Error)
	ack = f.send(bob, models.EventDeleteMessageForMe, map[string]string{"messageId": hidden.MessageID})
	require.True(t, ack.Success, ack.Error)

	stored, _ := f.store.Message(hidden.MessageID)
	assert.Equal(t, []string{"bob"}, stored.DeletedBy)
	assert.False(t, stored.IsDeleted)

	updated := f.hub.Events(models.EventConversationUpdated)
	require.Len(t, updated, 2)
	assert.Equal(t, "user", updated[0].Kind)
	assert.Equal(t, "bob", updated[0].Target)
	assert.Equal(t, bob.ConnID, updated[0].Except)
	payload := updated[0].Payload.(models.ConversationUpdatedEvent)
	assert.True(t, payload.DeletedForMe)
	assert.Equal(t, "keep", payload.LastMessage.Content)
	assert.Empty(t, f.hub.Events(models.EventMessageDeleted))

	forBob, err := f.router.ListMessages(ctx, "bob", "d1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, "keep", forBob[0].Content)

	forAlice, err := f.router.ListMessages(ctx, "alice", "d1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, forAlice, 2)
}

func TestTypingRequiresRoom(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	alice := sess("alice")

	ack := f.send(alice, models.EventTyping, map[string]interface{}{"conversationId": "d1", "isTyping": true})
	assert.Equal(t, "not in conversation", ack.Error)

	ack = f.send(alice, models.EventJoinConversation, map[string]string{"conversationId": "d1"})
	require.True(t, ack.Success, ack.Error)
	ack = f.send(alice, models.EventTyping, map[string]interface{}{"conversationId": "d1", "isTyping": true})
	require.True(t, ack.Success, ack.Error)

	typing := f.hub.Events(models.EventUserTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, alice.ConnID, typing[0].Except)
	assert.Equal(t, models.TypingEvent{UserID: "alice", Username: "alice", ConversationID: "d1", IsTyping: true}, typing[0].Payload)

	ack = f.send(sess("carol"), models.EventJoinConversation, map[string]string{"conversationId": "d1"})
	assert.Equal(t, "not a participant", ack.Error)
	assert.False(t, f.hub.InRoom("carol-1", "d1"))
}

func TestReadAndPinConversationEvents(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: "hi"})
	bob := sess("bob")

	ack := f.send(bob, models.EventMarkConversationUnread, map[string]string{"conversationId": "d1"})
	require.True(t, ack.Success, ack.Error)
	ack = f.send(bob, models.EventMarkMessagesRead, map[string]string{"conversationId": "d1"})
	require.True(t, ack.Success, ack.Error)
	assert.Equal(t, []string{msg.ID}, ack.Data)

	state, _ := f.store.ReadState("bob", "d1")
	assert.False(t, state.IsManuallyUnread)

	ack = f.send(bob, models.EventTogglePinConversation, map[string]string{"conversationId": "d1"})
	require.True(t, ack.Success, ack.Error)
	assert.True(t, ack.Data.(models.ConversationPinnedEvent).IsPinned)
}

func TestConnectAndDisconnectLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	first := models.Session{ConnID: "a1", UserID: "alice", Username: "alice"}
	second := models.Session{ConnID: "a2", UserID: "alice", Username: "alice"}

	f.connect(first)
	f.connect(second)
	assert.Len(t, f.hub.Events(models.EventUserOnline), 1)
	active := f.hub.Events(models.EventActiveUsers)
	require.Len(t, active, 2)
	assert.Equal(t, "a2", active[1].Target)
	assert.Equal(t, models.ActiveUsersEvent{UserIDs: []string{"alice"}}, active[1].Payload)
	assert.Equal(t, []string{"a1", "a2"}, f.hub.JoinedAll())
	assert.Equal(t, []string{"alice"}, f.router.OnlineUsers())

	f.router.Disconnect(ctx, first)
	assert.Empty(t, f.hub.Events(models.EventUserOffline))

	f.router.Disconnect(ctx, second)
	offline := f.hub.Events(models.EventUserOffline)
	require.Len(t, offline, 1)
	payload := offline[0].Payload.(models.UserOfflineEvent)
	assert.Equal(t, "alice", payload.UserID)

	user, _ := f.store.User("alice")
	require.NotNil(t, user.LastSeenAt)
	assert.True(t, user.LastSeenAt.Equal(payload.LastSeen))
	assert.Empty(t, f.router.OnlineUsers())
}

func TestDisconnectStillAnnouncesWhenLastSeenFails(t *testing.T) {
	f := newRouterFixture(t)
	f.store.FailOn("UpdateLastSeen", errors.New("db down"))
	alice := sess("alice")
	f.connect(alice)

	f.router.Disconnect(context.Background(), alice)
	assert.Len(t, f.hub.Events(models.EventUserOffline), 1)
	assert.False(t, f.presence.IsOnline("alice"))
}

func TestStartDirectChat(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	conv, created, err := f.router.StartDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.ParticipantIDs)
	assert.Equal(t, []string{"user:alice", "user:bob"}, f.hub.Members(conv.ID))

	again, created, err := f.router.StartDirectChat(ctx, "bob", " alice ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, 1, f.store.ConversationCount())

	_, _, err = f.router.StartDirectChat(ctx, "alice", "alice")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, _, err = f.router.StartDirectChat(ctx, "alice", "zed")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, _, err = f.router.StartDirectChat(ctx, "alice", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListMessagesPaging(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	var created []models.Message
	for i := 0; i < 5; i++ {
		created = append(created, f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "alice", Content: fmt.Sprintf("m%d", i)}))
	}

	page, err := f.router.ListMessages(ctx, "bob", "d1", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].Content)
	assert.Equal(t, "m4", page[1].Content)

	page, err = f.router.ListMessages(ctx, "bob", "d1", created[3].CreatedAt, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].Content)

	_, err = f.router.ListMessages(ctx, "carol", "d1", time.Time{}, 10)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStartDirectChatRollsBackWhenParticipantsFail(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.FailOn("AddParticipant", errors.New("connection reset"))

	_, _, err := f.router.StartDirectChat(ctx, "alice", "bob")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Zero(t, f.store.ConversationCount())
	assert.Empty(t, f.hub.Emissions())

	f.store.ClearFailure("AddParticipant")
	conv, created, err := f.router.StartDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.ParticipantIDs)
}

func TestConcurrentPinTogglesKeepEveryFlip(t *testing.T) {
	f := newRouterFixture(t)
	f.store.AddDirect("d1", "alice", "bob")
	msg := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "remember this"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	pinnedAcks := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ack := f.send(sess([]string{"alice", "bob"}[i%2]), models.EventTogglePinMessage, map[string]string{"messageId": msg.ID})
			if assert.True(t, ack.Success, ack.Error) && ack.Data.(pinAck).IsPinned {
				mu.Lock()
				pinnedAcks++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	stored, _ := f.store.Message(msg.ID)
	assert.False(t, stored.IsPinned)
	assert.Equal(t, 5, pinnedAcks)
}

func TestListMessagesIncludesReplySnippet(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddDirect("d1", "alice", "bob")
	original := f.store.AddMessage(models.Message{ConversationID: "d1", SenderID: "bob", Content: "question?"})

	ack := f.send(sess("alice"), models.EventSendMessage, map[string]string{"conversationId": "d1", "content": "answer", "replyToId": original.ID})
	require.True(t, ack.Success, ack.Error)

	page, err := f.router.ListMessages(ctx, "bob", "d1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Nil(t, page[0].ReplyTo)
	assert.Equal(t, &models.ReplySnippet{ID: original.ID, Content: "question?", SenderID: "bob"}, page[1].ReplyTo)

	ack = f.send(sess("bob"), models.EventDeleteMessage, map[string]string{"messageId": original.ID})
	require.True(t, ack.Success, ack.Error)
	page, err = f.router.ListMessages(ctx, "bob", "d1", time.Time{}, 10)
	require.NoError(t, err)
	require.NotNil(t, page[1].ReplyTo)
	assert.Equal(t, models.DeletedPlaceholder, page[1].ReplyTo.Content)
}
