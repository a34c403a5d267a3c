package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// MemoryStore is an in-memory repositories.Store. InTx snapshots the data
// and restores it when fn fails. FailOn injects errors per method name.
type MemoryStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
	clock *time.Time

	failures map[string]error
	calls    map[string]int
}

type memState struct {
	users         map[string]models.User
	conversations map[string]models.Conversation
	directKeys    map[string]string
	messages      map[string]models.Message
	messageOrder  []string
	readStates    map[string]models.ReadState
}

var (
	_ repositories.Store                  = (*MemoryStore)(nil)
	_ repositories.ConversationRepository = (*MemoryStore)(nil)
	_ repositories.MessageRepository      = (*MemoryStore)(nil)
	_ repositories.ReadStateRepository    = (*MemoryStore)(nil)
	_ repositories.UserRepository         = (*MemoryStore)(nil)
)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &MemoryStore{
		mu: &sync.Mutex{},
		state: &memState{
			users:         map[string]models.User{},
			conversations: map[string]models.Conversation{},
			directKeys:    map[string]string{},
			messages:      map[string]models.Message{},
			readStates:    map[string]models.ReadState{},
		},
		clock:    &start,
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// FailOn makes every later call to method return err.
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// ClearFailure removes an injected failure.
func (s *MemoryStore) ClearFailure(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method)
}

// Calls returns how many times method was invoked.
func (s *MemoryStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Now returns a strictly increasing timestamp.
func (s *MemoryStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick()
}

func (s *MemoryStore) tick() time.Time {
	*s.clock = s.clock.Add(time.Second)
	return *s.clock
}

// enter records the call and returns the injected failure. The caller holds mu.
func (s *MemoryStore) enter(method string) error {
	s.calls[method]++
	if err, ok := s.failures[method]; ok {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *MemoryStore) Conversations() repositories.ConversationRepository { return s }
func (s *MemoryStore) Messages() repositories.MessageRepository           { return s }
func (s *MemoryStore) ReadStates() repositories.ReadStateRepository       { return s }
func (s *MemoryStore) Users() repositories.UserRepository                 { return s }

// InTx runs fn and rolls every change back when it fails.
func (s *MemoryStore) InTx(ctx context.Context, fn func(repositories.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	if err := s.enter("InTx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.state.clone()
	s.mu.Unlock()

	tx := *s
	tx.inTx = true
	if err := fn(&tx); err != nil {
		s.mu.Lock()
		*s.state = *snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (st *memState) clone() *memState {
	out := &memState{
		users:         make(map[string]models.User, len(st.users)),
		conversations: make(map[string]models.Conversation, len(st.conversations)),
		directKeys:    make(map[string]string, len(st.directKeys)),
		messages:      make(map[string]models.Message, len(st.messages)),
		messageOrder:  append([]string(nil), st.messageOrder...),
		readStates:    make(map[string]models.ReadState, len(st.readStates)),
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.conversations {
		out.conversations[k] = cloneConversation(v)
	}
	for k, v := range st.directKeys {
		out.directKeys[k] = v
	}
	for k, v := range st.messages {
		out.messages[k] = cloneMessage(v)
	}
	for k, v := range st.readStates {
		out.readStates[k] = v
	}
	return out
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.ParticipantIDs = append([]string{}, c.ParticipantIDs...)
	if c.LastMessage != nil {
		preview := *c.LastMessage
		c.LastMessage = &preview
	}
	return c
}

func cloneMessage(m models.Message) models.Message {
	m.Reactions = append([]models.Reaction{}, m.Reactions...)
	m.DeletedBy = append([]string(nil), m.DeletedBy...)
	if m.File != nil {
		file := *m.File
		m.File = &file
	}
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		m.ReplyTo = &reply
	}
	return m
}

// Seeding helpers.

// AddUser stores a user.
func (s *MemoryStore) AddUser(id, username string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := models.User{ID: id, Username: username, CreatedAt: s.tick()}
	s.state.users[id] = user
	return user
}

// AddDirect stores a direct conversation between a and b.
func (s *MemoryStore) AddDirect(id, a, b string) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	conv := models.Conversation{ID: id, Type: models.ConversationDirect, ParticipantIDs: []string{a, b}, CreatedAt: now, UpdatedAt: now}
	s.state.conversations[id] = conv
	s.state.directKeys[models.DirectKey(a, b)] = id
	return cloneConversation(conv)
}

// AddGroup stores a group conversation.
func (s *MemoryStore) AddGroup(id, name, ownerID string, members ...string) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	conv := models.Conversation{
		ID:             id,
		Type:           models.ConversationGroup,
		Name:           name,
		OwnerID:        ownerID,
		ParticipantIDs: repositories.GroupMembers(ownerID, members),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.state.conversations[id] = conv
	return cloneConversation(conv)
}

// AddMessage stores a message as-is, filling ID and CreatedAt when empty.
func (s *MemoryStore) AddMessage(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertMessage(msg)
}

// Message returns the stored message.
func (s *MemoryStore) Message(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.state.messages[id]
	return cloneMessage(msg), ok
}

// MessagesIn returns the stored messages of a conversation in insertion order.
func (s *MemoryStore) MessagesIn(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, id := range s.state.messageOrder {
		if msg := s.state.messages[id]; msg.ConversationID == conversationID {
			out = append(out, cloneMessage(msg))
		}
	}
	return out
}

// Conversation returns the stored conversation.
func (s *MemoryStore) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.state.conversations[id]
	return cloneConversation(conv), ok
}

// ConversationCount returns how many conversations are stored.
func (s *MemoryStore) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.conversations)
}

// ReadState returns the stored read state, if any.
func (s *MemoryStore) ReadState(userID, conversationID string) (models.ReadState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.state.readStates[readStateKey(userID, conversationID)]
	return state, ok
}

// User returns the stored user.
func (s *MemoryStore) User(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.state.users[id]
	return user, ok
}

func (s *MemoryStore) insertMessage(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.tick()
	}
	if msg.Type == "" {
		msg.Type = models.MessageRegular
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	s.state.messages[msg.ID] = cloneMessage(msg)
	s.state.messageOrder = append(s.state.messageOrder, msg.ID)
	return msg
}

func readStateKey(userID, conversationID string) string {
	return userID + "|" + conversationID
}

// ConversationRepository.

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetConversation"); err != nil {
		return models.Conversation{}, err
	}
	conv, ok := s.state.conversations[conversationID]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) ListConversationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListConversationsForUser"); err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, conv := range s.state.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetOrCreateDirect(ctx context.Context, userID string, otherID string) (models.Conversation, bool, error) {
	if userID == otherID {
		return models.Conversation{}, false, apperr.Validation("cannot create chat with self")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetOrCreateDirect"); err != nil {
		return models.Conversation{}, false, err
	}
	key := models.DirectKey(userID, otherID)
	if id, ok := s.state.directKeys[key]; ok {
		return cloneConversation(s.state.conversations[id]), false, nil
	}
	// the row and its participants are separate writes, as in SQL
	now := s.tick()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		Type:           models.ConversationDirect,
		ParticipantIDs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.state.conversations[conv.ID] = conv
	s.state.directKeys[key] = conv.ID
	for _, participant := range []string{userID, otherID} {
		if err := s.enter("AddParticipant"); err != nil {
			return models.Conversation{}, false, err
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, participant)
		s.state.conversations[conv.ID] = conv
	}
	return cloneConversation(conv), true, nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateGroup"); err != nil {
		return models.Conversation{}, err
	}
	now := s.tick()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		Type:           models.ConversationGroup,
		Name:           name,
		OwnerID:        ownerID,
		ParticipantIDs: repositories.GroupMembers(ownerID, memberIDs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.state.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

func (s *MemoryStore) UpdateLastMessage(ctx context.Context, conversationID string, preview *models.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateLastMessage"); err != nil {
		return err
	}
	conv, ok := s.state.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	conv.LastMessage = nil
	if preview != nil {
		p := *preview
		conv.LastMessage = &p
	}
	conv.UpdatedAt = s.tick()
	s.state.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, conversationID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AddParticipant"); err != nil {
		return err
	}
	conv, ok := s.state.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		conv.ParticipantIDs = append(conv.ParticipantIDs, userID)
		s.state.conversations[conversationID] = conv
	}
	return nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, conversationID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RemoveParticipant"); err != nil {
		return err
	}
	conv, ok := s.state.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	conv.ParticipantIDs = conv.OtherParticipants(userID)
	s.state.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteConversation"); err != nil {
		return err
	}
	if _, ok := s.state.conversations[conversationID]; !ok {
		return repositories.ErrConversationNotFound
	}
	delete(s.state.conversations, conversationID)
	for key, id := range s.state.directKeys {
		if id == conversationID {
			delete(s.state.directKeys, key)
		}
	}
	kept := s.state.messageOrder[:0]
	for _, id := range s.state.messageOrder {
		if s.state.messages[id].ConversationID == conversationID {
			delete(s.state.messages, id)
			continue
		}
		kept = append(kept, id)
	}
	s.state.messageOrder = kept
	for key, state := range s.state.readStates {
		if state.ConversationID == conversationID {
			delete(s.state.readStates, key)
		}
	}
	return nil
}

// MessageRepository.

func (s *MemoryStore) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateMessage"); err != nil {
		return models.Message{}, err
	}
	return s.insertMessage(msg), nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetMessage"); err != nil {
		return models.Message{}, err
	}
	msg, ok := s.state.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, viewerID string, before time.Time, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListMessages"); err != nil {
		return nil, err
	}
	var out []models.Message
	for i := len(s.state.messageOrder) - 1; i >= 0 && len(out) < limit; i-- {
		msg := s.state.messages[s.state.messageOrder[i]]
		if msg.ConversationID != conversationID || msg.DeletedFor(viewerID) {
			continue
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		msg = cloneMessage(msg)
		msg.ReplyTo = nil
		if msg.ReplyToID != nil {
			if original, ok := s.state.messages[*msg.ReplyToID]; ok {
				msg.ReplyTo = original.Snippet()
			}
		}
		out = append([]models.Message{msg}, out...)
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

func (s *MemoryStore) MarkDeliveredFor(ctx context.Context, recipientID string) ([]models.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkDeliveredFor"); err != nil {
		return nil, err
	}
	var changes []models.StatusChange
	for _, id := range s.state.messageOrder {
		msg := s.state.messages[id]
		conv := s.state.conversations[msg.ConversationID]
		if conv.IsGroup() || !conv.HasParticipant(recipientID) || msg.SenderID == recipientID || msg.Status != models.StatusSent {
			continue
		}
		msg.Status = models.StatusDelivered
		s.state.messages[id] = msg
		changes = append(changes, models.StatusChange{MessageID: id, ConversationID: msg.ConversationID, SenderID: msg.SenderID})
	}
	return changes, nil
}

func (s *MemoryStore) MarkReadIn(ctx context.Context, conversationID string, readerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkReadIn"); err != nil {
		return nil, err
	}
	ids := []string{}
	for _, id := range s.state.messageOrder {
		msg := s.state.messages[id]
		if msg.ConversationID != conversationID || msg.SenderID == readerID || !msg.Status.CanAdvanceTo(models.StatusRead) {
			continue
		}
		msg.Status = models.StatusRead
		s.state.messages[id] = msg
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryStore) SetReaction(ctx context.Context, messageID string, userID string, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetReaction"); err != nil {
		return err
	}
	msg, ok := s.state.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	reactions := make([]models.Reaction, 0, len(msg.Reactions)+1)
	for _, r := range msg.Reactions {
		if r.UserID != userID {
			reactions = append(reactions, r)
		}
	}
	if emoji != "" {
		reactions = append(reactions, models.Reaction{Emoji: emoji, UserID: userID})
	}
	msg.Reactions = reactions
	s.state.messages[messageID] = msg
	return nil
}

func (s *MemoryStore) ListReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListReactions"); err != nil {
		return nil, err
	}
	msg, ok := s.state.messages[messageID]
	if !ok {
		return nil, repositories.ErrMessageNotFound
	}
	return append([]models.Reaction{}, msg.Reactions...), nil
}

func (s *MemoryStore) TogglePinned(ctx context.Context, messageID string) (bool, error) {
	var pinned bool
	err := s.updateMessage("TogglePinned", messageID, func(m *models.Message) {
		m.IsPinned = !m.IsPinned
		pinned = m.IsPinned
	})
	return pinned, err
}

func (s *MemoryStore) MarkDeleted(ctx context.Context, messageID string) error {
	return s.updateMessage("MarkDeleted", messageID, func(m *models.Message) {
		m.IsDeleted = true
		m.Content = models.DeletedPlaceholder
		m.File = nil
	})
}

func (s *MemoryStore) AddDeletedBy(ctx context.Context, messageID string, userID string) error {
	return s.updateMessage("AddDeletedBy", messageID, func(m *models.Message) {
		if !m.DeletedFor(userID) {
			m.DeletedBy = append(m.DeletedBy, userID)
		}
	})
}

func (s *MemoryStore) updateMessage(method, messageID string, fn func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return err
	}
	msg, ok := s.state.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	fn(&msg)
	s.state.messages[messageID] = msg
	return nil
}

func (s *MemoryStore) LatestVisible(ctx context.Context, conversationID string, viewerID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LatestVisible"); err != nil {
		return nil, err
	}
	for i := len(s.state.messageOrder) - 1; i >= 0; i-- {
		msg := s.state.messages[s.state.messageOrder[i]]
		if msg.ConversationID != conversationID || msg.IsDeleted {
			continue
		}
		if viewerID != "" && msg.DeletedFor(viewerID) {
			continue
		}
		out := cloneMessage(msg)
		return &out, nil
	}
	return nil, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, conversationID string, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountUnread"); err != nil {
		return 0, err
	}
	count := 0
	for _, msg := range s.state.messages {
		if msg.ConversationID == conversationID && msg.SenderID != userID && msg.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// ReadStateRepository.

func (s *MemoryStore) GetReadState(ctx context.Context, userID string, conversationID string) (models.ReadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetReadState"); err != nil {
		return models.ReadState{}, err
	}
	if state, ok := s.state.readStates[readStateKey(userID, conversationID)]; ok {
		return state, nil
	}
	return models.ReadState{UserID: userID, ConversationID: conversationID}, nil
}

func (s *MemoryStore) ListReadStates(ctx context.Context, userID string) ([]models.ReadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListReadStates"); err != nil {
		return nil, err
	}
	var out []models.ReadState
	for _, state := range s.state.readStates {
		if state.UserID == userID {
			out = append(out, state)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertReadState(ctx context.Context, userID string, conversationID string, update models.ReadStateUpdate) (models.ReadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertReadState"); err != nil {
		return models.ReadState{}, err
	}
	key := readStateKey(userID, conversationID)
	state, ok := s.state.readStates[key]
	if !ok {
		state = models.ReadState{UserID: userID, ConversationID: conversationID}
	}
	state = update.Apply(state)
	s.state.readStates[key] = state
	return state, nil
}

func (s *MemoryStore) TogglePin(ctx context.Context, userID string, conversationID string, at time.Time) (models.ReadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("TogglePin"); err != nil {
		return models.ReadState{}, err
	}
	key := readStateKey(userID, conversationID)
	state, ok := s.state.readStates[key]
	if !ok {
		state = models.ReadState{UserID: userID, ConversationID: conversationID}
	}
	state = state.TogglePin(at)
	s.state.readStates[key] = state
	return state, nil
}

// UserRepository.

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUser"); err != nil {
		return models.User{}, err
	}
	user, ok := s.state.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserByUsername"); err != nil {
		return models.User{}, err
	}
	for _, user := range s.state.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrUserNotFound
}

func (s *MemoryStore) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUsers"); err != nil {
		return nil, err
	}
	var out []models.User
	for _, id := range userIDs {
		if user, ok := s.state.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateLastSeen"); err != nil {
		return err
	}
	user, ok := s.state.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	seen := at
	user.LastSeenAt = &seen
	s.state.users[userID] = user
	return nil
}
