package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

type memberRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

func (r *Router) createGroup(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req createGroupRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	conv, err := r.CreateGroup(ctx, s, req.Name, req.MemberIDs)
	if err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: conv.ID, Data: conv}, nil
}

func (r *Router) addToGroup(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req memberRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if err := r.AddToGroup(ctx, s, req.ConversationID, req.UserID); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) removeFromGroup(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req memberRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if err := r.RemoveFromGroup(ctx, s, req.ConversationID, req.UserID); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) leaveGroup(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if err := r.LeaveGroup(ctx, s, req.ConversationID); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID}, nil
}

func (r *Router) deleteGroup(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error) {
	var req conversationRequest
	if err := decode(data, &req); err != nil {
		return models.Ack{}, err
	}
	if err := r.DeleteGroup(ctx, s, req.ConversationID); err != nil {
		return models.Ack{}, err
	}
	return models.Ack{ConversationID: req.ConversationID}, nil
}

// CreateGroup creates a group owned by the session's user with a system
// message announcing it, then joins every member's connections.
func (r *Router) CreateGroup(ctx context.Context, s models.Session, name string, memberIDs []string) (models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Conversation{}, apperr.Validation("group name is required")
	}
	members := repositories.GroupMembers(s.UserID, memberIDs)
	if len(members) < 2 {
		return models.Conversation{}, apperr.Validation("a group needs at least one other member")
	}
	users, err := r.store.Users().GetUsers(ctx, members)
	if err != nil {
		return models.Conversation{}, err
	}
	if len(users) != len(members) {
		return models.Conversation{}, repositories.ErrUserNotFound
	}
	usernames := make(map[string]string, len(users))
	for _, user := range users {
		usernames[user.ID] = user.Username
	}
	added := make([]string, 0, len(members)-1)
	for _, id := range members[1:] {
		added = append(added, usernames[id])
	}
	text := fmt.Sprintf("%s created the group \"%s\" and added %s", usernames[s.UserID], name, strings.Join(added, ", "))

	var conv models.Conversation
	var system models.Message
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		var err error
		conv, err = tx.Conversations().CreateGroup(ctx, s.UserID, name, members)
		if err != nil {
			return err
		}
		system, err = appendSystemMessage(ctx, tx, conv.ID, s.UserID, text)
		return err
	})
	if err != nil {
		return models.Conversation{}, err
	}
	conv.LastMessage = system.Preview()

	for _, member := range conv.ParticipantIDs {
		r.hub.JoinUser(member, conv.ID)
		r.hub.EmitToUser(member, models.EventGroupCreated, models.GroupEvent{
			ConversationID: conv.ID,
			Name:           conv.Name,
			Conversation:   &conv,
		})
	}
	r.hub.Emit(conv.ID, models.EventReceiveMessage, models.MessagePayload{Message: system, SenderUsername: s.Username})
	r.auditf(ctx, s, fmt.Sprintf("group %s created with %d members", conv.ID, len(conv.ParticipantIDs)))
	return conv, nil
}

// AddToGroup adds a user to a group. Owner only.
func (r *Router) AddToGroup(ctx context.Context, s models.Session, conversationID, userID string) error {
	// membership is checked and changed under the same lock
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.ownedGroup(ctx, s.UserID, conversationID, "only the group owner can add members")
	if err != nil {
		return err
	}
	if userID == "" {
		return apperr.Validation("userId is required")
	}
	target, err := r.store.Users().GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if conv.HasParticipant(target.ID) {
		return apperr.Validation("user is already a member of this group")
	}

	text := fmt.Sprintf("%s added %s to the group", s.Username, target.Username)
	var system models.Message
	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		if err := tx.Conversations().AddParticipant(ctx, conv.ID, target.ID); err != nil {
			return err
		}
		var err error
		system, err = appendSystemMessage(ctx, tx, conv.ID, s.UserID, text)
		return err
	})
	if err != nil {
		return err
	}
	conv.ParticipantIDs = append(conv.ParticipantIDs, target.ID)
	conv.LastMessage = system.Preview()

	r.hub.JoinUser(target.ID, conv.ID)
	r.hub.Emit(conv.ID, models.EventReceiveMessage, models.MessagePayload{Message: system, SenderUsername: s.Username})
	r.hub.Emit(conv.ID, models.EventMemberAdded, models.MemberEvent{
		ConversationID: conv.ID,
		UserID:         target.ID,
		Username:       target.Username,
		Conversation:   &conv,
	})
	r.auditf(ctx, s, fmt.Sprintf("user %s added to group %s", target.ID, conv.ID))
	return nil
}

// RemoveFromGroup removes a member from a group. Owner only; the owner
// cannot remove themselves.
func (r *Router) RemoveFromGroup(ctx context.Context, s models.Session, conversationID, userID string) error {
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.ownedGroup(ctx, s.UserID, conversationID, "only the group owner can remove members")
	if err != nil {
		return err
	}
	if userID == s.UserID {
		return apperr.Validation("owner cannot remove themselves from the group")
	}
	if !conv.HasParticipant(userID) {
		return apperr.Validation("user is not a member of this group")
	}
	target, err := r.store.Users().GetUser(ctx, userID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s removed %s from the group", s.Username, target.Username)
	system, err := r.removeMember(ctx, conv.ID, target.ID, s.UserID, text)
	if err != nil {
		return err
	}

	r.hub.LeaveUser(target.ID, conv.ID)
	r.hub.Emit(conv.ID, models.EventReceiveMessage, models.MessagePayload{Message: system, SenderUsername: s.Username})
	r.hub.Emit(conv.ID, models.EventMemberRemoved, models.MemberEvent{
		ConversationID: conv.ID,
		UserID:         target.ID,
		Username:       target.Username,
	})
	r.hub.EmitToUser(target.ID, models.EventRemovedFromGroup, models.GroupEvent{ConversationID: conv.ID, Name: conv.Name})
	r.auditf(ctx, s, fmt.Sprintf("user %s removed from group %s", target.ID, conv.ID))
	return nil
}

// LeaveGroup removes the session's user from a group they do not own.
func (r *Router) LeaveGroup(ctx context.Context, s models.Session, conversationID string) error {
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.participantConversation(ctx, s.UserID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return apperr.Validation("not a group")
	}
	if conv.OwnerID == s.UserID {
		return apperr.Validation("owner cannot leave the group, delete it instead")
	}

	system, err := r.removeMember(ctx, conv.ID, s.UserID, s.UserID, fmt.Sprintf("%s left the group", s.Username))
	if err != nil {
		return err
	}

	r.hub.LeaveUser(s.UserID, conv.ID)
	r.hub.Emit(conv.ID, models.EventReceiveMessage, models.MessagePayload{Message: system, SenderUsername: s.Username})
	r.hub.Emit(conv.ID, models.EventMemberRemoved, models.MemberEvent{
		ConversationID: conv.ID,
		UserID:         s.UserID,
		Username:       s.Username,
	})
	r.hub.EmitToUserExcept(s.UserID, s.ConnID, models.EventRemovedFromGroup, models.GroupEvent{ConversationID: conv.ID, Name: conv.Name})
	r.auditf(ctx, s, fmt.Sprintf("user %s left group %s", s.UserID, conv.ID))
	return nil
}

// DeleteGroup deletes a group with all of its messages. Owner only.
func (r *Router) DeleteGroup(ctx context.Context, s models.Session, conversationID string) error {
	unlock := r.locks.Lock(conversationID)
	defer unlock()

	conv, err := r.ownedGroup(ctx, s.UserID, conversationID, "only the group owner can delete the group")
	if err != nil {
		return err
	}

	err = r.store.InTx(ctx, func(tx repositories.Store) error {
		return tx.Conversations().DeleteConversation(ctx, conv.ID)
	})
	if err != nil {
		return err
	}

	for _, member := range conv.ParticipantIDs {
		r.hub.LeaveUser(member, conv.ID)
		r.hub.EmitToUser(member, models.EventGroupDeleted, models.GroupEvent{ConversationID: conv.ID, Name: conv.Name})
	}
	r.auditf(ctx, s, fmt.Sprintf("group %s deleted", conv.ID))
	return nil
}

// ownedGroup loads a group and checks the user owns it. Non-owners get
// denied as a validation error.
func (r *Router) ownedGroup(ctx context.Context, userID, conversationID, denied string) (models.Conversation, error) {
	if conversationID == "" {
		return models.Conversation{}, apperr.Validation("conversationId is required")
	}
	conv, err := r.store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.IsGroup() {
		return models.Conversation{}, apperr.Validation("not a group")
	}
	if conv.OwnerID != userID {
		return models.Conversation{}, apperr.Validation(denied)
	}
	return conv, nil
}

func (r *Router) removeMember(ctx context.Context, conversationID, userID, actorID, text string) (models.Message, error) {
	var system models.Message
	err := r.store.InTx(ctx, func(tx repositories.Store) error {
		if err := tx.Conversations().RemoveParticipant(ctx, conversationID, userID); err != nil {
			return err
		}
		var err error
		system, err = appendSystemMessage(ctx, tx, conversationID, actorID, text)
		return err
	})
	return system, err
}

// appendSystemMessage stores a system message and makes it the conversation
// preview. It runs inside the caller's transaction.
func appendSystemMessage(ctx context.Context, tx repositories.Store, conversationID, actorID, text string) (models.Message, error) {
	msg, err := tx.Messages().CreateMessage(ctx, models.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        text,
		Type:           models.MessageSystem,
		Status:         models.StatusSent,
	})
	if err != nil {
		return models.Message{}, err
	}
	if err := tx.Conversations().UpdateLastMessage(ctx, conversationID, msg.Preview()); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}
