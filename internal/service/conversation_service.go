package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mchat/internal/domain"
	"mchat/internal/realtime"
)

// Events published to a conversation's channel.
const (
	EventParticipantAdded       = "participant_added"
	EventParticipantRemoved     = "participant_removed"
	EventParticipantRoleUpdated = "participant_role_updated"
	EventParticipantMuted       = "participant_muted"
	EventConversationUpdated    = "conversation_updated"
	EventConversationDeleted    = "conversation_deleted"
	EventMessageCreated         = "message_created"
	EventMessageUpdated         = "message_updated"
	EventMessageDeleted         = "message_deleted"
)

// ChannelFor returns the realtime channel name for a conversation.
func ChannelFor(conversationID int64) string {
	return fmt.Sprintf("conversation-%d", conversationID)
}

// ConversationService owns conversation lifecycle and roster management:
// creation, membership, roles, mute flags, and every authorization decision
// gating those mutations.
type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	users         domain.UserRepository
	publisher     realtime.Publisher
	log           zerolog.Logger
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	users domain.UserRepository,
	publisher realtime.Publisher,
	log zerolog.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		users:         users,
		publisher:     publisher,
		log:           log,
	}
}

type ConversationCreateInput struct {
	Name           *string
	Description    *string
	IsGroup        bool
	ParticipantIDs []int64
}

type ConversationPatch struct {
	Name        *string
	Description *string
}

type participantEvent struct {
	ConversationID int64       `json:"conversation_id"`
	UserID         int64       `json:"user_id"`
	Role           domain.Role `json:"role,omitempty"`
	IsMuted        *bool       `json:"is_muted,omitempty"`
}

type conversationEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

// Create creates a conversation and its initial roster. The creator always
// joins as admin; the other initial members as member. A direct conversation
// takes exactly one other participant and no name, and creating one that
// already exists between the same pair returns the existing conversation.
func (s *ConversationService) Create(
	ctx context.Context,
	in ConversationCreateInput,
	creatorID int64,
) (*domain.ConversationDetail, error) {
	others := dedupe(in.ParticipantIDs, creatorID)

	if in.IsGroup {
		if in.Name == nil || *in.Name == "" {
			return nil, fmt.Errorf("%w: a group conversation requires a name", domain.ErrInvalidInput)
		}
	} else {
		if in.Name != nil {
			return nil, fmt.Errorf("%w: a direct conversation has no name", domain.ErrInvalidInput)
		}
		if len(others) != 1 {
			return nil, fmt.Errorf("%w: a direct conversation takes exactly one other participant", domain.ErrInvalidInput)
		}
	}

	if err := s.verifyUsersExist(ctx, append(others, creatorID)); err != nil {
		return nil, err
	}

	if !in.IsGroup {
		existing, err := s.conversations.FindDirectBetween(ctx, creatorID, others[0])
		if err != nil {
			return nil, fmt.Errorf("find direct conversation: %w", err)
		}
		if existing != nil {
			return s.detail(ctx, existing)
		}
	}

	conv := &domain.Conversation{
		Name:        in.Name,
		Description: in.Description,
		IsGroup:     in.IsGroup,
		CreatedBy:   creatorID,
	}
	roster := make([]*domain.Participant, 0, len(others)+1)
	roster = append(roster, &domain.Participant{UserID: creatorID, Role: domain.RoleAdmin})
	for _, id := range others {
		roster = append(roster, &domain.Participant{UserID: id, Role: domain.RoleMember})
	}

	if err := s.conversations.Create(ctx, conv, roster); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return s.detail(ctx, conv)
}

// Get returns the conversation with its roster. Callers outside the roster
// get ErrForbidden even when the conversation exists.
func (s *ConversationService) Get(ctx context.Context, conversationID, callerID int64) (*domain.ConversationDetail, error) {
	conv, _, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, conv)
}

// List pages through the caller's conversations ordered by most recent
// activity. Page defaults to 1, pageSize to 20 with a hard cap of 100.
func (s *ConversationService) List(
	ctx context.Context,
	callerID int64,
	f domain.ConversationListFilter,
) ([]*domain.ConversationSummary, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	res, err := s.conversations.ListForUser(ctx, callerID, f)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return res, nil
}

// Update renames or re-describes a group conversation. Admins and moderators
// only.
func (s *ConversationService) Update(
	ctx context.Context,
	conversationID, callerID int64,
	patch ConversationPatch,
) (*domain.ConversationDetail, error) {
	conv, caller, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, fmt.Errorf("%w: a direct conversation cannot be updated", domain.ErrInvalidInput)
	}
	if !caller.Role.CanModerate() {
		return nil, domain.ErrForbidden
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, fmt.Errorf("%w: a group conversation requires a name", domain.ErrInvalidInput)
		}
		conv.Name = patch.Name
	}
	if patch.Description != nil {
		conv.Description = patch.Description
	}

	if err := s.conversations.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	s.publish(ctx, conversationID, EventConversationUpdated, conversationEvent{ConversationID: conversationID})
	return s.detail(ctx, conv)
}

// Delete removes the conversation and all of its participant and message
// rows. Only the creator may delete.
func (s *ConversationService) Delete(ctx context.Context, conversationID, callerID int64) error {
	conv, _, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if conv.CreatedBy != callerID {
		return domain.ErrForbidden
	}
	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	s.publish(ctx, conversationID, EventConversationDeleted, conversationEvent{ConversationID: conversationID})
	return nil
}

// AddParticipants adds the given users to a group conversation as members.
// Ids already on the roster are silently skipped. Admins and moderators only.
func (s *ConversationService) AddParticipants(
	ctx context.Context,
	conversationID, callerID int64,
	userIDs []int64,
) (*domain.ConversationDetail, error) {
	conv, caller, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, fmt.Errorf("%w: a direct conversation's membership cannot change", domain.ErrInvalidInput)
	}
	if !caller.Role.CanModerate() {
		return nil, domain.ErrForbidden
	}

	ids := dedupe(userIDs, 0)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one user id is required", domain.ErrInvalidInput)
	}
	if err := s.verifyUsersExist(ctx, ids); err != nil {
		return nil, err
	}

	added, err := s.participants.Add(ctx, conversationID, ids, domain.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("add participants: %w", err)
	}
	for _, uid := range added {
		s.publish(ctx, conversationID, EventParticipantAdded, participantEvent{
			ConversationID: conversationID,
			UserID:         uid,
			Role:           domain.RoleMember,
		})
	}
	return s.detail(ctx, conv)
}

// RemoveParticipant removes a user from a group conversation's roster.
// Permitted as self-removal or by an admin/moderator; a moderator cannot
// remove an admin. Removing the last admin fails with ErrInvalidOperation
// unless the target is the sole remaining participant, in which case the
// conversation itself is deleted.
func (s *ConversationService) RemoveParticipant(
	ctx context.Context,
	conversationID, targetUserID, callerID int64,
) error {
	conv, caller, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return fmt.Errorf("%w: a direct conversation's membership cannot change", domain.ErrInvalidInput)
	}

	target, err := s.participants.Get(ctx, conversationID, targetUserID)
	if err != nil {
		return fmt.Errorf("get target participant: %w", err)
	}
	if target == nil {
		return domain.ErrNotFound
	}

	if targetUserID != callerID {
		if !caller.Role.CanModerate() {
			return domain.ErrForbidden
		}
		if target.Role == domain.RoleAdmin && caller.Role != domain.RoleAdmin {
			return domain.ErrForbidden
		}
	}

	deleted, err := s.participants.Remove(ctx, conversationID, targetUserID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if deleted {
		s.publish(ctx, conversationID, EventConversationDeleted, conversationEvent{ConversationID: conversationID})
		return nil
	}
	s.publish(ctx, conversationID, EventParticipantRemoved, participantEvent{
		ConversationID: conversationID,
		UserID:         targetUserID,
	})
	return nil
}

// UpdateParticipantRole changes a member's role. Admins only; demoting the
// last admin is rejected.
func (s *ConversationService) UpdateParticipantRole(
	ctx context.Context,
	conversationID, targetUserID int64,
	newRole domain.Role,
	callerID int64,
) error {
	if !newRole.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, newRole)
	}
	conv, caller, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return fmt.Errorf("%w: a direct conversation has no roles", domain.ErrInvalidInput)
	}
	if caller.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}

	if err := s.participants.UpdateRole(ctx, conversationID, targetUserID, newRole); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	s.publish(ctx, conversationID, EventParticipantRoleUpdated, participantEvent{
		ConversationID: conversationID,
		UserID:         targetUserID,
		Role:           newRole,
	})
	return nil
}

// SetMuteStatus sets a member's mute flag. Members mute themselves; admins
// and moderators may mute on behalf of another member. The write is
// idempotent.
func (s *ConversationService) SetMuteStatus(
	ctx context.Context,
	conversationID, targetUserID int64,
	muted bool,
	callerID int64,
) error {
	_, caller, err := s.requireMembership(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if targetUserID != callerID && !caller.Role.CanModerate() {
		return domain.ErrForbidden
	}

	if err := s.participants.SetMuted(ctx, conversationID, targetUserID, muted); err != nil {
		return fmt.Errorf("set mute status: %w", err)
	}
	s.publish(ctx, conversationID, EventParticipantMuted, participantEvent{
		ConversationID: conversationID,
		UserID:         targetUserID,
		IsMuted:        &muted,
	})
	return nil
}

// Leave removes the caller from the conversation.
func (s *ConversationService) Leave(ctx context.Context, conversationID, callerID int64) error {
	return s.RemoveParticipant(ctx, conversationID, callerID, callerID)
}

// requireMembership loads the conversation and the caller's participant row.
// ErrNotFound when the conversation is absent, ErrForbidden when the caller
// is not on the roster.
func (s *ConversationService) requireMembership(
	ctx context.Context,
	conversationID, callerID int64,
) (*domain.Conversation, *domain.Participant, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, domain.ErrNotFound
	}
	caller, err := s.participants.Get(ctx, conversationID, callerID)
	if err != nil {
		return nil, nil, fmt.Errorf("get caller participant: %w", err)
	}
	if caller == nil {
		return nil, nil, domain.ErrForbidden
	}
	return conv, caller, nil
}

func (s *ConversationService) detail(ctx context.Context, conv *domain.Conversation) (*domain.ConversationDetail, error) {
	members, err := s.participants.ListMembers(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return &domain.ConversationDetail{Conversation: *conv, Members: members}, nil
}

func (s *ConversationService) verifyUsersExist(ctx context.Context, ids []int64) error {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("look up users: %w", err)
	}
	if len(users) != len(ids) {
		return fmt.Errorf("%w: one or more user ids do not exist", domain.ErrInvalidInput)
	}
	return nil
}

// publish delivers an event to the conversation channel after the mutation
// has committed. Failures are logged and never surfaced.
func (s *ConversationService) publish(ctx context.Context, conversationID int64, event string, payload any) {
	if err := s.publisher.Publish(ctx, ChannelFor(conversationID), event, payload); err != nil {
		s.log.Warn().
			Err(err).
			Int64("conversation_id", conversationID).
			Str("event", event).
			Msg("realtime publish failed")
	}
}

// dedupe returns ids with duplicates and the excluded id removed, keeping
// first-seen order.
func dedupe(ids []int64, exclude int64) []int64 {
	seen := map[int64]struct{}{exclude: {}}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
