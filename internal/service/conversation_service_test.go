package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mchat/internal/domain"
	"mchat/internal/service"
)

type convFixture struct {
	convs     *MockConversationRepo
	parts     *MockParticipantRepo
	users     *MockUserRepo
	publisher *RecordingPublisher
	svc       *service.ConversationService
}

func newConvFixture() *convFixture {
	f := &convFixture{
		convs:     new(MockConversationRepo),
		parts:     new(MockParticipantRepo),
		users:     new(MockUserRepo),
		publisher: &RecordingPublisher{},
	}
	f.svc = service.NewConversationService(f.convs, f.parts, f.users, f.publisher, zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }

func groupConv(id, createdBy int64) *domain.Conversation {
	return &domain.Conversation{ID: id, Name: strPtr("team"), IsGroup: true, CreatedBy: createdBy}
}

func directConv(id, createdBy int64) *domain.Conversation {
	return &domain.Conversation{ID: id, IsGroup: false, CreatedBy: createdBy}
}

func participant(userID int64, role domain.Role) *domain.Participant {
	return &domain.Participant{UserID: userID, Role: role}
}

func usersOf(ids ...int64) []*domain.User {
	out := make([]*domain.User, len(ids))
	for i, id := range ids {
		out[i] = &domain.User{ID: id}
	}
	return out
}

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("GroupRequiresName", func(t *testing.T) {
		f := newConvFixture()
		_, err := f.svc.Create(ctx, service.ConversationCreateInput{
			IsGroup:        true,
			ParticipantIDs: []int64{2},
		}, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("DirectRejectsName", func(t *testing.T) {
		f := newConvFixture()
		_, err := f.svc.Create(ctx, service.ConversationCreateInput{
			Name:           strPtr("nope"),
			ParticipantIDs: []int64{2},
		}, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("DirectRequiresExactlyOneOther", func(t *testing.T) {
		f := newConvFixture()
		_, err := f.svc.Create(ctx, service.ConversationCreateInput{
			ParticipantIDs: []int64{2, 3},
		}, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("UnknownUserIDs", func(t *testing.T) {
		f := newConvFixture()
		f.users.On("GetByIDs", mock.Anything, mock.Anything).Return(usersOf(1), nil)

		_, err := f.svc.Create(ctx, service.ConversationCreateInput{
			Name:           strPtr("team"),
			IsGroup:        true,
			ParticipantIDs: []int64{99},
		}, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("DirectIsIdempotent", func(t *testing.T) {
		f := newConvFixture()
		existing := directConv(7, 1)
		f.users.On("GetByIDs", mock.Anything, mock.Anything).Return(usersOf(2, 1), nil)
		f.convs.On("FindDirectBetween", mock.Anything, int64(1), int64(2)).Return(existing, nil)
		f.parts.On("ListMembers", mock.Anything, int64(7)).Return([]*domain.Member{}, nil)

		detail, err := f.svc.Create(ctx, service.ConversationCreateInput{
			ParticipantIDs: []int64{2},
		}, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(7), detail.ID)
		f.convs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CreatorJoinsAsAdmin", func(t *testing.T) {
		f := newConvFixture()
		f.users.On("GetByIDs", mock.Anything, mock.Anything).Return(usersOf(2, 3, 1), nil)
		f.convs.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(roster []*domain.Participant) bool {
			if len(roster) != 3 || roster[0].UserID != 1 || roster[0].Role != domain.RoleAdmin {
				return false
			}
			return roster[1].Role == domain.RoleMember && roster[2].Role == domain.RoleMember
		})).Return(nil)
		f.parts.On("ListMembers", mock.Anything, mock.Anything).Return([]*domain.Member{}, nil)

		_, err := f.svc.Create(ctx, service.ConversationCreateInput{
			Name:           strPtr("team"),
			IsGroup:        true,
			ParticipantIDs: []int64{2, 3, 2},
		}, 1)
		require.NoError(t, err)
		f.convs.AssertExpectations(t)
	})
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(nil, nil)

		_, err := f.svc.Get(ctx, 5, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("OutsiderIsForbidden", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(9)).Return(nil, nil)

		_, err := f.svc.Get(ctx, 5, 9)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()

	t.Run("NormalizesPaging", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("ListForUser", mock.Anything, int64(1), domain.ConversationListFilter{
			Page: 1, PageSize: 20,
		}).Return([]*domain.ConversationSummary{}, nil)

		_, err := f.svc.List(ctx, 1, domain.ConversationListFilter{})
		require.NoError(t, err)
		f.convs.AssertExpectations(t)
	})

	t.Run("CapsPageSize", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("ListForUser", mock.Anything, int64(1), domain.ConversationListFilter{
			Page: 2, PageSize: 100,
		}).Return([]*domain.ConversationSummary{}, nil)

		_, err := f.svc.List(ctx, 1, domain.ConversationListFilter{Page: 2, PageSize: 500})
		require.NoError(t, err)
		f.convs.AssertExpectations(t)
	})
}

func TestUpdateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("MemberIsForbidden", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleMember), nil)

		_, err := f.svc.Update(ctx, 5, 2, service.ConversationPatch{Name: strPtr("new")})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("DirectCannotBeUpdated", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(directConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)

		_, err := f.svc.Update(ctx, 5, 1, service.ConversationPatch{Name: strPtr("new")})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ModeratorRenamesAndPublishes", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleModerator), nil)
		f.convs.On("Update", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.Name != nil && *c.Name == "renamed"
		})).Return(nil)
		f.parts.On("ListMembers", mock.Anything, int64(5)).Return([]*domain.Member{}, nil)

		_, err := f.svc.Update(ctx, 5, 2, service.ConversationPatch{Name: strPtr("renamed")})
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, "conversation-5", f.publisher.Events[0].Channel)
		assert.Equal(t, service.EventConversationUpdated, f.publisher.Events[0].Event)
	})
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("OnlyCreatorMayDelete", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleAdmin), nil)

		err := f.svc.Delete(ctx, 5, 2)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("CreatorDeletesAndPublishes", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.convs.On("Delete", mock.Anything, int64(5)).Return(nil)

		err := f.svc.Delete(ctx, 5, 1)
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventConversationDeleted, f.publisher.Events[0].Event)
	})
}

func TestAddParticipants(t *testing.T) {
	ctx := context.Background()

	t.Run("MemberIsForbidden", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleMember), nil)

		_, err := f.svc.AddParticipants(ctx, 5, 2, []int64{4})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("DirectMembershipIsImmutable", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(directConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)

		_, err := f.svc.AddParticipants(ctx, 5, 1, []int64{4})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("PublishesOnlyNetNewMembers", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.users.On("GetByIDs", mock.Anything, []int64{4, 6}).Return(usersOf(4, 6), nil)
		// 6 is already on the roster; only 4 joins.
		f.parts.On("Add", mock.Anything, int64(5), []int64{4, 6}, domain.RoleMember).Return([]int64{4}, nil)
		f.parts.On("ListMembers", mock.Anything, int64(5)).Return([]*domain.Member{}, nil)

		_, err := f.svc.AddParticipants(ctx, 5, 1, []int64{4, 6})
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventParticipantAdded, f.publisher.Events[0].Event)
	})
}

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()

	t.Run("MemberCannotRemoveOthers", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleMember), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(3)).Return(participant(3, domain.RoleMember), nil)

		err := f.svc.RemoveParticipant(ctx, 5, 3, 2)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("ModeratorCannotRemoveAdmin", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleModerator), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)

		err := f.svc.RemoveParticipant(ctx, 5, 1, 2)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("TargetNotOnRoster", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(9)).Return(nil, nil)

		err := f.svc.RemoveParticipant(ctx, 5, 9, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("LastAdminSelfRemovalRejected", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("Remove", mock.Anything, int64(5), int64(1)).Return(false, domain.ErrInvalidOperation)

		err := f.svc.RemoveParticipant(ctx, 5, 1, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidOperation)
		assert.Empty(t, f.publisher.Events)
	})

	t.Run("SoleParticipantLeaveDeletesConversation", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("Remove", mock.Anything, int64(5), int64(1)).Return(true, nil)

		err := f.svc.Leave(ctx, 5, 1)
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventConversationDeleted, f.publisher.Events[0].Event)
	})

	t.Run("RemovalPublishesEvent", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(3)).Return(participant(3, domain.RoleMember), nil)
		f.parts.On("Remove", mock.Anything, int64(5), int64(3)).Return(false, nil)

		err := f.svc.RemoveParticipant(ctx, 5, 3, 1)
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventParticipantRemoved, f.publisher.Events[0].Event)
		assert.Equal(t, "conversation-5", f.publisher.Events[0].Channel)
	})
}

func TestUpdateParticipantRole(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownRole", func(t *testing.T) {
		f := newConvFixture()
		err := f.svc.UpdateParticipantRole(ctx, 5, 3, "owner", 1)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ModeratorCannotAssignRoles", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleModerator), nil)

		err := f.svc.UpdateParticipantRole(ctx, 5, 3, domain.RoleModerator, 2)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("DemotingLastAdminRejected", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("UpdateRole", mock.Anything, int64(5), int64(1), domain.RoleMember).Return(domain.ErrInvalidOperation)

		err := f.svc.UpdateParticipantRole(ctx, 5, 1, domain.RoleMember, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	})

	t.Run("AdminPromotesAndPublishes", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
		f.parts.On("UpdateRole", mock.Anything, int64(5), int64(3), domain.RoleModerator).Return(nil)

		err := f.svc.UpdateParticipantRole(ctx, 5, 3, domain.RoleModerator, 1)
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventParticipantRoleUpdated, f.publisher.Events[0].Event)
	})
}

func TestSetMuteStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("MemberMutesSelf", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleMember), nil)
		f.parts.On("SetMuted", mock.Anything, int64(5), int64(2), true).Return(nil)

		err := f.svc.SetMuteStatus(ctx, 5, 2, true, 2)
		require.NoError(t, err)
		require.Len(t, f.publisher.Events, 1)
		assert.Equal(t, service.EventParticipantMuted, f.publisher.Events[0].Event)
	})

	t.Run("MemberCannotMuteOthers", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleMember), nil)

		err := f.svc.SetMuteStatus(ctx, 5, 3, true, 2)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("ModeratorMutesMember", func(t *testing.T) {
		f := newConvFixture()
		f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
		f.parts.On("Get", mock.Anything, int64(5), int64(2)).Return(participant(2, domain.RoleModerator), nil)
		f.parts.On("SetMuted", mock.Anything, int64(5), int64(3), false).Return(nil)

		err := f.svc.SetMuteStatus(ctx, 5, 3, false, 2)
		require.NoError(t, err)
	})
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()

	f := newConvFixture()
	f.publisher.Err = assert.AnError
	f.convs.On("GetByID", mock.Anything, int64(5)).Return(groupConv(5, 1), nil)
	f.parts.On("Get", mock.Anything, int64(5), int64(1)).Return(participant(1, domain.RoleAdmin), nil)
	f.parts.On("Get", mock.Anything, int64(5), int64(3)).Return(participant(3, domain.RoleMember), nil)
	f.parts.On("Remove", mock.Anything, int64(5), int64(3)).Return(false, nil)

	err := f.svc.RemoveParticipant(ctx, 5, 3, 1)
	assert.NoError(t, err)
}
