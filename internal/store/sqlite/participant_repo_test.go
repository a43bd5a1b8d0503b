package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mchat/internal/domain"
	"mchat/internal/store/sqlite"
)

type storeFixture struct {
	db    *sql.DB
	users *sqlite.UserRepo
	convs *sqlite.ConversationRepo
	parts *sqlite.ParticipantRepo
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	return &storeFixture{
		db:    db,
		users: sqlite.NewUserRepo(db),
		convs: sqlite.NewConversationRepo(db),
		parts: sqlite.NewParticipantRepo(db),
	}
}

func (f *storeFixture) seedUser(t *testing.T, username string) int64 {
	t.Helper()
	u := &domain.User{Username: username, HashedPassword: "x", IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.ID
}

// seedGroup creates a group conversation with the first id as admin and the
// rest as members, returning the conversation id.
func (f *storeFixture) seedGroup(t *testing.T, adminID int64, memberIDs ...int64) int64 {
	t.Helper()
	name := "room"
	roster := []*domain.Participant{{UserID: adminID, Role: domain.RoleAdmin}}
	for _, id := range memberIDs {
		roster = append(roster, &domain.Participant{UserID: id, Role: domain.RoleMember})
	}
	c := &domain.Conversation{Name: &name, IsGroup: true, CreatedBy: adminID}
	require.NoError(t, f.convs.Create(context.Background(), c, roster))
	return c.ID
}

func TestRemoveKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conv := f.seedGroup(t, alice, bob)

	_, err := f.parts.Remove(ctx, conv, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	// The rejected removal leaves the roster untouched.
	ok, err := f.parts.IsParticipant(ctx, conv, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	// Removing a plain member is fine.
	deleted, err := f.parts.Remove(ctx, conv, bob)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRemoveSecondAdminAllowed(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conv := f.seedGroup(t, alice, bob)

	require.NoError(t, f.parts.UpdateRole(ctx, conv, bob, domain.RoleAdmin))

	deleted, err := f.parts.Remove(ctx, conv, alice)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUpdateRoleKeepsLastAdmin(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conv := f.seedGroup(t, alice, bob)

	err := f.parts.UpdateRole(ctx, conv, alice, domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	p, err := f.parts.Get(ctx, conv, alice)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	// Once another admin exists the demotion goes through.
	require.NoError(t, f.parts.UpdateRole(ctx, conv, bob, domain.RoleAdmin))
	require.NoError(t, f.parts.UpdateRole(ctx, conv, alice, domain.RoleMember))
}

func TestSoleParticipantLeaveDeletesConversation(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	conv := f.seedGroup(t, alice)

	deleted, err := f.parts.Remove(ctx, conv, alice)
	require.NoError(t, err)
	assert.True(t, deleted)

	c, err := f.convs.GetByID(ctx, conv)
	require.NoError(t, err)
	assert.Nil(t, c)

	p, err := f.parts.Get(ctx, conv, alice)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRemoveUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	conv := f.seedGroup(t, alice)

	_, err := f.parts.Remove(ctx, conv, alice+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddReportsEachNewIDOnce(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, alice, bob)

	added, err := f.parts.Add(ctx, conv, []int64{bob, carol, carol}, domain.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol}, added)

	p, err := f.parts.Get(ctx, conv, carol)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.RoleMember, p.Role)
}
