package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	ListOnline(ctx context.Context) ([]*User, error)
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
	UpdatePassword(ctx context.Context, id int64, hashedPassword string) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	// Create inserts the conversation and its initial participant rows in
	// one transaction.
	Create(ctx context.Context, c *Conversation, participants []*Participant) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64, f ConversationListFilter) ([]*ConversationSummary, error)
	Update(ctx context.Context, c *Conversation) error
	// Delete removes the conversation and cascades to its participant and
	// message rows in one transaction.
	Delete(ctx context.Context, id int64) error
	FindDirectBetween(ctx context.Context, userA, userB int64) (*Conversation, error)
	MarkAsRead(ctx context.Context, conversationID, userID int64) error
}

// ParticipantRepository defines operations on a conversation's roster.
//
// Remove and UpdateRole enforce the last-admin invariant inside their own
// transaction: the roster is read under a row lock and the mutation is
// rejected with ErrInvalidOperation if it would leave a conversation that
// has an admin with none. Callers perform role-based authorization before
// invoking them; the invariant itself is never checked outside the store.
type ParticipantRepository interface {
	Get(ctx context.Context, conversationID, userID int64) (*Participant, error)
	ListMembers(ctx context.Context, conversationID int64) ([]*Member, error)
	ListUserIDs(ctx context.Context, conversationID int64) ([]int64, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	// Add inserts the given users with the given role, silently skipping
	// ids already on the roster, and returns the net-new ids. Each id is
	// reported at most once, however often it repeats in the input.
	Add(ctx context.Context, conversationID int64, userIDs []int64, role Role) ([]int64, error)
	// Remove deletes the participant row. When the target is the sole
	// remaining participant the whole conversation is deleted instead and
	// conversationDeleted is true.
	Remove(ctx context.Context, conversationID, userID int64) (conversationDeleted bool, err error)
	UpdateRole(ctx context.Context, conversationID, userID int64, role Role) error
	SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create inserts the message and bumps the conversation's
	// last_message_at in the same transaction.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	// SoftDelete marks the message deleted. The row stays in listings as a
	// tombstone; callers mask its content.
	SoftDelete(ctx context.Context, id int64) error
}

// PasswordResetRepository stores single-use password-reset tokens.
type PasswordResetRepository interface {
	Create(ctx context.Context, t *PasswordResetToken) error
	// Consume atomically deletes the token and returns the associated user
	// id; expired or unknown tokens yield ErrNotFound.
	Consume(ctx context.Context, token string) (int64, error)
}
