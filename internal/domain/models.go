package domain

import "time"

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Role is a participant's role within a conversation.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// CanModerate reports whether the role may manage the roster: add or
// remove members, rename the conversation, mute on behalf of others.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Conversation represents a chat conversation (direct or group).
// A direct conversation has exactly two participants and no name.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	Name          *string   `db:"name" json:"name,omitempty"`
	Description   *string   `db:"description" json:"description,omitempty"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	CreatedBy     int64     `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// Participant represents the membership of a user in a conversation.
type Participant struct {
	UserID         int64      `db:"user_id" json:"user_id"`
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	Role           Role       `db:"role" json:"role"`
	IsMuted        bool       `db:"is_muted" json:"is_muted"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
}

// Member is a roster entry: a participant joined with the user's display
// attributes.
type Member struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Email    *string   `json:"email,omitempty"`
	IsOnline bool      `json:"is_online"`
	Role     Role      `json:"role"`
	IsMuted  bool      `json:"is_muted"`
	JoinedAt time.Time `json:"joined_at"`
}

// ConversationDetail is a conversation together with its full roster.
type ConversationDetail struct {
	Conversation
	Members []*Member `json:"members"`
}

// ConversationSummary is a single row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	ParticipantCount int  `json:"participant_count"`
	UnreadCount      int  `json:"unread_count"`
	IsMuted          bool `json:"is_muted"`
}

// ConversationListFilter narrows and pages a user's conversation list.
type ConversationListFilter struct {
	Page       int
	PageSize   int
	Query      string // substring match on group name or participant username
	IsGroup    *bool  // nil matches both kinds
	UnreadOnly bool
}

// Message represents a single chat message.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	Content        string    `db:"content" json:"content"` // encrypted at rest
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	FilePath       *string   `db:"file_path" json:"file_path,omitempty"`
	FileType       *string   `db:"file_type" json:"file_type,omitempty"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
}

// PasswordResetToken is a single-use token for the password-reset email flow.
type PasswordResetToken struct {
	Token     string    `db:"token"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
