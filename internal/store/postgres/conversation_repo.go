package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mchat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, participants []*domain.Participant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (name, description, is_group, created_by, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), NOW())
		RETURNING id, created_at, updated_at, last_message_at
	`, c.Name, c.Description, c.IsGroup, c.CreatedBy).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt); err != nil {
		return fmt.Errorf("insert conversation: %w", translateErr(err))
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (user_id, conversation_id, role, is_muted, joined_at)
			VALUES ($1, $2, $3, FALSE, NOW())
			ON CONFLICT DO NOTHING
		`, p.UserID, c.ID, p.Role); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.UserID, translateErr(err))
		}
	}

	return tx.Commit()
}

const conversationColumns = `id, name, description, is_group, created_by, created_at, updated_at, last_message_at`

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.IsGroup, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListForUser pages the caller's conversations ordered by most recent
// activity, with optional kind, substring, and unread-only filters.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64, f domain.ConversationListFilter) ([]*domain.ConversationSummary, error) {
	const unreadPredicate = `
		m.conversation_id = c.id
		AND m.sender_id <> cp.user_id
		AND m.is_deleted = FALSE
		AND (cp.last_read_at IS NULL OR m.created_at > cp.last_read_at)`

	var b strings.Builder
	b.WriteString(`
		SELECT c.id, c.name, c.description, c.is_group, c.created_by,
		       c.created_at, c.updated_at, c.last_message_at,
		       cp.is_muted,
		       (SELECT COUNT(*) FROM conversation_participants p2 WHERE p2.conversation_id = c.id),
		       (SELECT COUNT(*) FROM messages m WHERE ` + unreadPredicate + `)
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1`)

	args := []any{userID}

	if f.IsGroup != nil {
		args = append(args, *f.IsGroup)
		fmt.Fprintf(&b, "\nWHERE c.is_group = $%d", len(args))
	} else {
		b.WriteString("\nWHERE TRUE")
	}

	if f.Query != "" {
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
		fmt.Fprintf(&b, `
		AND (LOWER(c.name) LIKE $%d OR c.id IN (
			SELECT p3.conversation_id
			FROM conversation_participants p3
			JOIN users u ON u.id = p3.user_id
			WHERE LOWER(u.username) LIKE $%d
		))`, len(args), len(args))
	}

	if f.UnreadOnly {
		b.WriteString(`
		AND EXISTS (SELECT 1 FROM messages m WHERE ` + unreadPredicate + `)`)
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	fmt.Fprintf(&b, "\nORDER BY c.last_message_at DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.ConversationSummary
	for rows.Next() {
		s := &domain.ConversationSummary{}
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.IsGroup, &s.CreatedBy,
			&s.CreatedAt, &s.UpdatedAt, &s.LastMessageAt,
			&s.IsMuted, &s.ParticipantCount, &s.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) Update(ctx context.Context, c *domain.Conversation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.Name, c.Description)
	if err != nil {
		return fmt.Errorf("update conversation: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("delete participants: %w", translateErr(err))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// FindDirectBetween finds the direct (non-group) conversation whose
// roster is exactly the two given users.
func (r *ConversationRepo) FindDirectBetween(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.description, c.is_group, c.created_by,
		       c.created_at, c.updated_at, c.last_message_at
		FROM conversations c
		WHERE c.is_group = FALSE
		  AND (SELECT COUNT(*) FROM conversation_participants cp WHERE cp.conversation_id = c.id) = 2
		  AND EXISTS (SELECT 1 FROM conversation_participants cp WHERE cp.conversation_id = c.id AND cp.user_id = $1)
		  AND EXISTS (SELECT 1 FROM conversation_participants cp WHERE cp.conversation_id = c.id AND cp.user_id = $2)
		LIMIT 1
	`, userA, userB).Scan(&c.ID, &c.Name, &c.Description, &c.IsGroup, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) MarkAsRead(ctx context.Context, conversationID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}
