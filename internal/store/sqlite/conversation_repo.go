package sqlite

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

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (name, description, is_group, created_by)
		VALUES (?, ?, ?, ?)
	`, c.Name, c.Description, c.IsGroup, c.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", translateErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, role, is_muted)
			VALUES (?, ?, ?, FALSE)
		`, p.UserID, id, p.Role); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.UserID, translateErr(err))
		}
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT created_at, updated_at, last_message_at FROM conversations WHERE id = ?
	`, id).Scan(&c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt); err != nil {
		return fmt.Errorf("read back conversation: %w", err)
	}

	return tx.Commit()
}

const conversationColumns = `id, name, description, is_group, created_by, created_at, updated_at, last_message_at`

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = ?
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
		JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = ?
		WHERE 1 = 1`)

	args := []any{userID}

	if f.IsGroup != nil {
		b.WriteString("\nAND c.is_group = ?")
		args = append(args, *f.IsGroup)
	}

	if f.Query != "" {
		b.WriteString(`
		AND (LOWER(c.name) LIKE ? OR c.id IN (
			SELECT p3.conversation_id
			FROM conversation_participants p3
			JOIN users u ON u.id = p3.user_id
			WHERE LOWER(u.username) LIKE ?
		))`)
		pattern := "%" + strings.ToLower(f.Query) + "%"
		args = append(args, pattern, pattern)
	}

	if f.UnreadOnly {
		b.WriteString(`
		AND EXISTS (SELECT 1 FROM messages m WHERE ` + unreadPredicate + `)`)
	}

	b.WriteString("\nORDER BY c.last_message_at DESC\nLIMIT ? OFFSET ?")
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

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
		SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, c.Name, c.Description, c.ID)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete participants: %w", translateErr(err))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (r *ConversationRepo) FindDirectBetween(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.description, c.is_group, c.created_by,
		       c.created_at, c.updated_at, c.last_message_at
		FROM conversations c
		JOIN conversation_participants cp1 ON cp1.conversation_id = c.id AND cp1.user_id = ?
		JOIN conversation_participants cp2 ON cp2.conversation_id = c.id AND cp2.user_id = ?
		WHERE c.is_group = FALSE
		  AND (SELECT COUNT(*) FROM conversation_participants cp WHERE cp.conversation_id = c.id) = 2
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
		SET last_read_at = CURRENT_TIMESTAMP
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}
