package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (content, conversation_id, sender_id, created_at, file_path, file_type, is_deleted)
		VALUES ($1, $2, $3, NOW(), $4, $5, FALSE)
		RETURNING id, created_at
	`, m.Content, m.ConversationID, m.SenderID, m.FilePath, m.FileType).
		Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", translateErr(err))
	}

	// Sending bumps the conversation's activity ordering.
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = NOW(), updated_at = NOW() WHERE id = $1
	`, m.ConversationID); err != nil {
		return fmt.Errorf("bump last_message_at: %w", translateErr(err))
	}

	return tx.Commit()
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, content, conversation_id, sender_id, created_at, file_path, file_type, is_deleted
		FROM messages
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.Content, &m.ConversationID, &m.SenderID,
		&m.CreatedAt, &m.FilePath, &m.FileType, &m.IsDeleted,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListForConversation returns messages newest-first, deleted ones included
// so they render as tombstones.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, conversation_id, sender_id, created_at, file_path, file_type, is_deleted
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID, &m.Content, &m.ConversationID, &m.SenderID,
			&m.CreatedAt, &m.FilePath, &m.FileType, &m.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = $2 WHERE id = $1 AND is_deleted = FALSE
	`, id, content)
	if err != nil {
		return fmt.Errorf("update message: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", translateErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
