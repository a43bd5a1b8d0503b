package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"mchat/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) Get(ctx context.Context, conversationID, userID int64) (*domain.Participant, error) {
	p := &domain.Participant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, conversation_id, role, is_muted, last_read_at, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(
		&p.UserID, &p.ConversationID, &p.Role, &p.IsMuted, &p.LastReadAt, &p.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepo) ListMembers(ctx context.Context, conversationID int64) ([]*domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.is_online, cp.role, cp.is_muted, cp.joined_at
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = $1
		ORDER BY u.username ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var res []*domain.Member
	for rows.Next() {
		m := &domain.Member{}
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &m.IsOnline, &m.Role, &m.IsMuted, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *ParticipantRepo) ListUserIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participant ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ParticipantRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (r *ParticipantRepo) Add(ctx context.Context, conversationID int64, userIDs []int64, role domain.Role) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = ANY($2::bigint[])
	`, conversationID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("check existing participants: %w", err)
	}
	existing := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var added []int64
	for _, uid := range userIDs {
		if _, ok := existing[uid]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (user_id, conversation_id, role, is_muted, joined_at)
			VALUES ($1, $2, $3, FALSE, NOW())
			ON CONFLICT DO NOTHING
		`, uid, conversationID, role); err != nil {
			return nil, fmt.Errorf("insert participant %d: %w", uid, translateErr(err))
		}
		// Counts as existing from here on, so a repeated input id is
		// reported once.
		existing[uid] = struct{}{}
		added = append(added, uid)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", translateErr(err))
	}
	return added, nil
}

// lockRoster reads the full participant set under FOR UPDATE so the
// admin-count invariant is checked against a stable snapshot.
func lockRoster(ctx context.Context, tx *sql.Tx, conversationID int64) ([]*domain.Participant, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, role FROM conversation_participants
		WHERE conversation_id = $1
		FOR UPDATE
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lock roster: %w", translateErr(err))
	}
	defer rows.Close()

	var roster []*domain.Participant
	for rows.Next() {
		p := &domain.Participant{ConversationID: conversationID}
		if err := rows.Scan(&p.UserID, &p.Role); err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	return roster, rows.Err()
}

func countAdmins(roster []*domain.Participant) int {
	n := 0
	for _, p := range roster {
		if p.Role == domain.RoleAdmin {
			n++
		}
	}
	return n
}

func (r *ParticipantRepo) Remove(ctx context.Context, conversationID, userID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	roster, err := lockRoster(ctx, tx, conversationID)
	if err != nil {
		return false, err
	}

	var target *domain.Participant
	for _, p := range roster {
		if p.UserID == userID {
			target = p
			break
		}
	}
	if target == nil {
		return false, domain.ErrNotFound
	}

	// Sole participant leaving: the conversation goes with them.
	if len(roster) == 1 {
		if err := deleteConversationTx(ctx, tx, conversationID); err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	if target.Role == domain.RoleAdmin && countAdmins(roster) == 1 {
		return false, domain.ErrInvalidOperation
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID); err != nil {
		return false, fmt.Errorf("delete participant: %w", translateErr(err))
	}
	return false, tx.Commit()
}

func (r *ParticipantRepo) UpdateRole(ctx context.Context, conversationID, userID int64, role domain.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	roster, err := lockRoster(ctx, tx, conversationID)
	if err != nil {
		return err
	}

	var target *domain.Participant
	for _, p := range roster {
		if p.UserID == userID {
			target = p
			break
		}
	}
	if target == nil {
		return domain.ErrNotFound
	}

	if target.Role == domain.RoleAdmin && role != domain.RoleAdmin && countAdmins(roster) == 1 {
		return domain.ErrInvalidOperation
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET role = $3
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, role); err != nil {
		return fmt.Errorf("update role: %w", translateErr(err))
	}
	return tx.Commit()
}

func (r *ParticipantRepo) SetMuted(ctx context.Context, conversationID, userID int64, muted bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET is_muted = $3
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, muted)
	if err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func deleteConversationTx(ctx context.Context, tx *sql.Tx, conversationID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete participants: %w", translateErr(err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", translateErr(err))
	}
	return nil
}
