package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mchat/internal/domain"
)

type PasswordResetRepo struct {
	db *sql.DB
}

func NewPasswordResetRepo(db *sql.DB) *PasswordResetRepo {
	return &PasswordResetRepo{db: db}
}

var _ domain.PasswordResetRepository = (*PasswordResetRepo)(nil)

func (r *PasswordResetRepo) Create(ctx context.Context, t *domain.PasswordResetToken) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at)
		VALUES (?, ?, ?)
	`, t.Token, t.UserID, t.ExpiresAt); err != nil {
		return fmt.Errorf("insert reset token: %w", translateErr(err))
	}
	return nil
}

func (r *PasswordResetRepo) Consume(ctx context.Context, token string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM password_reset_tokens WHERE token = ?
	`, token).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get reset token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE token = ?
	`, token); err != nil {
		return 0, fmt.Errorf("delete reset token: %w", translateErr(err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", translateErr(err))
	}

	if time.Now().After(expiresAt) {
		return 0, domain.ErrNotFound
	}
	return userID, nil
}
