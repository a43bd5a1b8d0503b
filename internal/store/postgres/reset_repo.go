package postgres

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
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, t.Token, t.UserID, t.ExpiresAt).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", translateErr(err))
	}
	return nil
}

// Consume deletes the token row and returns the owning user. Expired
// tokens are removed but still reported as ErrNotFound so they are
// single-use either way.
func (r *PasswordResetRepo) Consume(ctx context.Context, token string) (int64, error) {
	var userID int64
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM password_reset_tokens
		WHERE token = $1
		RETURNING user_id, expires_at
	`, token).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("consume reset token: %w", translateErr(err))
	}
	if time.Now().After(expiresAt) {
		return 0, domain.ErrNotFound
	}
	return userID, nil
}
