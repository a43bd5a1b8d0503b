package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"mchat/internal/domain"
)

// translateErr maps driver errors onto domain sentinels so services and
// handlers never see driver-specific types. Unique violations and
// serialization failures both surface as ErrConflict; the latter is
// retryable by the caller.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return domain.ErrConflict
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return domain.ErrConflict
		}
	}
	return err
}
