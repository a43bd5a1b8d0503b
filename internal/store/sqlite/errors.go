package sqlite

import (
	"strings"

	"mchat/internal/domain"
)

// translateErr maps driver errors onto domain sentinels. The modernc
// driver reports constraint and busy conditions in the error text.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return domain.ErrConflict
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return domain.ErrConflict
	}
	return err
}
