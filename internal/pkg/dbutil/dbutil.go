package dbutil

import (
	"errors"
	"net"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Rebind converts gendry's MySQL-style placeholders to Postgres dollar ones.
func Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsVectorWidthMismatch reports whether err is pgvector rejecting a value
// whose dimensionality differs from the column. pgvector raises these as
// data exceptions (class 22) with an "expected N dimensions" message. Such
// an error means the embedding model and the index disagree, so it taints
// the whole batch rather than a single row.
func IsVectorWidthMismatch(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "22" &&
			strings.Contains(pgErr.Message, "dimensions")
	}
	return false
}

// IsUnreachable reports whether err indicates the database itself is gone
// rather than a statement-level failure.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		// 08xxx: connection exceptions, 57Pxx: shutdown/crash
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
