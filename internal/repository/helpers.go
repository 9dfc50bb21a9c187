package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a typed NOT_FOUND error so callers branch on the code instead of the
// sql sentinel.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err, "Item")
func HandleNotFound[T any](result *T, err error, resource string) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(resource)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Used by find-or-create paths to detect a lost insert race.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
