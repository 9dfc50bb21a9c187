package handler

import (
	"net/http"
	"strconv"
)

// Message history pages default to one screenful; the cap bounds the
// per-request row count regardless of what the client asks for.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > MaxPageLimit {
		limit = DefaultPageLimit
	}

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
