package helpers

import (
	"net/http"
	"strconv"

	"eventregistration/internal/domain"
)

// Pagination query parameter defaults and limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePagination reads page and page_size from the query string. Missing, non-numeric
// or non-positive values fall back to the defaults; page_size is capped at MaxPageSize.
func ParsePagination(r *http.Request) domain.PaginationParams {
	q := r.URL.Query()
	return domain.PaginationParams{
		Page:     min(positiveInt(q.Get("page"), DefaultPage), maxPage),
		PageSize: min(positiveInt(q.Get("page_size"), DefaultPageSize), MaxPageSize),
	}
}

// maxPage keeps Offset from overflowing on absurd page numbers.
const maxPage = 1 << 20

func positiveInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

// PaginationMeta is the pagination metadata included in paginated list responses.
// swagger:model PaginationMeta
type PaginationMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPaginationMeta builds PaginationMeta from the current page, page size, and total count.
func NewPaginationMeta(params domain.PaginationParams, total int) PaginationMeta {
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (total + params.PageSize - 1) / params.PageSize
	}
	return PaginationMeta{
		Page:       params.Page,
		PageSize:   params.PageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Paginate cuts the requested page out of an already loaded list.
func Paginate[T any](r *http.Request, items []T) ([]T, PaginationMeta) {
	params := ParsePagination(r)
	start, end := params.Window(len(items))
	return items[start:end], NewPaginationMeta(params, len(items))
}
