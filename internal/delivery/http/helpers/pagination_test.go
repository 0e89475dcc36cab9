package helpers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventregistration/internal/domain"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query string
		want  domain.PaginationParams
	}{
		{"", domain.PaginationParams{Page: 1, PageSize: 20}},
		{"page=3&page_size=5", domain.PaginationParams{Page: 3, PageSize: 5}},
		{"page=0&page_size=-1", domain.PaginationParams{Page: 1, PageSize: 20}},
		{"page=abc&page_size=x", domain.PaginationParams{Page: 1, PageSize: 20}},
		{"page_size=500", domain.PaginationParams{Page: 1, PageSize: MaxPageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/items?"+tt.query, nil)
			assert.Equal(t, tt.want, ParsePagination(r))
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	r := httptest.NewRequest(http.MethodGet, "/items?page=2&page_size=2", nil)
	page, meta := Paginate(r, items)
	assert.Equal(t, []string{"c", "d"}, page)
	assert.Equal(t, PaginationMeta{Page: 2, PageSize: 2, Total: 5, TotalPages: 3}, meta)

	r = httptest.NewRequest(http.MethodGet, "/items?page=4&page_size=2", nil)
	page, meta = Paginate(r, items)
	assert.Empty(t, page)
	assert.Equal(t, 5, meta.Total)
}
