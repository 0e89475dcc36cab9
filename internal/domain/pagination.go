package domain

// PaginationParams holds offset-based pagination parameters for list queries.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset returns the item offset for the current page (0-based).
// Formula: (Page - 1) * PageSize.
func (p PaginationParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Window returns the [start, end) bounds of the current page within a list of total items.
// Both bounds are clamped to total.
func (p PaginationParams) Window(total int) (start, end int) {
	start = p.Offset()
	if start > total {
		start = total
	}
	end = start + p.PageSize
	if p.PageSize <= 0 || end > total {
		end = total
	}
	return start, end
}
