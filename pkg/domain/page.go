package domain

// Pagination bounds.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageRequest selects one page of a listing.
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest validates page and limit, applying defaults for zero values.
func NewPageRequest(page, limit int) (PageRequest, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page < 1 {
		return PageRequest{}, ErrInvalidPage
	}
	if limit < 1 || limit > MaxPageLimit {
		return PageRequest{}, ErrInvalidLimit
	}
	return PageRequest{Page: page, Limit: limit}, nil
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta describes where a page sits in the full listing.
type PageMeta struct {
	CurrentPage     int  `json:"current_page"`
	TotalItems      int  `json:"total_items"`
	ItemsPerPage    int  `json:"items_per_page"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// Page is one page of results.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPage builds a page from the rows and the total count.
func NewPage[T any](data []T, total int, req PageRequest) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return Page[T]{
		Data: data,
		Meta: PageMeta{
			CurrentPage:     req.Page,
			TotalItems:      total,
			ItemsPerPage:    req.Limit,
			TotalPages:      pages,
			HasNextPage:     req.Page < pages,
			HasPreviousPage: req.Page > 1,
		},
	}
}
