// Package pagination provides page/limit pagination for list endpoints.
package pagination

import (
	"fmt"
	"math"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is a validated page request.
type Page struct {
	Number int
	Limit  int
}

// Parse reads page and limit query values. Empty values take the defaults
// (page 1, DefaultLimit); limits above MaxLimit are clamped. Pages whose
// offset would not fit in an int are rejected.
func Parse(page, limit string) (Page, error) {
	p := Page{Number: 1, Limit: DefaultLimit}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("page must be a positive integer")
		}
		p.Number = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("limit must be a positive integer")
		}
		p.Limit = min(n, MaxLimit)
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return Page{}, fmt.Errorf("page is out of range")
	}
	return p, nil
}

// Offset is the number of rows to skip for this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages returns how many pages of p.Limit cover total items.
func (p Page) TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Slice returns the window of items for this page.
func Slice[T any](items []T, p Page) []T {
	start := p.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := min(start+p.Limit, len(items))
	return items[start:end]
}
