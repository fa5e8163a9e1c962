package util

import "strconv"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and size query values. Missing, malformed or out of
// range values fall back to the first page of DefaultPageSize.
func ParsePage(page, size string) Page {
	n, err := strconv.Atoi(page)
	if err != nil || n < 1 {
		n = 1
	}
	s, err := strconv.Atoi(size)
	if err != nil || s <= 0 || s > MaxPageSize {
		s = DefaultPageSize
	}
	return Page{Number: n, Size: s}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

func (p Page) Limit() int { return p.Size }
