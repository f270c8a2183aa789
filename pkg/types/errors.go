package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsplittable is returned when text exceeds the budget and has no
	// heading boundary left to split on. It is terminal and never retried.
	ErrUnsplittable = errors.New("unsplittable content")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// Search result errors
	ErrInvalidSectionID = errors.New("invalid section ID")
	ErrInvalidRank      = errors.New("rank must be >= 1")
	ErrMissingPath      = errors.New("path is required")
)

// UnsplittableError carries the location of an oversized span.
type UnsplittableError struct {
	Heading string // Enclosing heading, "" at document level
	Tokens  int
	Budget  int
}

func (e *UnsplittableError) Error() string {
	where := "document root"
	if e.Heading != "" {
		where = fmt.Sprintf("section %q", e.Heading)
	}
	return fmt.Sprintf("%s: %s is %d tokens with no heading boundary (budget %d)",
		ErrUnsplittable, where, e.Tokens, e.Budget)
}

// Unwrap lets errors.Is match ErrUnsplittable.
func (e *UnsplittableError) Unwrap() error {
	return ErrUnsplittable
}
