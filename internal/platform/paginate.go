package platform

import (
	"context"
	"fmt"

	"github.com/bcnelson/teamsync/internal/domain"
)

// Reference pagination bounds.
const (
	DefaultPageSize = 60
	DefaultMaxPages = 1000
)

// PageFunc fetches one page.
type PageFunc[T any] func(ctx context.Context, page, perPage int) ([]T, error)

// Paginate walks pages starting at 0 until a page comes back shorter than
// perPage (an empty page included). It never fetches more than maxPages
// pages: the bound counts full pages, so a source holding exactly
// maxPages*perPage items, whose end could only be seen on one more page,
// fails with domain.ErrPaginationExhausted like an endless one.
// requests is the number of pages fetched.
func Paginate[T any](ctx context.Context, perPage, maxPages int, fetch PageFunc[T]) (items []T, requests int, err error) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, requests, err
		}
		batch, err := fetch(ctx, page, perPage)
		requests++
		if err != nil {
			return items, requests, err
		}
		items = append(items, batch...)
		if len(batch) < perPage {
			return items, requests, nil
		}
	}
	return items, requests, fmt.Errorf("%w: still receiving full pages after %d pages of %d", domain.ErrPaginationExhausted, maxPages, perPage)
}
