package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/likesync/internal/shared"
)

// PageFunc retrieves one page of at most limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// FetchAll collects every item by requesting pages at offsets 0, limit, 2*limit, ... until a page comes back empty.
//
// The response's total counter is never consulted. Items the API might return after the first empty page are not
// seen. The first error aborts the fetch and no partial result is returned.
func FetchAll[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive, got %d", shared.ErrInvalidArgument, limit)
	}

	var items []T
	for offset := 0; ; offset += limit {
		page, err := fetch(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return items, nil
		}
		items = append(items, page...)
	}
}

// FindFirst pages through the collection like [FetchAll] and returns the first item satisfying match.
//
// Paging stops at the matching page. The boolean is false when the collection is exhausted without a match.
func FindFirst[T any](ctx context.Context, limit int, fetch PageFunc[T], match func(T) bool) (T, bool, error) {
	var zero T
	if limit <= 0 {
		return zero, false, fmt.Errorf("%w: page size must be positive, got %d", shared.ErrInvalidArgument, limit)
	}

	for offset := 0; ; offset += limit {
		page, err := fetch(ctx, limit, offset)
		if err != nil {
			return zero, false, err
		}
		if len(page) == 0 {
			return zero, false, nil
		}
		for _, item := range page {
			if match(item) {
				return item, true, nil
			}
		}
	}
}
