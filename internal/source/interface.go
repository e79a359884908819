package source

import (
	"context"
	"fmt"
	"strconv"
)

// Item is one document offered by a bulk import source.
type Item struct {
	SourceID    string // Unique ID within the source
	Filename    string
	ContentType string // Optional; inferred from Filename when empty
	TenantID    string
	LocalPath   string
	Size        int64
}

// Source defines the interface for bulk document sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}

// Page slices items by an index cursor. Adapters that load their whole listing
// up front use it to implement FetchBatch.
func Page(items []Item, cursor string, limit int) ([]Item, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(items) {
		return []Item{}, "", nil
	}

	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next, nil
}
