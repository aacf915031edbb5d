// Package storage holds the board repositories and the messaging plumbing of
// the board API.
package storage

import (
	"context"

	"taskboard/domain"
)

// Record is a stored board plus the opaque version tag used for optimistic
// concurrency.
type Record struct {
	Board domain.Board
	ETag  string
}

// Repository persists whole boards. Get returns nil, nil for a missing board.
// Replace fails with domain.ErrConcurrencyConflict when etag is no longer
// current.
type Repository interface {
	List(ctx context.Context) ([]domain.Board, error)
	Get(ctx context.Context, id string) (*Record, error)
	Insert(ctx context.Context, b domain.Board) (string, error)
	Replace(ctx context.Context, b domain.Board, etag string) (string, error)
	Delete(ctx context.Context, id string) error
}
