// Package store defines the two narrow contracts the enhancement core has
// with the platform's persistence layer: reading content by ID and writing
// score results back.
package store

import (
	"context"
	"errors"

	"github.com/hypeindex/enhancement/internal/domain"
)

// ErrNotFound is returned when the content ID does not exist. The queue
// treats it as a terminal job failure.
var ErrNotFound = errors.New("content not found")

// ContentStore reads content items owned by the surrounding platform.
type ContentStore interface {
	FetchContent(ctx context.Context, contentID string) (*domain.ContentItem, error)
}

// ResultStore persists score results. Saving the same content ID again
// replaces the prior result wholesale.
type ResultStore interface {
	SaveScores(ctx context.Context, contentID string, result *domain.ScoreResult) error
}

// Store is the combined persistence surface the queue depends on.
type Store interface {
	ContentStore
	ResultStore
}
