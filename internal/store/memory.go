package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hypeindex/enhancement/internal/domain"
)

// Memory is an in-process Store, used in tests and local development.
type Memory struct {
	mu      sync.RWMutex
	content map[string]domain.ContentItem
	scores  map[string]domain.ScoreResult
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		content: make(map[string]domain.ContentItem),
		scores:  make(map[string]domain.ScoreResult),
	}
}

// PutContent seeds a content item.
func (m *Memory) PutContent(item domain.ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[item.ID] = item
}

func (m *Memory) FetchContent(_ context.Context, contentID string) (*domain.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.content[contentID]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	copied := item
	return &copied, nil
}

func (m *Memory) SaveScores(_ context.Context, contentID string, result *domain.ScoreResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[contentID] = *result
	return nil
}

// Scores returns the saved result for contentID, if any.
func (m *Memory) Scores(contentID string) (domain.ScoreResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.scores[contentID]
	return r, ok
}
