// Package store keeps the last completed result set for the lifetime of the
// process.
package store

import (
	"sync"

	"gitnext/internal/model"
)

// Memory holds the most recently stored pull requests. Nothing survives a
// restart.
type Memory struct {
	mu   sync.RWMutex
	data []model.PrioritizedPullRequest
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns a copy of the stored pull requests; empty before the first
// Save.
func (m *Memory) Load() []model.PrioritizedPullRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PrioritizedPullRequest{}, m.data...)
}

// Save replaces the stored pull requests.
func (m *Memory) Save(prs []model.PrioritizedPullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]model.PrioritizedPullRequest{}, prs...)
}
