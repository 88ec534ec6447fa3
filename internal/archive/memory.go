package archive

import (
	"context"
	"sync"

	"realtalk/internal/domain"
)

// MemoryStore keeps archived transcripts for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.TranscriptItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]domain.TranscriptItem)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, item domain.TranscriptItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return ErrClosed
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], item)
	return nil
}

// List returns nil for unknown sessions.
func (s *MemoryStore) List(_ context.Context, sessionID string) ([]domain.TranscriptItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sessions == nil {
		return nil, ErrClosed
	}
	items := s.sessions[sessionID]
	if len(items) == 0 {
		return nil, nil
	}
	return append([]domain.TranscriptItem(nil), items...), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	return nil
}
