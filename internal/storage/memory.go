package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/xaenox/herald-bot/internal/models"
)

type MemoryStorage struct {
	mu     sync.RWMutex
	admins map[string]models.AdminDocument
}

func NewMemoryStorage(docs ...models.AdminDocument) *MemoryStorage {
	s := &MemoryStorage{
		admins: make(map[string]models.AdminDocument, len(docs)),
	}
	for _, doc := range docs {
		s.admins[doc.ID] = doc
	}
	return s
}

func (s *MemoryStorage) ListAdmins(ctx context.Context) ([]models.AdminDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]models.AdminDocument, 0, len(s.admins))
	for _, doc := range s.admins {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStorage) ReplaceAdmins(ctx context.Context, docs []models.AdminDocument) error {
	next := make(map[string]models.AdminDocument, len(docs))
	for _, doc := range docs {
		next[doc.ID] = doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.admins = next
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
