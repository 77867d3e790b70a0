package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// MemoryRepo is an in-memory repository used for unit tests and local runs
// without a database. All lookups are tenant-scoped.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	m.store[doc.ID] = doc
	return doc.ID, nil
}

func (m *MemoryRepo) Get(tenantID, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok && d.TenantID == tenantID {
		return d, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(tenantID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryRepo) Update(tenantID, id string, u document.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	if u.Title != nil {
		d.Title = *u.Title
	}
	if u.Content != nil {
		d.Content = *u.Content
	}
	if u.Tags != nil {
		d.Tags = *u.Tags
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) Delete(tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
