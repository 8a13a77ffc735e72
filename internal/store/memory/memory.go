// Package memory provides in-process store implementations. Used for tests
// and single-node deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// CacheStore is the in-memory manual.CacheStore.
type CacheStore struct {
	mu      sync.RWMutex
	records map[string]manual.CacheRecord
}

// NewCacheStore builds an empty cache store.
func NewCacheStore() *CacheStore {
	return &CacheStore{records: make(map[string]manual.CacheRecord)}
}

func (s *CacheStore) GetByModel(_ context.Context, model string) (manual.CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[manual.NormalizeModel(model)]
	if !ok {
		return manual.CacheRecord{}, manual.ErrNotFound
	}
	return record, nil
}

// Upsert stores the record under its normalized model key. The write wins
// over whatever was there; concurrent writers race and the last one sticks.
func (s *CacheStore) Upsert(_ context.Context, record manual.CacheRecord) (manual.CacheRecord, error) {
	record.Model = manual.NormalizeModel(record.Model)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Model] = record
	return record, nil
}

// List returns records whose model, brand or name contains search,
// case-insensitively. An empty search returns everything. Results are sorted
// by model.
func (s *CacheStore) List(_ context.Context, search string) ([]manual.CacheRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(search))
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]manual.CacheRecord, 0, len(s.records))
	for _, record := range s.records {
		if needle != "" &&
			!strings.Contains(strings.ToLower(record.Model), needle) &&
			!strings.Contains(strings.ToLower(record.Brand), needle) &&
			!strings.Contains(strings.ToLower(record.Name), needle) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// ItemStore is the in-memory manual.ItemStore.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]manual.WorkItem
	order []string
}

// NewItemStore builds an empty item store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]manual.WorkItem)}
}

func (s *ItemStore) CreateItems(_ context.Context, items []manual.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, exists := s.items[item.ID]; !exists {
			s.order = append(s.order, item.ID)
		}
		s.items[item.ID] = item
	}
	return nil
}

func (s *ItemStore) GetItem(_ context.Context, id string) (manual.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return manual.WorkItem{}, manual.ErrNotFound
	}
	return item, nil
}

func (s *ItemStore) UpdateItem(_ context.Context, item manual.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return manual.ErrNotFound
	}
	s.items[item.ID] = item
	return nil
}

// ListByProject returns the project's items in creation order.
func (s *ItemStore) ListByProject(_ context.Context, projectID string) ([]manual.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []manual.WorkItem
	for _, id := range s.order {
		if item := s.items[id]; item.ProjectID == projectID {
			out = append(out, item)
		}
	}
	return out, nil
}

// ProjectStore is the in-memory manual.ProjectStore.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]manual.Project
}

// NewProjectStore builds an empty project store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[string]manual.Project)}
}

func (s *ProjectStore) CreateProject(_ context.Context, project manual.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
	return nil
}

func (s *ProjectStore) GetProject(_ context.Context, id string) (manual.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return manual.Project{}, manual.ErrNotFound
	}
	return project, nil
}
