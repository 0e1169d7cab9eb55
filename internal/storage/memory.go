package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/azure/reddit-brand-monitor/internal/models"
)

// MemoryStore keeps mentions in process. Used by tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]models.Mention
}

var _ MentionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]models.Mention)}
}

func (s *MemoryStore) UpsertBatch(_ context.Context, mentions []models.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range mentions {
		existing, ok := s.rows[m.Key()]
		if !ok {
			s.rows[m.Key()] = m
			continue
		}
		existing.Score = m.Score
		if m.Sentiment != "" {
			existing.Sentiment = m.Sentiment
		}
		s.rows[m.Key()] = existing
	}
	return nil
}

func (s *MemoryStore) GetAllIDs(context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.rows))
	for _, m := range s.rows {
		ids[m.ID] = struct{}{}
	}
	return ids, nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, m := range s.rows {
		if m.ID == id {
			delete(s.rows, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) QueryMentions(_ context.Context, filter models.MentionFilter, page models.Page) (*models.MentionPage, error) {
	s.mu.RLock()
	var matched []models.Mention
	for _, m := range s.rows {
		if matchesFilter(m, filter) {
			matched = append(matched, m)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	return paginate(matched, page), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored (id, brand) rows
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Get returns the stored mention for (id, brand)
func (s *MemoryStore) Get(id, brand string) (models.Mention, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[models.Mention{ID: id, Brand: brand}.Key()]
	return m, ok
}

func matchesFilter(m models.Mention, f models.MentionFilter) bool {
	switch {
	case f.Brand != "" && m.Brand != f.Brand:
		return false
	case f.Kind != "" && m.Kind != f.Kind:
		return false
	case f.Source != "" && m.Source != f.Source:
		return false
	case f.Community != "" && m.Community != f.Community:
		return false
	case f.Sentiment != "" && m.Sentiment != f.Sentiment:
		return false
	case !f.Since.IsZero() && m.CreatedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && !m.CreatedAt.Before(f.Until):
		return false
	}
	return true
}

func sortNewestFirst(mentions []models.Mention) {
	sort.Slice(mentions, func(i, j int) bool {
		a, b := mentions[i], mentions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Key() < b.Key()
	})
}

func paginate(all []models.Mention, page models.Page) *models.MentionPage {
	result := &models.MentionPage{
		Results: []models.Mention{},
		Page:    page.Number,
		PerPage: page.PerPage,
		Total:   len(all),
	}

	start := page.Offset()
	if start < 0 || start >= len(all) {
		return result
	}
	end := start + page.PerPage
	if end > len(all) {
		end = len(all)
	}
	result.Results = append(result.Results, all[start:end]...)
	return result
}
