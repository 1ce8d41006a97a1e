// Package inmem provides in-memory implementations of repo.AssistantRepo,
// repo.ThreadRepo, repo.RunRepo and repo.CronRepo for tests and local
// development. Every operation is thread-safe; records are defensively
// copied on read and write. Production deployments use repo/mongorepo.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

// Assistants implements repo.AssistantRepo in memory.
type Assistants struct {
	mu    sync.RWMutex
	byID  map[string]model.Assistant
}

// NewAssistants returns an empty Assistants store.
func NewAssistants() *Assistants {
	return &Assistants{byID: make(map[string]model.Assistant)}
}

func (s *Assistants) Create(_ context.Context, a model.Assistant, ifExists repo.IfExists) (model.Assistant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[a.ID]; ok {
		if existing.OwnerID == a.OwnerID || existing.OwnerID == model.SystemOwner {
			if ifExists == repo.IfExistsDoNothing {
				return existing, nil
			}
			return model.Assistant{}, repo.ErrConflict
		}
	}
	now := time.Now().UTC()
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	s.byID[a.ID] = a
	return a, nil
}

func (s *Assistants) Get(_ context.Context, ownerID, id string) (model.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok || (a.OwnerID != ownerID && a.OwnerID != model.SystemOwner && ownerID != "") {
		return model.Assistant{}, repo.ErrNotFound
	}
	return a, nil
}

func (s *Assistants) Patch(_ context.Context, ownerID, id string, patch repo.AssistantPatch) (model.Assistant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || (ownerID != "" && a.OwnerID != ownerID) {
		return model.Assistant{}, repo.ErrNotFound
	}
	if patch.GraphID != nil {
		a.GraphID = *patch.GraphID
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Config != nil {
		a.Config = *patch.Config
	}
	if patch.Context != nil {
		a.Context = patch.Context
	}
	if patch.Metadata != nil {
		a.Metadata = patch.Metadata
	}
	// Assistant version monotonicity (spec §3.2, invariant #1): every
	// successful patch increments version by exactly 1.
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	s.byID[id] = a
	return a, nil
}

func (s *Assistants) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || (ownerID != "" && a.OwnerID != ownerID) {
		return repo.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Assistants) Search(_ context.Context, f repo.Filter) ([]model.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []model.Assistant
	for _, a := range s.byID {
		if !matchAssistant(a, f) {
			continue
		}
		matched = append(matched, a)
	}
	sortAssistants(matched, f)
	return paginateAssistants(matched, f), nil
}

func (s *Assistants) Count(_ context.Context, f repo.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.byID {
		if matchAssistant(a, f) {
			n++
		}
	}
	return n, nil
}

func matchAssistant(a model.Assistant, f repo.Filter) bool {
	if f.OwnerID != "" && a.OwnerID != f.OwnerID && a.OwnerID != model.SystemOwner {
		return false
	}
	if f.GraphID != "" && a.GraphID != f.GraphID {
		return false
	}
	if f.Name != "" && a.Name != f.Name {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, a.ID) {
		return false
	}
	if len(f.Metadata) > 0 && !metadataSubsetMatches(f.Metadata, a.Metadata) {
		return false
	}
	return true
}

func sortAssistants(items []model.Assistant, f repo.Filter) {
	sort.SliceStable(items, func(i, j int) bool {
		switch f.SortBy {
		case "name":
			return items[i].Name < items[j].Name
		case "updated_at":
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		default:
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
	})
	if f.SortOrder == repo.SortDesc {
		reverseAssistants(items)
	}
}

func reverseAssistants(items []model.Assistant) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func paginateAssistants(items []model.Assistant, f repo.Filter) []model.Assistant {
	if f.Offset > len(items) {
		return nil
	}
	items = items[f.Offset:]
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
