package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

// Runs implements repo.RunRepo in memory.
type Runs struct {
	mu   sync.RWMutex
	byID map[string]model.Run
}

// NewRuns returns an empty Runs store.
func NewRuns() *Runs {
	return &Runs{byID: make(map[string]model.Run)}
}

func (s *Runs) Create(_ context.Context, r model.Run) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; ok {
		return model.Run{}, repo.ErrConflict
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.byID[r.ID] = r
	return r, nil
}

func (s *Runs) Get(_ context.Context, ownerID, id string) (model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok || (ownerID != "" && r.OwnerID != ownerID) {
		return model.Run{}, repo.ErrNotFound
	}
	return r, nil
}

func (s *Runs) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok || (ownerID != "" && r.OwnerID != ownerID) {
		return repo.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Runs) Search(_ context.Context, f repo.Filter) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []model.Run
	for _, r := range s.byID {
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		if len(f.IDs) > 0 && !containsString(f.IDs, r.ID) {
			continue
		}
		if len(f.Metadata) > 0 && !metadataSubsetMatches(f.Metadata, r.Metadata) {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if f.SortOrder == repo.SortDesc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if f.Offset > len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Runs) Count(ctx context.Context, f repo.Filter) (int, error) {
	f.Limit, f.Offset = 0, 0
	items, err := s.Search(ctx, f)
	return len(items), err
}

func (s *Runs) SetStatus(_ context.Context, id string, status model.RunStatus, phase model.RunPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	r.Status = status
	if phase != "" {
		r.Phase = phase
	}
	r.UpdatedAt = time.Now().UTC()
	s.byID[id] = r
	return nil
}

func (s *Runs) ListByThread(_ context.Context, ownerID, threadID string) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Run
	for _, r := range s.byID {
		if r.ThreadID != threadID {
			continue
		}
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetActiveRun returns the most recent non-terminal run on the thread. Used
// by the multitask policy (spec §4.7.1); the decision is made once from a
// single consistent read, never re-checked mid-execution.
func (s *Runs) GetActiveRun(_ context.Context, ownerID, threadID string) (model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best model.Run
	found := false
	for _, r := range s.byID {
		if r.ThreadID != threadID || r.Status.IsTerminal() {
			continue
		}
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best = r
			found = true
		}
	}
	if !found {
		return model.Run{}, repo.ErrNotFound
	}
	return best, nil
}
