package inmem

import (
	"sort"
	"sync"
	"time"

	"context"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

// Threads implements repo.ThreadRepo in memory.
type Threads struct {
	mu        sync.RWMutex
	byID      map[string]model.Thread
	history   map[string][]model.ThreadStateSnapshot // threadID -> snapshots, oldest first
}

// NewThreads returns an empty Threads store.
func NewThreads() *Threads {
	return &Threads{byID: make(map[string]model.Thread), history: make(map[string][]model.ThreadStateSnapshot)}
}

func (s *Threads) Create(_ context.Context, t model.Thread, ifExists repo.IfExists) (model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[t.ID]; ok {
		if ifExists == repo.IfExistsDoNothing {
			return existing, nil
		}
		return model.Thread{}, repo.ErrConflict
	}
	now := time.Now().UTC()
	if t.Status == "" {
		t.Status = model.ThreadStatusIdle
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	s.byID[t.ID] = t
	return t, nil
}

func (s *Threads) Get(_ context.Context, ownerID, id string) (model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok || (ownerID != "" && t.OwnerID != ownerID) {
		return model.Thread{}, repo.ErrNotFound
	}
	return t, nil
}

func (s *Threads) Patch(_ context.Context, ownerID, id string, patch repo.ThreadPatch) (model.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || (ownerID != "" && t.OwnerID != ownerID) {
		return model.Thread{}, repo.ErrNotFound
	}
	if patch.Metadata != nil {
		t.Metadata = patch.Metadata
	}
	if patch.Config != nil {
		t.Config = patch.Config
	}
	t.UpdatedAt = time.Now().UTC()
	s.byID[id] = t
	return t, nil
}

func (s *Threads) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || (ownerID != "" && t.OwnerID != ownerID) {
		return repo.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.history, id)
	return nil
}

func (s *Threads) Search(_ context.Context, f repo.Filter) ([]model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []model.Thread
	for _, t := range s.byID {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if len(f.IDs) > 0 && !containsString(f.IDs, t.ID) {
			continue
		}
		if len(f.Metadata) > 0 && !metadataSubsetMatches(f.Metadata, t.Metadata) {
			continue
		}
		if len(f.Values) > 0 && !metadataSubsetMatches(f.Values, t.Values) {
			continue
		}
		matched = append(matched, t)
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

func (s *Threads) Count(ctx context.Context, f repo.Filter) (int, error) {
	f.Limit, f.Offset = 0, 0
	items, err := s.Search(ctx, f)
	return len(items), err
}

func (s *Threads) SetStatus(_ context.Context, id string, status model.ThreadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	s.byID[id] = t
	return nil
}

func (s *Threads) AppendStateSnapshot(_ context.Context, snap model.ThreadStateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.history[snap.ThreadID] = append(s.history[snap.ThreadID], snap)
	if t, ok := s.byID[snap.ThreadID]; ok {
		t.Values = snap.Values
		t.UpdatedAt = snap.CreatedAt
		s.byID[snap.ThreadID] = t
	}
	return nil
}

// GetState is intentionally unscoped by owner (spec §3.2): any caller who
// knows the thread ID may read its latest snapshot.
func (s *Threads) GetState(_ context.Context, id string) (model.ThreadStateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.history[id]
	if len(snaps) == 0 {
		return model.ThreadStateSnapshot{}, repo.ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

// GetHistory is intentionally unscoped by owner (spec §3.2).
func (s *Threads) GetHistory(_ context.Context, id string, limit int) ([]model.ThreadStateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.history[id]
	out := make([]model.ThreadStateSnapshot, len(snaps))
	for i, snap := range snaps {
		out[len(snaps)-1-i] = snap
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
