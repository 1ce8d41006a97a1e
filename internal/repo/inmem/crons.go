package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

// Crons implements repo.CronRepo in memory.
type Crons struct {
	mu   sync.RWMutex
	byID map[string]model.Cron
}

// NewCrons returns an empty Crons store.
func NewCrons() *Crons {
	return &Crons{byID: make(map[string]model.Cron)}
}

func (s *Crons) Create(_ context.Context, c model.Cron) (model.Cron, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return model.Cron{}, repo.ErrConflict
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.byID[c.ID] = c
	return c, nil
}

func (s *Crons) Get(_ context.Context, ownerID, id string) (model.Cron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok || (ownerID != "" && c.OwnerID != ownerID) {
		return model.Cron{}, repo.ErrNotFound
	}
	return c, nil
}

func (s *Crons) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || (ownerID != "" && c.OwnerID != ownerID) {
		return repo.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Crons) Search(_ context.Context, f repo.Filter) ([]model.Cron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []model.Cron
	for _, c := range s.byID {
		if f.OwnerID != "" && c.OwnerID != f.OwnerID {
			continue
		}
		if len(f.IDs) > 0 && !containsString(f.IDs, c.ID) {
			continue
		}
		if len(f.Metadata) > 0 && !metadataSubsetMatches(f.Metadata, c.Metadata) {
			continue
		}
		matched = append(matched, c)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if f.Offset > len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Crons) Count(ctx context.Context, f repo.Filter) (int, error) {
	f.Limit, f.Offset = 0, 0
	items, err := s.Search(ctx, f)
	return len(items), err
}

func (s *Crons) SetNextRunDate(_ context.Context, id string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.NextRunDate = next
	c.UpdatedAt = time.Now().UTC()
	s.byID[id] = c
	return nil
}

func (s *Crons) ListDue(_ context.Context, asOf time.Time) ([]model.Cron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Cron
	for _, c := range s.byID {
		if c.NextRunDate != nil && !c.NextRunDate.After(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}
