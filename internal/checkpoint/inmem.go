package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InmemFactory vends Checkpointer handles backed by a single in-process
// store shared by every acquisition. Unlike a pooled connection with an
// internal lock (the trap spec §5 calls out), the lock here only guards the
// map itself for the duration of a single read/write, never across a whole
// request — acquisitions never block each other.
type InmemFactory struct {
	mu      sync.RWMutex
	history map[string][]Snapshot // key: threadID + "\x00" + checkpointNS
}

// NewInmemFactory returns a ready-to-use InmemFactory.
func NewInmemFactory() *InmemFactory {
	return &InmemFactory{history: make(map[string][]Snapshot)}
}

func key(threadID, ns string) string { return threadID + "\x00" + ns }

// Acquire returns a lightweight handle sharing the factory's backing store.
func (f *InmemFactory) Acquire(context.Context) (Checkpointer, error) {
	return &inmemCheckpointer{factory: f}, nil
}

type inmemCheckpointer struct {
	factory *InmemFactory
}

func (c *inmemCheckpointer) GetState(_ context.Context, threadID, ns string) (Snapshot, error) {
	c.factory.mu.RLock()
	defer c.factory.mu.RUnlock()
	snaps := c.factory.history[key(threadID, ns)]
	if len(snaps) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

func (c *inmemCheckpointer) GetHistory(_ context.Context, threadID, ns string, limit int, before string) ([]Snapshot, error) {
	c.factory.mu.RLock()
	defer c.factory.mu.RUnlock()
	snaps := c.factory.history[key(threadID, ns)]
	// Copy and reverse to descending-time order.
	ordered := make([]Snapshot, len(snaps))
	for i, s := range snaps {
		ordered[len(snaps)-1-i] = s
	}
	if before != "" {
		for i, s := range ordered {
			if s.CheckpointID == before {
				ordered = ordered[i+1:]
				break
			}
		}
	}
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (c *inmemCheckpointer) Put(_ context.Context, snap Snapshot) error {
	if snap.CheckpointID == "" {
		snap.CheckpointID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	c.factory.mu.Lock()
	defer c.factory.mu.Unlock()
	k := key(snap.ThreadID, snap.CheckpointNS)
	c.factory.history[k] = append(c.factory.history[k], snap)
	return nil
}

func (c *inmemCheckpointer) Delete(_ context.Context, threadID, ns string) error {
	c.factory.mu.Lock()
	defer c.factory.mu.Unlock()
	delete(c.factory.history, key(threadID, ns))
	return nil
}

func (c *inmemCheckpointer) Close(context.Context) error { return nil }

// Name implements goa.design/clue/health.Pinger.
func (f *InmemFactory) Name() string { return "checkpoint-inmem" }

// Ping implements goa.design/clue/health.Pinger.
func (f *InmemFactory) Ping(context.Context) error { return nil }
