// Package repo implements the uniform CRUD repository over assistants,
// threads and runs described in spec §4.4: owner filtering on every
// mutating or listing operation, with the two read-only snapshot queries
// (thread state, thread history) deliberately bypassing it (spec §3.2).
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/flowmind/agentrt/internal/model"
)

var (
	// ErrNotFound is returned when a lookup scoped to an owner finds no
	// matching entity, whether because it never existed or because it is
	// owned by someone else — the two cases are indistinguishable by
	// design (spec §7 taxonomy: 404 regardless of cause).
	ErrNotFound = errors.New("repo: not found")

	// ErrConflict is returned by Create with IfExists=IfExistsRaise when an
	// entity with the same ID already exists (spec §4.4, §7).
	ErrConflict = errors.New("repo: conflict")
)

// IfExists selects Create's behavior when an entity with the requested ID
// already exists (spec §4.4, §8 idempotence laws).
type IfExists string

const (
	IfExistsRaise    IfExists = "raise"
	IfExistsDoNothing IfExists = "do_nothing"
)

// SortOrder selects ascending or descending ordering for Search.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter is the shared search/count predicate across all three entities.
// Unset (zero-value) fields are not applied as constraints. Metadata and
// Values are subset matches: every key/value pair listed must be present
// and equal in the target entity's corresponding map.
type Filter struct {
	OwnerID  string
	IDs      []string
	GraphID  string
	Name     string
	Status   string
	Metadata map[string]any
	Values   map[string]any

	Limit     int
	Offset    int
	SortBy    string
	SortOrder SortOrder
}

// AssistantRepo is the CRUD + search surface for Assistant entities.
type AssistantRepo interface {
	Create(ctx context.Context, a model.Assistant, ifExists IfExists) (model.Assistant, error)
	Get(ctx context.Context, ownerID, id string) (model.Assistant, error)
	Patch(ctx context.Context, ownerID, id string, patch AssistantPatch) (model.Assistant, error)
	Delete(ctx context.Context, ownerID, id string) error
	Search(ctx context.Context, f Filter) ([]model.Assistant, error)
	Count(ctx context.Context, f Filter) (int, error)
}

// AssistantPatch carries the optional fields of a PATCH /assistants/{id}
// request; nil fields are left untouched.
type AssistantPatch struct {
	GraphID     *string
	Name        *string
	Description *string
	Config      *model.AssistantConfig
	Context     map[string]any
	Metadata    map[string]any
}

// ThreadRepo is the CRUD + search surface for Thread entities, plus the two
// owner-filter-bypassing snapshot queries (spec §3.2, §4.4).
type ThreadRepo interface {
	Create(ctx context.Context, t model.Thread, ifExists IfExists) (model.Thread, error)
	Get(ctx context.Context, ownerID, id string) (model.Thread, error)
	Patch(ctx context.Context, ownerID, id string, patch ThreadPatch) (model.Thread, error)
	Delete(ctx context.Context, ownerID, id string) error
	Search(ctx context.Context, f Filter) ([]model.Thread, error)
	Count(ctx context.Context, f Filter) (int, error)

	// SetStatus transitions thread status without requiring a full patch
	// payload; used by the lifecycle engine at run start/end.
	SetStatus(ctx context.Context, id string, status model.ThreadStatus) error

	// AppendStateSnapshot records a new entry in the thread's append-only
	// history and updates Thread.Values to match, in one atomic step.
	AppendStateSnapshot(ctx context.Context, snap model.ThreadStateSnapshot) error

	// GetState returns the most recent state snapshot for the thread,
	// without owner filtering (spec §3.2, §6.1 `GET /threads/{id}/state`).
	GetState(ctx context.Context, id string) (model.ThreadStateSnapshot, error)

	// GetHistory returns the full snapshot history, without owner
	// filtering, newest first, limited to limit entries (already clamped
	// to [1,1000] by the caller).
	GetHistory(ctx context.Context, id string, limit int) ([]model.ThreadStateSnapshot, error)
}

// ThreadPatch carries the optional fields of a thread update.
type ThreadPatch struct {
	Metadata map[string]any
	Config   map[string]any
}

// RunRepo is the CRUD + search surface for Run entities, plus
// GetActiveRun used by the multitask policy (spec §4.4, §4.7.1).
type RunRepo interface {
	Create(ctx context.Context, r model.Run) (model.Run, error)
	Get(ctx context.Context, ownerID, id string) (model.Run, error)
	Delete(ctx context.Context, ownerID, id string) error
	Search(ctx context.Context, f Filter) ([]model.Run, error)
	Count(ctx context.Context, f Filter) (int, error)

	// SetStatus is used by the lifecycle engine to move a run through its
	// one-way state machine. It also stamps Phase when non-empty and
	// UpdatedAt.
	SetStatus(ctx context.Context, id string, status model.RunStatus, phase model.RunPhase) error

	// ListByThread returns every run on the thread, newest first, scoped
	// to the owner.
	ListByThread(ctx context.Context, ownerID, threadID string) ([]model.Run, error)

	// GetActiveRun returns the most recent non-terminal run on the thread,
	// or ErrNotFound if none exists. Scoped to owner (a run's ownership is
	// inherited from its thread, spec §3.1).
	GetActiveRun(ctx context.Context, ownerID, threadID string) (model.Run, error)
}

// CronRepo is the CRUD + search surface for Cron entities (spec §4.6).
type CronRepo interface {
	Create(ctx context.Context, c model.Cron) (model.Cron, error)
	Get(ctx context.Context, ownerID, id string) (model.Cron, error)
	Delete(ctx context.Context, ownerID, id string) error
	Search(ctx context.Context, f Filter) ([]model.Cron, error)
	Count(ctx context.Context, f Filter) (int, error)
	SetNextRunDate(ctx context.Context, id string, next *time.Time) error
	// ListDue returns crons whose NextRunDate is non-nil and <= asOf,
	// used by the scheduler to recover missed fires after a restart.
	ListDue(ctx context.Context, asOf time.Time) ([]model.Cron, error)
}

