// Package model defines the core entities of the agent runtime server:
// assistants, threads, runs and crons. The types here are the persisted
// shape of each entity; storage backends (internal/repo) translate them to
// and from their own document/row representations.
package model

import "time"

type (
	// AssistantConfig is the nested configuration block carried on an
	// Assistant. Configurable holds provider/model/prompt settings merged
	// into the graph's configurable dict at run time (spec §4.7.2).
	AssistantConfig struct {
		Tags          []string       `json:"tags,omitempty"`
		RecursionLimit int           `json:"recursion_limit,omitempty"`
		Configurable  map[string]any `json:"configurable,omitempty"`
	}

	// Assistant is a reusable agent configuration: a graph_id plus the
	// config/context/metadata that parameterize it.
	Assistant struct {
		ID          string          `json:"assistant_id"`
		GraphID     string          `json:"graph_id"`
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Version     int             `json:"version"`
		Config      AssistantConfig `json:"config"`
		Context     map[string]any  `json:"context,omitempty"`
		Metadata    map[string]any  `json:"metadata,omitempty"`
		OwnerID     string          `json:"-"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	// ThreadStatus enumerates the lifecycle states of a Thread.
	ThreadStatus string

	// Thread is a conversation: the unit of persistence and owner scoping
	// for a sequence of runs.
	Thread struct {
		ID          string         `json:"thread_id"`
		Status      ThreadStatus   `json:"status"`
		Values      map[string]any `json:"values,omitempty"`
		Config      map[string]any `json:"config,omitempty"`
		Metadata    map[string]any `json:"metadata,omitempty"`
		Interrupts  map[string]any `json:"interrupts,omitempty"`
		OwnerID     string         `json:"-"`
		CreatedAt   time.Time      `json:"created_at"`
		UpdatedAt   time.Time      `json:"updated_at"`
	}

	// ThreadStateSnapshot is one entry in a thread's append-only state
	// history, keyed by the checkpoint compound identity (spec §3.1, §4.3).
	ThreadStateSnapshot struct {
		ThreadID     string         `json:"-"`
		CheckpointNS string         `json:"checkpoint_ns"`
		CheckpointID string         `json:"checkpoint_id"`
		Values       map[string]any `json:"values"`
		Next         []string       `json:"next,omitempty"`
		Metadata     map[string]any `json:"metadata,omitempty"`
		CreatedAt    time.Time      `json:"created_at"`
	}

	// RunStatus enumerates the one-way state machine of a Run (spec §3.1).
	RunStatus string

	// MultitaskStrategy selects the admission policy applied when a new run
	// arrives on a thread that already has a non-terminal run (spec §4.7.1).
	MultitaskStrategy string

	// RunPhase is a finer-grained, UI-facing execution phase within the
	// running state; it does not replace Status.
	RunPhase string

	// Run is one invocation of an assistant on a thread.
	Run struct {
		ID                string            `json:"run_id"`
		ThreadID          string            `json:"thread_id"`
		AssistantID       string            `json:"assistant_id"`
		Status            RunStatus         `json:"status"`
		Phase             RunPhase          `json:"phase,omitempty"`
		MultitaskStrategy MultitaskStrategy `json:"multitask_strategy"`
		Kwargs            map[string]any    `json:"kwargs,omitempty"`
		Metadata          map[string]any    `json:"metadata,omitempty"`
		OwnerID           string            `json:"-"`
		CreatedAt         time.Time         `json:"created_at"`
		UpdatedAt         time.Time         `json:"updated_at"`
	}

	// CronCompletionPolicy selects what happens to a Cron once its run
	// completes (spec §3.1).
	CronCompletionPolicy string

	// Cron is an in-process recurring run definition (spec §4.6).
	Cron struct {
		ID              string                `json:"cron_id"`
		AssistantID     string                `json:"assistant_id"`
		ThreadID        string                `json:"thread_id,omitempty"`
		Schedule        string                `json:"schedule"`
		Payload         map[string]any        `json:"payload,omitempty"`
		EndTime         *time.Time            `json:"end_time,omitempty"`
		NextRunDate     *time.Time            `json:"next_run_date,omitempty"`
		OnRunCompleted  CronCompletionPolicy  `json:"on_run_completed"`
		Metadata        map[string]any        `json:"metadata,omitempty"`
		OwnerID         string                `json:"-"`
		CreatedAt       time.Time             `json:"created_at"`
		UpdatedAt       time.Time             `json:"updated_at"`
	}
)

const (
	ThreadStatusIdle        ThreadStatus = "idle"
	ThreadStatusBusy        ThreadStatus = "busy"
	ThreadStatusInterrupted ThreadStatus = "interrupted"
	ThreadStatusError       ThreadStatus = "error"

	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusSuccess     RunStatus = "success"
	RunStatusError       RunStatus = "error"
	RunStatusTimeout     RunStatus = "timeout"
	RunStatusInterrupted RunStatus = "interrupted"

	RunPhasePrompted       RunPhase = "prompted"
	RunPhasePlanning       RunPhase = "planning"
	RunPhaseExecutingTools RunPhase = "executing_tools"
	RunPhaseSynthesizing   RunPhase = "synthesizing"

	MultitaskReject   MultitaskStrategy = "reject"
	MultitaskEnqueue  MultitaskStrategy = "enqueue"
	MultitaskRollback MultitaskStrategy = "rollback"
	MultitaskInterrupt MultitaskStrategy = "interrupt"

	CronOnCompleteDelete CronCompletionPolicy = "delete"
	CronOnCompleteKeep   CronCompletionPolicy = "keep"

	// SystemOwner is the reserved owner identity for startup-synced
	// assistants (spec §3.1).
	SystemOwner = "system"
)

// IsTerminal reports whether status is one of the run state machine's
// terminal states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusError, RunStatusTimeout, RunStatusInterrupted:
		return true
	default:
		return false
	}
}

// CheckpointNamespace returns the checkpoint namespace for the given
// assistant, enforcing the single most important invariant in the system
// (spec §3.2, §3.3): every run's checkpoints live under
// "assistant:<assistant_id>" so that two agents sharing a thread never
// collide.
func CheckpointNamespace(assistantID string) string {
	return "assistant:" + assistantID
}
