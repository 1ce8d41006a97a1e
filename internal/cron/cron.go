// Package cron implements the in-process recurring-run scheduler
// described in spec §4.6: one robfig/cron/v3 timer per Cron entity,
// submitting a run through the same lifecycle engine used by HTTP
// handlers, authenticated as the cron's owner, and either deleting or
// rescheduling itself on completion based on OnRunCompleted and EndTime.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmind/agentrt/internal/graph"
	"github.com/flowmind/agentrt/internal/lifecycle"
	"github.com/flowmind/agentrt/internal/model"
	"github.com/flowmind/agentrt/internal/repo"
)

// Engine runs every Cron entity's schedule in-process and submits a run
// through lifecycle.Engine each time one fires.
type Engine struct {
	Crons     repo.CronRepo
	Lifecycle *lifecycle.Engine
	Warn      func(msg string, args ...any)

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // cron_id -> scheduled entry
}

// NewEngine returns an Engine with its own cron.Cron driver, not yet
// started.
func NewEngine(crons repo.CronRepo, lc *lifecycle.Engine, warn func(string, ...any)) *Engine {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Engine{
		Crons:     crons,
		Lifecycle: lc,
		Warn:      warn,
		cron:      cron.New(),
		entries:   make(map[string]cron.EntryID),
	}
}

// Start loads every persisted Cron, schedules it, and fires any whose
// NextRunDate already elapsed while the process was down before starting
// the underlying driver, so a missed fire is caught up exactly once
// rather than silently skipped.
func (e *Engine) Start(ctx context.Context) error {
	now := time.Now()
	due := make(map[string]bool)
	dueCrons, err := e.Crons.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("cron: list due schedules: %w", err)
	}
	for _, c := range dueCrons {
		due[c.ID] = true
	}

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		crons, err := e.Crons.Search(ctx, repo.Filter{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("cron: list schedules: %w", err)
		}
		for _, c := range crons {
			if err := e.schedule(c); err != nil {
				e.Warn("cron: failed to schedule entry, skipping", "cron_id", c.ID, "error", err)
				continue
			}
			if due[c.ID] {
				go e.fire(c)
			}
		}
		if len(crons) < pageSize {
			break
		}
	}
	e.cron.Start()
	return nil
}

// Stop halts the cron driver, waiting for any in-flight job to return.
func (e *Engine) Stop(ctx context.Context) {
	stopped := e.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// Add schedules a newly created Cron; call after repo.CronRepo.Create.
func (e *Engine) Add(c model.Cron) error {
	return e.schedule(c)
}

// Remove clears the timer for cronID (spec §4.6: "cancellation via
// explicit delete clears the timer"). Safe to call for an unknown ID.
func (e *Engine) Remove(cronID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.entries[cronID]; ok {
		e.cron.Remove(id)
		delete(e.entries, cronID)
	}
}

func (e *Engine) schedule(c model.Cron) error {
	entryID, err := e.cron.AddFunc(c.Schedule, func() { e.fire(c) })
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", c.Schedule, err)
	}
	e.mu.Lock()
	e.entries[c.ID] = entryID
	e.mu.Unlock()
	return nil
}

// fire submits one run for c through the lifecycle engine, then applies
// the completion policy. Errors are logged, never propagated, since this
// runs off the cron driver's own goroutine with nothing to report to.
func (e *Engine) fire(c model.Cron) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if c.EndTime != nil && time.Now().After(*c.EndTime) {
		e.completeOrReschedule(ctx, c)
		return
	}

	threadID := c.ThreadID
	if threadID == "" {
		e.Warn("cron fired with no thread_id, skipping", "cron_id", c.ID)
		e.completeOrReschedule(ctx, c)
		return
	}

	_, err := e.Lifecycle.ExecuteWait(ctx, lifecycle.SubmitRequest{
		OwnerID:         c.OwnerID,
		ThreadID:        threadID,
		AssistantID:     c.AssistantID,
		Input:           inputFromPayload(c.Payload),
		RunConfigurable: configurableFromPayload(c.Payload),
		RunName:         "cron:" + c.ID,
	})
	if err != nil {
		e.Warn("cron run failed", "cron_id", c.ID, "error", err)
	}

	e.completeOrReschedule(ctx, c)
}

// completeOrReschedule applies OnRunCompleted (spec §4.6): delete the Cron
// entirely, or compute and persist its next fire time when the schedule
// expression's next occurrence is still before EndTime.
func (e *Engine) completeOrReschedule(ctx context.Context, c model.Cron) {
	if c.OnRunCompleted == model.CronOnCompleteDelete {
		e.Remove(c.ID)
		if err := e.Crons.Delete(ctx, c.OwnerID, c.ID); err != nil {
			e.Warn("cron: failed to delete completed entry", "cron_id", c.ID, "error", err)
		}
		return
	}

	next := e.nextRunDate(c.ID)
	if c.EndTime != nil && next != nil && next.After(*c.EndTime) {
		e.Remove(c.ID)
		if err := e.Crons.Delete(ctx, c.OwnerID, c.ID); err != nil {
			e.Warn("cron: failed to delete expired entry", "cron_id", c.ID, "error", err)
		}
		return
	}
	if err := e.Crons.SetNextRunDate(ctx, c.ID, next); err != nil {
		e.Warn("cron: failed to persist next_run_date", "cron_id", c.ID, "error", err)
	}
}

func (e *Engine) nextRunDate(cronID string) *time.Time {
	e.mu.Lock()
	id, ok := e.entries[cronID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	next := e.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func inputFromPayload(payload map[string]any) graph.Input {
	raw, _ := payload["messages"].([]any)
	messages := make([]graph.Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		messages = append(messages, graph.Message{Role: role, Content: content})
	}
	return graph.Input{Messages: messages}
}

func configurableFromPayload(payload map[string]any) map[string]any {
	if cfg, ok := payload["configurable"].(map[string]any); ok {
		return cfg
	}
	return nil
}
