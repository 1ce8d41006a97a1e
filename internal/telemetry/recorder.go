package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/flowmind/agentrt/internal/model"
)

// Recorder implements lifecycle.Engine's Tracer interface: it opens a
// span and starts a timer on RunStarted, then on RunFinished closes the
// span and records the run's duration and outcome as metrics.
type Recorder struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer

	mu      sync.Mutex
	started map[string]time.Time
}

// NewRecorder builds a Recorder. Any nil component is replaced with its
// no-op implementation so a Recorder is always safe to use.
func NewRecorder(logger Logger, metrics Metrics, tracer Tracer) *Recorder {
	if logger == nil {
		logger = NewNoopLogger()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	return &Recorder{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		started: make(map[string]time.Time),
	}
}

// RunStarted opens a span for the run and records its start time.
func (r *Recorder) RunStarted(ctx context.Context, run model.Run) {
	_, span := r.Tracer.Start(ctx, "run.execute")
	span.AddEvent("run_started",
		"run_id", run.ID, "thread_id", run.ThreadID, "assistant_id", run.AssistantID)

	r.mu.Lock()
	r.started[run.ID] = time.Now()
	r.mu.Unlock()

	r.Metrics.IncCounter("agentrt_runs_started_total", 1, "assistant_id", run.AssistantID)
	r.Logger.Info(ctx, "run started", "run_id", run.ID, "thread_id", run.ThreadID)
}

// RunFinished records the run's duration and terminal status, closing
// out the span opened by RunStarted.
func (r *Recorder) RunFinished(ctx context.Context, run model.Run, err error) {
	r.mu.Lock()
	start, ok := r.started[run.ID]
	delete(r.started, run.ID)
	r.mu.Unlock()

	var duration time.Duration
	if ok {
		duration = time.Since(start)
	}

	status := string(run.Status)
	r.Metrics.RecordTimer("agentrt_run_duration_seconds", duration, "assistant_id", run.AssistantID, "status", status)
	r.Metrics.IncCounter("agentrt_runs_finished_total", 1, "assistant_id", run.AssistantID, "status", status)

	span := r.Tracer.Span(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.AddEvent("run_finished", "run_id", run.ID, "status", status)
	span.End()

	if err != nil {
		r.Logger.Warn(ctx, "run finished with error", "run_id", run.ID, "status", status, "error", err, "duration_ms", duration.Milliseconds())
		return
	}
	r.Logger.Info(ctx, "run finished", "run_id", run.ID, "status", status, "duration_ms", duration.Milliseconds())
}
