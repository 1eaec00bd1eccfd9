package sched

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineName identifies the execution engine in status snapshots.
const EngineName = "casevine-deferred"

// EngineConfig contains configuration for the job engine.
type EngineConfig struct {
	Interval time.Duration // How often to check for due jobs (default: 1 second)
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Interval: 1 * time.Second,
	}
}

// Engine fires due jobs. A single worker goroutine wakes at the configured
// interval, claims every due job by removing its row, and executes the
// matching handler. A job fires at most once: claiming precedes execution,
// and a handler failure terminates the job's lifecycle without re-arming.
type Engine struct {
	store      *Store
	handlers   *Handlers
	interval   time.Duration
	instanceID string
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

// Status is an observational snapshot of the engine. It is exposed for
// operational logging only and is not a stable API.
type Status struct {
	Engine        string    `json:"engine"`
	InstanceID    string    `json:"instanceId"`
	RunningSince  time.Time `json:"runningSince"`
	ScheduledJobs int       `json:"scheduledJobs"`
}

// NewEngine creates a job engine over the store and handler set.
func NewEngine(store *Store, handlers *Handlers, cfg EngineConfig, log *zap.SugaredLogger) *Engine {
	return NewEngineWithContext(context.Background(), store, handlers, cfg, log)
}

// NewEngineWithContext creates an engine with a parent context.
func NewEngineWithContext(ctx context.Context, store *Store, handlers *Handlers, cfg EngineConfig, log *zap.SugaredLogger) *Engine {
	engineCtx, cancel := context.WithCancel(ctx)
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultEngineConfig().Interval
	}

	return &Engine{
		store:      store,
		handlers:   handlers,
		interval:   interval,
		instanceID: uuid.NewString(),
		ctx:        engineCtx,
		cancel:     cancel,
		log:        log,
	}
}

// Start begins the engine loop.
func (e *Engine) Start() {
	e.startedAt = time.Now()
	e.wg.Add(1)
	go e.run()
	e.log.Infow("Job engine started",
		"engine", EngineName,
		"instance_id", e.instanceID,
		"interval", e.interval,
	)
}

// Stop gracefully stops the engine. A job whose firing has already begun
// runs to completion; no new jobs are claimed afterwards.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	e.log.Infow("Job engine stopped", "instance_id", e.instanceID)
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case tickTime := <-ticker.C:
			if err := e.tick(tickTime); err != nil {
				e.log.Warnw("Engine tick error", "error", err)
			}
		}
	}
}

// tick claims and fires every job due at now. Each job row is removed
// before its handler runs, so a concurrent delete or update cannot cancel
// a firing already in flight, and a firing can never repeat.
func (e *Engine) tick(now time.Time) error {
	due, err := e.store.ListDue(e.ctx, now)
	if err != nil {
		return err
	}

	for _, job := range due {
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		default:
		}

		claimed, err := e.store.Delete(job.Identity)
		if err != nil {
			e.log.Errorw("Failed to claim due job", "identity", job.Identity, "error", err)
			continue
		}
		if !claimed {
			// Deleted underneath us between listing and claiming.
			continue
		}

		e.fire(job)
	}

	return nil
}

// fire executes a claimed job. Handler failures are surfaced here, logged
// once in the uniform wrapped form, and never retried.
func (e *Engine) fire(job *Job) {
	start := time.Now()
	if err := e.handlers.Execute(e.ctx, job); err != nil {
		e.log.Errorw("Job execution failed",
			"identity", job.Identity,
			"kind", job.Kind,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return
	}

	e.log.Debugw("Job fired",
		"identity", job.Identity,
		"kind", job.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Status returns the engine's diagnostic snapshot. It never fails: a store
// error is logged and the count reported as zero.
func (e *Engine) Status() Status {
	count, err := e.store.Count()
	if err != nil {
		e.log.Errorw("Failed to count scheduled jobs", "error", err)
		count = 0
	}

	return Status{
		Engine:        EngineName,
		InstanceID:    e.instanceID,
		RunningSince:  e.startedAt,
		ScheduledJobs: count,
	}
}

// LogStatus writes the status snapshot to the log.
func (e *Engine) LogStatus() {
	st := e.Status()
	e.log.Infow("Engine status",
		"engine", st.Engine,
		"instance_id", st.InstanceID,
		"running_since", st.RunningSince,
		"scheduled_jobs", st.ScheduledJobs,
	)
}
