/*
runner.go - Background run coordinator

PURPOSE:
  Executes reconciliation runs in background goroutines so the trigger
  endpoint can return immediately with a run id. Enforces one active run
  per course; concurrent runs against the same course would race on the
  same LMS overrides.

DESIGN:
  - Trigger persists a pending run record before the goroutine starts,
    so the run is visible to GET the moment the 202 goes out
  - The reconciler upserts the same record through running/completed/
    failed, giving the API a consistent lifecycle to poll
  - Shutdown stops accepting new runs and waits for active ones, bounded
    by the caller's context

SEE ALSO:
  - handlers.go: TriggerRun endpoint
  - rap/reconcile.go: The run itself
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adapt/rap-engine/rap"
)

// ErrShuttingDown means the runner no longer accepts new runs.
var ErrShuttingDown = errors.New("server is shutting down")

// SourceFactory builds the record sources for a course at trigger time.
// Rebuilding per run picks up files that moved or appeared between runs.
type SourceFactory func(course rap.CourseID) ([]rap.RecordSource, error)

// Runner coordinates background reconciliation runs.
type Runner struct {
	reconciler *rap.Reconciler
	state      rap.RunStore
	sources    SourceFactory
	log        *zap.Logger

	mu     sync.Mutex
	active map[rap.CourseID]string
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a run coordinator around a configured reconciler.
func NewRunner(reconciler *rap.Reconciler, state rap.RunStore, sources SourceFactory, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		reconciler: reconciler,
		state:      state,
		sources:    sources,
		log:        logger,
		active:     make(map[rap.CourseID]string),
	}
}

// Trigger starts a reconciliation run in the background and returns its
// run id. The pending run record is persisted before Trigger returns.
func (rn *Runner) Trigger(ctx context.Context, course rap.CourseID, replaceManual, dryRun bool) (string, error) {
	sources, err := rn.sources(course)
	if err != nil {
		return "", fmt.Errorf("sources for %s: %w", course, err)
	}

	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.closed {
		return "", ErrShuttingDown
	}
	if id, ok := rn.active[course]; ok {
		return "", fmt.Errorf("run %s: %w", id, rap.ErrRunActive)
	}

	runID := uuid.NewString()
	rec := &rap.RunRecord{
		ID:        runID,
		Course:    course,
		Status:    rap.RunPending,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
	if err := rn.state.SaveRun(ctx, rec); err != nil {
		return "", fmt.Errorf("record pending run: %w", err)
	}

	rn.active[course] = runID
	rn.wg.Add(1)
	go rn.execute(runID, course, sources, replaceManual, dryRun)

	rn.log.Info("run accepted",
		zap.String("run_id", runID),
		zap.String("course", string(course)),
		zap.Bool("dry_run", dryRun))
	return runID, nil
}

// execute owns the run lifecycle after Trigger returns. It deliberately
// uses a background context: the triggering HTTP request is long gone by
// the time the run finishes.
func (rn *Runner) execute(runID string, course rap.CourseID, sources []rap.RecordSource, replaceManual, dryRun bool) {
	defer rn.wg.Done()
	defer func() {
		rn.mu.Lock()
		delete(rn.active, course)
		rn.mu.Unlock()
	}()

	_, err := rn.reconciler.Run(context.Background(), rap.RunInput{
		RunID:         runID,
		Course:        course,
		Sources:       sources,
		ReplaceManual: replaceManual,
		DryRun:        dryRun,
	})
	if err != nil {
		rn.log.Error("reconciliation run failed",
			zap.String("run_id", runID),
			zap.String("course", string(course)),
			zap.Error(err))
	}
}

// Active returns the in-flight run id for a course, if any.
func (rn *Runner) Active(course rap.CourseID) (string, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	id, ok := rn.active[course]
	return id, ok
}

// Shutdown stops accepting new runs and waits for active ones to finish,
// bounded by ctx.
func (rn *Runner) Shutdown(ctx context.Context) error {
	rn.mu.Lock()
	rn.closed = true
	rn.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rn.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown with runs still active: %w", ctx.Err())
	}
}
