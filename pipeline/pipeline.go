// Package pipeline sequences the ETL stages, retries failed stages and
// passes the record batch between them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aluiziolira/bookshelf-etl/handoff"
	"github.com/aluiziolira/bookshelf-etl/models"
)

var (
	// ErrUnknownTask is returned when a task name is not part of the DAG.
	ErrUnknownTask = errors.New("pipeline: unknown task")
	// ErrCycle is returned when task dependencies cannot be ordered.
	ErrCycle = errors.New("pipeline: dependency cycle")
)

// TaskFunc executes one stage.
type TaskFunc func(ctx context.Context, tc *TaskContext) error

// Task is a named stage with the stages it depends on.
type Task struct {
	Name     string
	Upstream []string
	Run      TaskFunc
}

// TaskContext is handed to a running stage.
type TaskContext struct {
	RunID   string
	Attempt int
	Handoff handoff.Store

	extracted int
	inserted  int
}

// RecordExtracted notes how many records the stage published.
func (tc *TaskContext) RecordExtracted(n int) {
	tc.extracted += n
}

// RecordInserted notes how many rows the stage committed.
func (tc *TaskContext) RecordInserted(n int) {
	tc.inserted += n
}

// Policy is the retry policy applied to every stage.
type Policy struct {
	Retries       int
	RetryDelay    time.Duration
	RetryDelayMax time.Duration
}

// DAG runs tasks sequentially in dependency order.
type DAG struct {
	tasks   []Task
	index   map[string]int
	policy  Policy
	metrics *Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDAG builds an empty DAG. metrics may be nil.
func NewDAG(policy Policy, metrics *Metrics) *DAG {
	return &DAG{
		index:   make(map[string]int),
		policy:  policy,
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Add registers a task. Upstream tasks must already be registered.
func (d *DAG) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("pipeline: task name cannot be empty")
	}
	if task.Run == nil {
		return fmt.Errorf("pipeline: task %s has no run function", task.Name)
	}
	if _, ok := d.index[task.Name]; ok {
		return fmt.Errorf("pipeline: duplicate task %s", task.Name)
	}
	for _, up := range task.Upstream {
		if _, ok := d.index[up]; !ok {
			return fmt.Errorf("%w: %s (upstream of %s)", ErrUnknownTask, up, task.Name)
		}
	}
	d.index[task.Name] = len(d.tasks)
	d.tasks = append(d.tasks, task)
	return nil
}

// Order returns task names in dependency order, ties broken by
// registration order.
func (d *DAG) Order() ([]string, error) {
	indegree := make(map[string]int, len(d.tasks))
	downstream := make(map[string][]string, len(d.tasks))
	for _, t := range d.tasks {
		indegree[t.Name] = len(t.Upstream)
		for _, up := range t.Upstream {
			downstream[up] = append(downstream[up], t.Name)
		}
	}

	order := make([]string, 0, len(d.tasks))
	done := make(map[string]bool, len(d.tasks))
	for len(order) < len(d.tasks) {
		progressed := false
		for _, t := range d.tasks {
			if done[t.Name] || indegree[t.Name] > 0 {
				continue
			}
			done[t.Name] = true
			order = append(order, t.Name)
			for _, next := range downstream[t.Name] {
				indegree[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, ErrCycle
		}
	}
	return order, nil
}

// Run executes every task once in dependency order, retrying failures per
// the policy. The first stage that exhausts its retries stops the run and
// is reported as a *StageError.
func (d *DAG) Run(ctx context.Context, runID string, store handoff.Store) (*models.RunResult, error) {
	order, err := d.Order()
	if err != nil {
		return nil, err
	}

	result := &models.RunResult{RunID: runID, StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	slog.Info("run started", slog.String("run_id", runID), slog.Any("stages", order))

	for _, name := range order {
		tc := &TaskContext{RunID: runID, Handoff: store}
		taskResult := d.runWithRetry(ctx, d.tasks[d.index[name]], tc)
		result.Tasks = append(result.Tasks, taskResult)
		result.RecordsExtracted += tc.extracted
		result.RowsInserted += tc.inserted

		if taskResult.Err != nil {
			return result, &StageError{Stage: name, Attempts: taskResult.Attempts, Err: taskResult.Err}
		}
	}

	slog.Info("run finished",
		slog.String("run_id", runID),
		slog.Int("records_extracted", result.RecordsExtracted),
		slog.Int("rows_inserted", result.RowsInserted),
	)
	return result, nil
}

// RunTask executes a single task with the retry policy, ignoring its
// upstream tasks. The caller is responsible for having run them.
func (d *DAG) RunTask(ctx context.Context, name, runID string, store handoff.Store) (*models.RunResult, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	result := &models.RunResult{RunID: runID, StartTime: time.Now()}
	tc := &TaskContext{RunID: runID, Handoff: store}
	taskResult := d.runWithRetry(ctx, d.tasks[i], tc)
	result.EndTime = time.Now()
	result.Tasks = []models.TaskResult{taskResult}
	result.RecordsExtracted = tc.extracted
	result.RowsInserted = tc.inserted

	if taskResult.Err != nil {
		return result, &StageError{Stage: name, Attempts: taskResult.Attempts, Err: taskResult.Err}
	}
	return result, nil
}

func (d *DAG) runWithRetry(ctx context.Context, task Task, tc *TaskContext) models.TaskResult {
	start := time.Now()
	maxAttempts := d.policy.Retries + 1

	var err error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		tc.Attempt = attempt
		tc.extracted, tc.inserted = 0, 0

		slog.Info("stage started", slog.String("stage", task.Name), slog.Int("attempt", attempt))
		attemptStart := time.Now()
		err = task.Run(ctx, tc)
		d.metrics.ObserveStage(task.Name, time.Since(attemptStart))

		if err == nil {
			slog.Info("stage succeeded",
				slog.String("stage", task.Name),
				slog.Int("attempt", attempt),
				slog.Duration("duration", time.Since(attemptStart)),
			)
			d.metrics.IncStageRun(task.Name, "success")
			return models.TaskResult{Name: task.Name, Attempts: attempt, Duration: time.Since(start)}
		}

		category := errorTypeLabel(err)
		d.metrics.IncError(task.Name, category)

		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		delay := d.backoff(attempt)
		slog.Warn("stage failed, retrying",
			slog.String("stage", task.Name),
			slog.Int("attempt", attempt),
			slog.String("category", category),
			slog.Duration("retry_in", delay),
			slog.Any("error", err),
		)
		d.metrics.IncRetry(task.Name)
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			err = fmt.Errorf("%w (retry aborted: %v)", err, sleepErr)
			break
		}
	}

	slog.Error("stage failed",
		slog.String("stage", task.Name),
		slog.Int("attempts", attempt),
		slog.String("category", errorTypeLabel(err)),
		slog.Any("error", err),
	)
	d.metrics.IncStageRun(task.Name, "failure")
	return models.TaskResult{Name: task.Name, Attempts: attempt, Duration: time.Since(start), Err: err}
}

// backoff doubles the base delay per attempt, capped at RetryDelayMax.
func (d *DAG) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := d.policy.RetryDelay
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := d.policy.RetryDelayMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewRunID returns an identifier for a manually triggered run.
func NewRunID() string {
	return fmt.Sprintf("manual__%s-%04d", time.Now().UTC().Format("20060102T150405"), rand.Intn(10000))
}
