package pipeline

import (
	"context"

	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/handoff"
	"github.com/aluiziolira/bookshelf-etl/scraper"
	"github.com/aluiziolira/bookshelf-etl/storage"
)

// Stage names of the book DAG.
const (
	TaskFetch        = "fetch"
	TaskCreateSchema = "create_schema"
	TaskLoad         = "load"
)

// NewBookDAG wires fetch -> create_schema -> load for cfg.
func NewBookDAG(cfg *config.Config, extractor *scraper.Extractor, metrics *Metrics) (*DAG, error) {
	dag := NewDAG(Policy{
		Retries:       cfg.Retries,
		RetryDelay:    cfg.RetryDelay,
		RetryDelayMax: cfg.RetryDelayMax,
	}, metrics)

	tasks := []Task{
		{
			Name: TaskFetch,
			Run: func(ctx context.Context, tc *TaskContext) error {
				batch, err := extractor.Fetch(ctx, cfg)
				if err != nil {
					return err
				}
				if err := handoff.PushBatch(ctx, tc.Handoff, tc.RunID, batch); err != nil {
					return err
				}
				tc.RecordExtracted(len(batch))
				return nil
			},
		},
		{
			Name:     TaskCreateSchema,
			Upstream: []string{TaskFetch},
			Run: func(ctx context.Context, _ *TaskContext) error {
				return storage.EnsureSchema(ctx, cfg.Store)
			},
		},
		{
			Name:     TaskLoad,
			Upstream: []string{TaskCreateSchema},
			Run: func(ctx context.Context, tc *TaskContext) error {
				batch, err := handoff.PullBatch(ctx, tc.Handoff, tc.RunID)
				if err != nil {
					return err
				}
				n, err := storage.Load(ctx, cfg.Store, batch)
				if err != nil {
					return err
				}
				tc.RecordInserted(n)
				metrics.AddInserted(n)
				return nil
			},
		},
	}

	for _, task := range tasks {
		if err := dag.Add(task); err != nil {
			return nil, err
		}
	}
	return dag, nil
}
