package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aluiziolira/bookshelf-etl/models"
	"github.com/aluiziolira/bookshelf-etl/pipeline"
	"github.com/aluiziolira/bookshelf-etl/scraper"
	"github.com/aluiziolira/bookshelf-etl/storage"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run fetch, create_schema and load in order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			metrics := pipeline.NewMetrics()
			stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
			defer stopMetrics()

			dag, err := pipeline.NewBookDAG(cfg, scraper.NewExtractor(metrics), metrics)
			if err != nil {
				return err
			}
			store, err := newHandoffStore(cfg)
			if err != nil {
				return err
			}

			runID := opts.runID
			if runID == "" {
				runID = pipeline.NewRunID()
			}
			slog.Info("starting run",
				slog.String("run_id", runID),
				slog.String("source_url", cfg.SourceURL),
				slog.String("table", cfg.Store.Table),
			)

			result, runErr := dag.Run(cmd.Context(), runID, store)
			if result != nil {
				printSummary(cmd.OutOrStdout(), result)
			}
			return runErr
		},
	}
}

func newTaskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "task <fetch|create_schema|load>",
		Short:     "Run a single stage; payloads are exchanged through --handoff-dir.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{pipeline.TaskFetch, pipeline.TaskCreateSchema, pipeline.TaskLoad},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.HandoffDir == "" {
				return fmt.Errorf("task mode needs --handoff-dir so stages can share payloads")
			}
			if opts.runID == "" {
				return fmt.Errorf("task mode needs --run-id")
			}

			metrics := pipeline.NewMetrics()
			stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
			defer stopMetrics()

			dag, err := pipeline.NewBookDAG(cfg, scraper.NewExtractor(metrics), metrics)
			if err != nil {
				return err
			}
			store, err := newHandoffStore(cfg)
			if err != nil {
				return err
			}

			result, runErr := dag.RunTask(cmd.Context(), args[0], opts.runID, store)
			if result != nil {
				printSummary(cmd.OutOrStdout(), result)
			}
			return runErr
		},
	}
}

func newSchemaCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the table DDL for the configured store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			dialect, err := storage.DialectFor(cfg.Store.Driver)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dialect.CreateTableSQL(cfg.Store.Table)+";")
			return nil
		},
	}
}

func printSummary(w io.Writer, result *models.RunResult) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	if stage := result.FailedStage(); stage != "" {
		fmt.Fprintf(w, "Run failed at stage %s\n", stage)
	} else {
		fmt.Fprintln(w, "Run complete")
	}

	fmt.Fprintf(w, "  Run ID:        %s\n", result.RunID)
	for _, task := range result.Tasks {
		status := "ok"
		if task.Err != nil {
			status = "failed: " + task.Err.Error()
		}
		fmt.Fprintf(w, "  %-14s %d attempt(s), %v, %s\n", task.Name+":", task.Attempts, task.Duration.Round(time.Millisecond), status)
	}
	fmt.Fprintf(w, "  Extracted:     %d\n", result.RecordsExtracted)
	fmt.Fprintf(w, "  Inserted:      %d\n", result.RowsInserted)
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintln(w, separator)
}
