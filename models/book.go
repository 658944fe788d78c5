// Package models defines data structures shared by the pipeline stages.
package models

import "time"

// MaxBatchSize caps the number of records extracted in one run.
const MaxBatchSize = 10

// Book is one catalog entry. A nil field means the source element was absent.
type Book struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Price  *string `json:"price"`
	Link   *string `json:"link"`
}

// Batch is an ordered set of books handed from extraction to load.
type Batch []Book

// Str returns a pointer to s, for building present fields.
func Str(s string) *string {
	return &s
}

// Value returns the field value and whether it is present.
func Value(field *string) (string, bool) {
	if field == nil {
		return "", false
	}
	return *field, true
}

// TaskResult records how a single stage finished.
type TaskResult struct {
	Name     string
	Attempts int
	Duration time.Duration
	Err      error
}

// RunResult holds the overall result of a pipeline run.
type RunResult struct {
	RunID            string
	StartTime        time.Time
	EndTime          time.Time
	Tasks            []TaskResult
	RecordsExtracted int
	RowsInserted     int
}

// FailedStage returns the name of the first failed task, or "".
func (r *RunResult) FailedStage() string {
	for _, t := range r.Tasks {
		if t.Err != nil {
			return t.Name
		}
	}
	return ""
}
