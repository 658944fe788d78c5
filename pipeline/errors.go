package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/bookshelf-etl/handoff"
	"github.com/aluiziolira/bookshelf-etl/scraper"
	"github.com/aluiziolira/bookshelf-etl/storage"
)

// StageError reports which stage failed a run and why.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var transport scraper.ErrTransport
	if errors.As(err, &transport) {
		return "transport"
	}
	var status scraper.ErrHTTPStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	var parse scraper.ErrParse
	if errors.As(err, &parse) {
		return "parse"
	}
	var conn storage.ErrStoreConnection
	if errors.As(err, &conn) {
		return "store_connection"
	}
	var exec storage.ErrStoreExecution
	if errors.As(err, &exec) {
		return "store_execution"
	}
	var empty handoff.ErrEmptyBatch
	if errors.As(err, &empty) {
		return "empty_batch"
	}
	return "other"
}
