// Package handoff carries a record batch between pipeline stages as text.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/bookshelf-etl/models"
)

// BooksKey is the payload key the fetch stage publishes and load consumes.
const BooksKey = "books_json"

// ErrEmptyBatch indicates the handoff produced no payload at all. A payload
// holding zero records is not an error.
type ErrEmptyBatch struct {
	RunID string
	Key   string
}

func (e ErrEmptyBatch) Error() string {
	return fmt.Sprintf("no %s payload for run %s", e.Key, e.RunID)
}

// Store keeps payloads keyed by run and name.
type Store interface {
	Push(ctx context.Context, runID, key, payload string) error
	// Pull reports false when no payload was pushed for runID and key.
	Pull(ctx context.Context, runID, key string) (string, bool, error)
}

// Encode renders batch as a JSON array. Missing fields become null.
func Encode(batch models.Batch) (string, error) {
	if batch == nil {
		batch = models.Batch{}
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return string(data), nil
}

// Decode parses a payload produced by Encode.
func Decode(payload string) (models.Batch, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyBatch{Key: BooksKey}
	}
	var batch models.Batch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if batch == nil {
		batch = models.Batch{}
	}
	return batch, nil
}

// PushBatch encodes batch and stores it under BooksKey.
func PushBatch(ctx context.Context, store Store, runID string, batch models.Batch) error {
	payload, err := Encode(batch)
	if err != nil {
		return err
	}
	if err := store.Push(ctx, runID, BooksKey, payload); err != nil {
		return fmt.Errorf("push %s: %w", BooksKey, err)
	}
	return nil
}

// PullBatch loads and decodes the batch stored under BooksKey. An absent or
// blank payload yields ErrEmptyBatch.
func PullBatch(ctx context.Context, store Store, runID string) (models.Batch, error) {
	payload, ok, err := store.Pull(ctx, runID, BooksKey)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", BooksKey, err)
	}
	if !ok || strings.TrimSpace(payload) == "" {
		return nil, ErrEmptyBatch{RunID: runID, Key: BooksKey}
	}
	return Decode(payload)
}
