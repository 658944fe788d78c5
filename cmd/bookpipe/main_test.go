package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/bookshelf-etl/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestSchemaCommandPrintsDialectDDL(t *testing.T) {
	out, err := execute(t, "schema", "--db-driver", "sqlite", "--db-name", "books.db", "--db-table", "shelf")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, `CREATE TABLE IF NOT EXISTS "shelf"`) || !strings.Contains(out, "AUTOINCREMENT") {
		t.Fatalf("unexpected ddl:\n%s", out)
	}
}

func TestConfigFileThenEnvThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookpipe.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: sqlite\n  database: file.db\n  table: from_file\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOOKPIPE_DB_TABLE", "from_env")

	out, err := execute(t, "schema", "--config", path)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, `"from_env"`) {
		t.Fatalf("env should override file:\n%s", out)
	}

	out, err = execute(t, "schema", "--config", path, "--db-table", "from_flag")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, `"from_flag"`) {
		t.Fatalf("flag should override env:\n%s", out)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := execute(t, "schema", "--max-items", "50")
	if err == nil || !strings.Contains(err.Error(), "max items") {
		t.Fatalf("expected max items error, got %v", err)
	}
}

func TestTaskRequiresHandoffDir(t *testing.T) {
	_, err := execute(t, "task", "fetch", "--run-id", "r1")
	if err == nil || !strings.Contains(err.Error(), "--handoff-dir") {
		t.Fatalf("expected handoff-dir error, got %v", err)
	}
}

func TestPrintSummaryNamesFailedStage(t *testing.T) {
	start := time.Now()
	result := &models.RunResult{
		RunID:     "r1",
		StartTime: start,
		EndTime:   start.Add(time.Second),
		Tasks: []models.TaskResult{
			{Name: "fetch", Attempts: 1},
			{Name: "create_schema", Attempts: 2, Err: os.ErrPermission},
		},
		RecordsExtracted: 10,
	}

	var out bytes.Buffer
	printSummary(&out, result)
	if !strings.Contains(out.String(), "Run failed at stage create_schema") {
		t.Fatalf("summary should name the failed stage:\n%s", out.String())
	}
}
