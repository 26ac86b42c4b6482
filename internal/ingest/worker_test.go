package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/source"
	"github.com/profview/profview/internal/storage"
)

type stubSource struct {
	rows   [][]string
	cursor int
}

func (s *stubSource) Name() string      { return "stub.csv" }
func (s *stubSource) Type() string      { return "csv" }
func (s *stubSource) Columns() []string { return []string{"v"} }
func (s *stubSource) Close() error      { return nil }

func (s *stubSource) Next() ([]string, error) {
	if s.cursor >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.cursor]
	s.cursor++
	return row, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestRun(t *testing.T, store *storage.Store, runID string) {
	t.Helper()
	run := storage.Run{
		ID:         runID,
		SourceName: "stub.csv",
		SourceType: "csv",
		SourcePath: "/tmp/stub.csv",
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{"run_id": runID})
	job := storage.Job{
		ID:          "job-" + runID,
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func staticOpener(rows [][]string) Opener {
	return func(context.Context, storage.Run) (source.Source, error) {
		return &stubSource{rows: rows}, nil
	}
}

func TestWorker_ProcessesRun(t *testing.T) {
	store := openTestStore(t)
	enqueueTestRun(t, store, "run-1")

	opener := staticOpener([][]string{{"1"}, {"2"}, {"3"}})
	w := NewWorker(store, profiler.New(profiler.Options{Seed: 1}, nil), opener, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	run, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunCompleted {
		t.Errorf("Status = %q, want %q", run.Status, storage.RunCompleted)
	}
	if run.RowCount != 3 || run.ColumnCount != 1 {
		t.Errorf("counts = (%d, %d), want (3, 1)", run.RowCount, run.ColumnCount)
	}

	rep, err := report.DecodeJSON([]byte(run.ReportJSON))
	if err != nil {
		t.Fatalf("stored report does not decode: %v", err)
	}
	global, ok := rep.Get("global_stats")
	if !ok {
		t.Fatal("stored report missing global_stats")
	}
	if v, _ := global.(*report.Map).Get("row_count"); v != report.Int(3) {
		t.Errorf("stored row_count = %v, want 3", v)
	}

	var jobStatus string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-run-1'`).Scan(&jobStatus); err != nil {
		t.Fatalf("query job status: %v", err)
	}
	if jobStatus != "completed" {
		t.Errorf("job status = %q, want completed", jobStatus)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestRun(t, store, "run-r")

	var calls atomic.Int32
	opener := func(context.Context, storage.Run) (source.Source, error) {
		if n := calls.Add(1); n <= 2 {
			return nil, fmt.Errorf("transient error %d", n)
		}
		return &stubSource{rows: [][]string{{"1"}}}, nil
	}
	w := NewWorker(store, profiler.New(profiler.Options{}, nil), opener, 0)

	ctx := context.Background()

	// 1st attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = (%v, %v)", didWork, err)
	}

	var status1 string
	var attempts1 int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'job-run-r'`).Scan(&status1, &attempts1); err != nil {
		t.Fatalf("query after 1st fail: %v", err)
	}
	if status1 != "pending" || attempts1 != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status1, attempts1)
	}
	run, err := store.GetRun("run-r")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunFailed {
		t.Errorf("run status after 1st fail = %q, want %q", run.Status, storage.RunFailed)
	}

	resetRunAfter(t, store, "job-run-r")

	// 2nd attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 2 = (%v, %v)", didWork, err)
	}

	resetRunAfter(t, store, "job-run-r")

	// 3rd attempt succeeds
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 3 = (%v, %v)", didWork, err)
	}

	run, err = store.GetRun("run-r")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunCompleted {
		t.Errorf("final run status = %q, want %q", run.Status, storage.RunCompleted)
	}
	if run.LastError != "" {
		t.Errorf("LastError = %q, want cleared", run.LastError)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	enqueueTestRun(t, store, "run-m")

	opener := func(context.Context, storage.Run) (source.Source, error) {
		return nil, fmt.Errorf("permanent error")
	}
	w := NewWorker(store, profiler.New(profiler.Options{}, nil), opener, 0)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, "job-run-m")
		}
	}

	var jobStatus string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-run-m'`).Scan(&jobStatus); err != nil {
		t.Fatalf("query final status: %v", err)
	}
	if jobStatus != "failed" {
		t.Errorf("final job status = %q, want failed", jobStatus)
	}

	run, err := store.GetRun("run-m")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunFailed {
		t.Errorf("run status = %q, want %q", run.Status, storage.RunFailed)
	}
	if run.LastError == "" {
		t.Error("LastError is empty after terminal failure")
	}
}

func TestWorker_BadPayloadFailsJob(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(storage.Job{ID: "job-bad", Type: JobType, PayloadJSON: `{`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, profiler.New(profiler.Options{}, nil), staticOpener(nil), 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}

	var attempts int
	if err := store.DB().QueryRow(`SELECT attempts FROM jobs WHERE id = 'job-bad'`).Scan(&attempts); err != nil {
		t.Fatalf("query attempts: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestWorker_MissingRunFailsJob(t *testing.T) {
	store := openTestStore(t)
	payload, _ := json.Marshal(map[string]string{"run_id": "ghost"})
	if err := store.EnqueueJob(storage.Job{ID: "job-ghost", Type: JobType, PayloadJSON: string(payload)}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, profiler.New(profiler.Options{}, nil), staticOpener(nil), 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-ghost'`).Scan(&status); err != nil {
		t.Fatalf("query status: %v", err)
	}
	if status != "pending" {
		t.Errorf("status = %q, want pending (retryable)", status)
	}
}

func TestOpenRunSourceHonorsDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semi.csv")
	if err := os.WriteFile(path, []byte("a;b\n1;2\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	run := storage.Run{SourceType: "csv", SourcePath: path, Delimiter: ";"}
	src, err := OpenRunSource(context.Background(), run)
	if err != nil {
		t.Fatalf("OpenRunSource: %v", err)
	}
	defer src.Close()

	if got := src.Columns(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Columns() = %v, want [a b]", got)
	}

	// Without the override the whole header parses as one comma field.
	run.Delimiter = ""
	plain, err := OpenRunSource(context.Background(), run)
	if err != nil {
		t.Fatalf("OpenRunSource without delimiter: %v", err)
	}
	defer plain.Close()
	if got := plain.Columns(); len(got) != 1 {
		t.Errorf("Columns() without override = %v, want one column", got)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, profiler.New(profiler.Options{}, nil), staticOpener(nil), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
