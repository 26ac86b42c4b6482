package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/source"
	"github.com/profview/profview/internal/storage"
)

// JobType is the queue type profiling jobs are enqueued under.
const JobType = "profile_run"

// RunStore abstracts the job queue and run bookkeeping.
type RunStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetRun(id string) (storage.Run, error)
	MarkRunRunning(id string) error
	CompleteRun(id, reportJSON string, rowCount, columnCount int64) error
	FailRun(id, errMsg string) error
}

// RunProfiler produces a report for a dataset.
type RunProfiler interface {
	Profile(ctx context.Context, ds profiler.Dataset) (*report.Map, error)
}

// Opener resolves the dataset behind a run.
type Opener func(ctx context.Context, run storage.Run) (source.Source, error)

// OpenRunSource is the default Opener: postgres runs connect with the
// stored DSN and table, everything else opens by file path. A stored
// delimiter overrides extension dispatch for delimited files.
func OpenRunSource(ctx context.Context, run storage.Run) (source.Source, error) {
	if run.SourceType == "postgres" {
		return source.OpenPostgres(ctx, run.SourcePath, run.SourceName, 0)
	}
	if d := run.Delimiter; d != "" && (run.SourceType == "csv" || run.SourceType == "tsv") {
		r, _ := utf8.DecodeRuneInString(d)
		return source.OpenCSV(run.SourcePath, r)
	}
	return source.Open(run.SourcePath)
}

// Worker processes profile_run jobs from the SQLite job queue.
type Worker struct {
	store    RunStore
	profiler RunProfiler
	open     Opener
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// A nil opener falls back to OpenRunSource; pollInterval <= 0 defaults to 500ms.
func NewWorker(store RunStore, prof RunProfiler, open Opener, pollInterval time.Duration) *Worker {
	if open == nil {
		open = OpenRunSource
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		profiler: prof,
		open:     open,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single profile_run job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type runPayload struct {
	RunID string `json:"run_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload runPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	run, err := w.store.GetRun(payload.RunID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", payload.RunID, err)
	}

	if err := w.store.MarkRunRunning(run.ID); err != nil {
		return fmt.Errorf("marking run %s running: %w", run.ID, err)
	}

	rep, err := w.profileRun(ctx, run)
	if err != nil {
		if failErr := w.store.FailRun(run.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to record run error", "run_id", run.ID, "error", failErr)
		}
		return err
	}

	// Reports persist in serializable form so stored JSON never carries
	// numeric vectors in a shape the decoder cannot round-trip.
	encoded, err := json.Marshal(report.Transform(rep, report.FormatSerializable, nil))
	if err != nil {
		if failErr := w.store.FailRun(run.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to record run error", "run_id", run.ID, "error", failErr)
		}
		return fmt.Errorf("encoding report: %w", err)
	}

	rows, cols := reportCounts(rep)
	if err := w.store.CompleteRun(run.ID, string(encoded), rows, cols); err != nil {
		return fmt.Errorf("storing report for run %s: %w", run.ID, err)
	}
	return nil
}

func (w *Worker) profileRun(ctx context.Context, run storage.Run) (*report.Map, error) {
	src, err := w.open(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	rep, err := w.profiler.Profile(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("profiling %s: %w", run.SourceName, err)
	}
	return rep, nil
}

func reportCounts(rep *report.Map) (rows, cols int64) {
	global, ok := rep.Get("global_stats")
	if !ok {
		return 0, 0
	}
	gm, ok := global.(*report.Map)
	if !ok {
		return 0, 0
	}
	if v, ok := gm.Get("row_count"); ok {
		if n, ok := v.(report.Int); ok {
			rows = int64(n)
		}
	}
	if v, ok := gm.Get("column_count"); ok {
		if n, ok := v.(report.Int); ok {
			cols = int64(n)
		}
	}
	return rows, cols
}
