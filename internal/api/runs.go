package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/profview/profview/internal/ingest"
	"github.com/profview/profview/internal/logging"
	"github.com/profview/profview/internal/preset"
	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/storage"
	"github.com/profview/profview/internal/viewcache"
)

const maxRunBodySize = 32 << 20 // 32MB

// RunRequest creates a profiling run. File sources carry their payload
// base64-encoded in content; postgres runs carry table and dsn instead.
type RunRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Delimiter string `json:"delimiter"`
	Table     string `json:"table"`
	DSN       string `json:"dsn"`
}

type AppDeps struct {
	Store        *storage.Store
	Cache        *viewcache.Manager
	Presets      *preset.Library // optional; if nil, built-in views only
	Token        string
	DataDir      string
	MaxBodyBytes int64 // 0 means maxRunBodySize
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Presets == nil {
		deps.Presets = preset.Builtin()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/runs", handleCreateRun(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
		r.Delete("/runs/{id}", handleDeleteRun(deps))
		r.Get("/runs/{id}/report", handleGetReport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.MaxBodyBytes
		if limit <= 0 {
			limit = maxRunBodySize
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		defer r.Body.Close()

		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		run := storage.Run{
			ID:         uuid.New().String(),
			SourceName: req.Name,
			SourceType: resolveSourceType(req),
			Status:     storage.RunPending,
		}

		switch run.SourceType {
		case "postgres":
			if req.Table == "" || req.DSN == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "postgres runs require table and dsn")
				return
			}
			run.SourceName = req.Table
			run.SourcePath = req.DSN

		case "csv", "tsv", "jsonl", "pdf":
			if req.Content == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
				return
			}
			if utf8.RuneCountInString(req.Delimiter) > 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "delimiter must be a single character")
				return
			}
			payload, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			path, err := saveUpload(deps.DataDir, run.ID, run.SourceType, payload)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to store payload: %v", err)
				return
			}
			run.SourcePath = path
			run.Delimiter = req.Delimiter

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported source type %q", run.SourceType)
			return
		}

		if err := deps.Store.CreateRun(run); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create run: %v", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"run_id": run.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobType,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		logging.FromContext(r.Context()).Info("run queued",
			"run_id", run.ID,
			"source_type", run.SourceType,
		)

		// Reload so the response carries the stored timestamps.
		created, err := deps.Store.GetRun(run.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load run: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(created)
	}
}

// resolveSourceType picks the dataset reader for a run request. An explicit
// type wins; otherwise a tab delimiter or the file extension decides, with
// csv as the fallback.
func resolveSourceType(req RunRequest) string {
	if req.Type != "" {
		return strings.ToLower(req.Type)
	}
	if req.Delimiter == "\t" {
		return "tsv"
	}
	name := strings.TrimSuffix(strings.ToLower(req.Name), ".gz")
	switch filepath.Ext(name) {
	case ".tsv":
		return "tsv"
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".pdf":
		return "pdf"
	}
	return "csv"
}

// saveUpload writes a decoded payload under the uploads directory. The file
// keeps an extension matching the source type so reader dispatch works off
// the stored path alone.
func saveUpload(dataDir, runID, sourceType string, payload []byte) (string, error) {
	dir := filepath.Join(dataDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, runID+"."+sourceType)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		runs, err := deps.Store.ListRuns(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}

		if runs == nil {
			runs = []storage.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

func handleGetRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := deps.Store.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

func handleDeleteRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := deps.Store.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
			return
		}

		if err := deps.Store.DeleteRun(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "run not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete run: %v", err)
			return
		}

		deps.Cache.Invalidate(id)

		// Remove the uploaded payload; postgres runs have no local file.
		if run.SourceType != "postgres" && run.SourcePath != "" {
			os.Remove(run.SourcePath)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleGetReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		q := r.URL.Query()
		format, omit, err := ResolveView(deps.Presets, q.Get("preset"), q.Get("format"), q["omit"])
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		rep, err := deps.Cache.Report(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if errors.Is(err, viewcache.ErrNotReady) {
			httpError(w, http.StatusUnprocessableEntity, "report_not_ready", "run %s has no report yet", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load report: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report.Transform(rep, format, omit))
	}
}

// ResolveView combines a named preset with explicit format and omission
// overrides. The explicit format wins over the preset's; omission paths
// accumulate. Comma-separated omit values are split so both ?omit=a,b and
// repeated parameters work.
func ResolveView(presets *preset.Library, presetName, formatName string, omit []string) (report.Format, []string, error) {
	format := report.FormatSerializable
	var paths []string

	if presetName != "" {
		view, ok := presets.Resolve(presetName)
		if !ok {
			return "", nil, fmt.Errorf("unknown preset %q", presetName)
		}
		f, err := report.ParseFormat(view.Format)
		if err != nil {
			return "", nil, err
		}
		format = f
		paths = append(paths, view.Omit...)
	}

	if formatName != "" {
		f, err := report.ParseFormat(formatName)
		if err != nil {
			return "", nil, err
		}
		format = f
	}

	for _, raw := range omit {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}

	return format, paths, nil
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
