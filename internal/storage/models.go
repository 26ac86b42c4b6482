package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one profiling pass over a source. ReportJSON holds the
// serializable report once the run completes; Delimiter overrides the
// cell separator for delimited file sources.
type Run struct {
	ID          string    `json:"id"`
	SourceName  string    `json:"source_name"`
	SourceType  string    `json:"source_type"`
	SourcePath  string    `json:"-"`
	Delimiter   string    `json:"delimiter,omitempty"`
	Status      string    `json:"status"`
	RowCount    int64     `json:"row_count"`
	ColumnCount int64     `json:"column_count"`
	ReportJSON  string    `json:"-"`
	LastError   string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
