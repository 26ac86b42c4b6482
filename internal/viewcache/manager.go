package viewcache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/storage"
)

// ErrNotReady is returned when a run exists but has no stored report yet.
var ErrNotReady = errors.New("report not ready")

// ReportStore defines the storage read the Manager needs.
// Implemented by storage.Store.
type ReportStore interface {
	GetRun(id string) (storage.Run, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager caches decoded run reports so repeated view requests do not
// re-parse stored JSON. Returned maps are shared: callers must treat
// them as read-only, which every view transform already does.
type Manager struct {
	store ReportStore
	clock Clock
	ttl   time.Duration
	max   int

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	report   *report.Map
	loadedAt time.Time
}

// NewManager creates a Manager with a 60-second TTL and room for 32
// decoded reports.
func NewManager(store ReportStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second, 32)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ReportStore, clock Clock, ttl time.Duration, maxEntries int) *Manager {
	if maxEntries <= 0 {
		maxEntries = 32
	}
	return &Manager{
		store:   store,
		clock:   clock,
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[string]entry),
	}
}

// Report returns the decoded report for a completed run, loading and
// caching it on first access.
func (m *Manager) Report(runID string) (*report.Map, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if e, ok := m.entries[runID]; ok && m.clock.Now().Before(e.loadedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.report, nil
	}
	m.mu.RUnlock()

	// Slow path: write lock for cache miss.
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.entries[runID]; ok && m.clock.Now().Before(e.loadedAt.Add(m.ttl)) {
		return e.report, nil
	}

	run, err := m.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.ReportJSON == "" {
		return nil, ErrNotReady
	}

	rep, err := report.DecodeJSON([]byte(run.ReportJSON))
	if err != nil {
		return nil, fmt.Errorf("decoding report for run %s: %w", runID, err)
	}

	if len(m.entries) >= m.max {
		m.evictOldest()
	}
	m.entries[runID] = entry{report: rep, loadedAt: m.clock.Now()}
	return rep, nil
}

// Invalidate drops one run's cached report.
func (m *Manager) Invalidate(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, runID)
}

// InvalidateAll empties the cache.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
}

// evictOldest removes the stalest entry. Caller holds the write lock.
func (m *Manager) evictOldest() {
	var oldestID string
	var oldestAt time.Time
	for id, e := range m.entries {
		if oldestID == "" || e.loadedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.loadedAt
		}
	}
	if oldestID != "" {
		delete(m.entries, oldestID)
	}
}
