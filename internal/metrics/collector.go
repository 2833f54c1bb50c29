// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full broker statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                      `json:"uptime_seconds"`
	Operations    map[string]OperationSnapshot `json:"operations"`
	Providers     map[string]OperationSnapshot `json:"providers,omitempty"`
}

// Operation names for the collector.
const (
	OpProviderCall = "provider_call"
	OpRoute        = "route"
	OpDispatch     = "dispatch"
	OpJobExecute   = "job_execute"
	OpStatusPoll   = "status_poll"
	OpGradingCheck = "grading_check"
	OpReaperSweep  = "reaper_sweep"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	providers map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		providers: make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for a key.
// Caller must hold write lock.
func getOrCreate(m map[string]*OperationMetrics, key string) *OperationMetrics {
	om, ok := m[key]
	if !ok {
		om = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		m[key] = om
	}
	return om
}

func record(m *OperationMetrics, duration time.Duration, failed bool) {
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordCall records timing and outcome for an operation.
func (c *Collector) RecordCall(op string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(getOrCreate(c.ops, op), duration, failed)
}

// RecordProviderCall records timing and outcome for a named provider.
func (c *Collector) RecordProviderCall(providerName string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(getOrCreate(c.providers, providerName), duration, failed)
}

// snapshotOp creates a snapshot for an operation, skipping empty entries.
func snapshotOp(m *OperationMetrics) (OperationSnapshot, bool) {
	if m == nil || m.Count == 0 {
		return OperationSnapshot{}, false
	}
	return OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}, true
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    make(map[string]OperationSnapshot, len(c.ops)),
	}
	for op, m := range c.ops {
		if s, ok := snapshotOp(m); ok {
			snap.Operations[op] = s
		}
	}
	if len(c.providers) > 0 {
		snap.Providers = make(map[string]OperationSnapshot, len(c.providers))
		for name, m := range c.providers {
			if s, ok := snapshotOp(m); ok {
				snap.Providers[name] = s
			}
		}
	}
	return snap
}
