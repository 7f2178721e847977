// Package metrics defines a concurrently-accessible metrics collector.
//
// A *metrics.M value exports methods to track integer counters, gauges that
// move up and down, and maximum values. A metric has a caller-assigned string
// name that is not interpreted by the collector except to locate its stored
// value. Hubs and worker pools use an *M to report their statistics.
package metrics

import "sync"

// An M collects counters, gauges and maximum value trackers.  A nil *M is
// valid, and discards all metrics. The methods of an *M are safe for
// concurrent use by multiple goroutines.
type M struct {
	mu      sync.Mutex
	counter map[string]int64
	gauge   map[string]int64
	maxVal  map[string]int64
}

// New creates a new, empty metrics collector.
func New() *M {
	return &M{
		counter: make(map[string]int64),
		gauge:   make(map[string]int64),
		maxVal:  make(map[string]int64),
	}
}

// Count adds n to the current value of the counter named, defining the counter
// if it does not already exist.
func (m *M) Count(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.counter[name] += n
	}
}

// Add adds n (which may be negative) to the gauge named, and updates the max
// value tracker of the same name if the gauge reaches a new high.
func (m *M) Add(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.gauge[name] += n
		if v := m.gauge[name]; v > m.maxVal[name] {
			m.maxVal[name] = v
		}
	}
}

// SetMaxValue sets the maximum value metric named to the greater of n and its
// current value, defining the value if it does not already exist.
func (m *M) SetMaxValue(name string, n int64) {
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if n > m.maxVal[name] {
			m.maxVal[name] = n
		}
	}
}

// Counter reports the current value of the counter named, or 0.
func (m *M) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter[name]
}

// Gauge reports the current value of the gauge named, or 0.
func (m *M) Gauge(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauge[name]
}

// A Snapshot is a point-in-time copy of the values in an *M.
type Snapshot struct {
	Counters  map[string]int64
	Gauges    map[string]int64
	MaxValues map[string]int64
}

// Snapshot returns an atomic snapshot of the counters, gauges and max value
// trackers. The snapshot of a nil *M has empty, non-nil maps.
func (m *M) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:  make(map[string]int64),
		Gauges:    make(map[string]int64),
		MaxValues: make(map[string]int64),
	}
	if m != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		for name, val := range m.counter {
			snap.Counters[name] = val
		}
		for name, val := range m.gauge {
			snap.Gauges[name] = val
		}
		for name, val := range m.maxVal {
			snap.MaxValues[name] = val
		}
	}
	return snap
}
