package metrics_test

import (
	"sync"
	"testing"

	"github.com/creachadair/streams/metrics"
	"github.com/google/go-cmp/cmp"
)

func TestNilCollector(t *testing.T) {
	var m *metrics.M
	m.Count("x", 1)
	m.Add("y", 2)
	m.SetMaxValue("z", 3)
	if got := m.Counter("x"); got != 0 {
		t.Errorf("Counter(x) on nil: got %d, want 0", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters)+len(snap.Gauges)+len(snap.MaxValues) != 0 {
		t.Errorf("Snapshot of nil: got %+v, want empty", snap)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := metrics.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Count("sent", 1)
				m.Add("active", 1)
				m.Add("active", -1)
			}
		}()
	}
	wg.Wait()
	m.SetMaxValue("queue", 7)
	m.SetMaxValue("queue", 3)

	got := m.Snapshot()
	if diff := cmp.Diff(int64(1000), got.Counters["sent"]); diff != "" {
		t.Errorf("Counter sent (-want +got):\n%s", diff)
	}
	if v := got.Gauges["active"]; v != 0 {
		t.Errorf("Gauge active: got %d, want 0", v)
	}
	if v := got.MaxValues["active"]; v < 1 || v > 10 {
		t.Errorf("Max active: got %d, want 1..10", v)
	}
	if v := got.MaxValues["queue"]; v != 7 {
		t.Errorf("Max queue: got %d, want 7", v)
	}
}
