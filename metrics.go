package streams

import "expvar"

var (
	streamMetrics = new(expvar.Map)

	graphsActiveGauge     = new(expvar.Int)
	graphsMaterialized    = new(expvar.Int)
	graphsFailedCount     = new(expvar.Int)
	portsCancelledCount   = new(expvar.Int)
	demandViolationsCount = new(expvar.Int)
)

func init() {
	streamMetrics.Set("graphs_active", graphsActiveGauge)
	streamMetrics.Set("graphs_materialized", graphsMaterialized)
	streamMetrics.Set("graphs_failed", graphsFailedCount)
	streamMetrics.Set("ports_cancelled", portsCancelledCount)
	streamMetrics.Set("demand_violations", demandViolationsCount)
}

// Metrics returns a map of exported stream metrics for use with the expvar
// package. This map is shared among all graphs materialized in the process.
//
// The caller is responsible for publishing the metrics to the exporter via
// expvar.Publish or similar.
func Metrics() *expvar.Map { return streamMetrics }
