// Package stats implements the runtime-stats snapshot and its Prometheus
// export, grounded on the
// teacher's health aggregation shape (health/aggregator.go periodic
// polling) and the eventbus module's atomic delivered/dropped counters
// (modules/eventbus/memory.go), generalized into a single framework-wide
// snapshot rather than per-module health.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time copy of a Collector's counters, returned by
// Collector.Snapshot. The environment does not send Snapshots to any mbox.
type Snapshot struct {
	Timestamp     time.Time
	QueueDepths   map[string]int64
	WorkerActive  map[string]int64
	CoopCount     int64
	AgentCount    int64
}

// Collector accumulates the counters a Snapshot is built from. The
// environment owns one and refreshes its cooperation count periodically;
// dispatchers and the coop registry do not write to it, so the other
// counters change only when a caller sets them.
type Collector struct {
	mu           sync.Mutex
	queueDepths  map[string]int64
	workerActive map[string]int64
	coopCount    int64
	agentCount   int64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{queueDepths: make(map[string]int64), workerActive: make(map[string]int64)}
}

// SetQueueDepth records the current pending-demand count for a named
// dispatcher queue.
func (c *Collector) SetQueueDepth(name string, depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepths[name] = depth
}

// SetWorkerActive records how many workers are currently busy for a named
// dispatcher.
func (c *Collector) SetWorkerActive(name string, active int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workerActive[name] = active
}

// SetCoopCount records the number of currently-registered cooperations.
func (c *Collector) SetCoopCount(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coopCount = n
}

// SetAgentCount records the number of currently-live agents.
func (c *Collector) SetAgentCount(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentCount = n
}

// Snapshot returns a point-in-time copy of the collected counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	qd := make(map[string]int64, len(c.queueDepths))
	for k, v := range c.queueDepths {
		qd[k] = v
	}
	wa := make(map[string]int64, len(c.workerActive))
	for k, v := range c.workerActive {
		wa[k] = v
	}
	return Snapshot{
		Timestamp:    time.Now(),
		QueueDepths:  qd,
		WorkerActive: wa,
		CoopCount:    c.coopCount,
		AgentCount:   c.agentCount,
	}
}

// PrometheusExporter exposes a Collector's counters as Prometheus gauges,
// grounded on the eventbus module's DataDog/Prometheus metrics exporters.
type PrometheusExporter struct {
	collector     *Collector
	queueDepth    *prometheus.GaugeVec
	workerActive  *prometheus.GaugeVec
	coopCount     prometheus.Gauge
	agentCount    prometheus.Gauge
}

// NewPrometheusExporter registers gauges on reg (or the default registerer
// if reg is nil) reflecting collector's counters.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	e := &PrometheusExporter{
		collector: collector,
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Name:      "dispatcher_queue_depth",
			Help:      "Pending demand count per dispatcher queue.",
		}, []string{"dispatcher"}),
		workerActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Name:      "dispatcher_workers_active",
			Help:      "Currently busy worker count per dispatcher.",
		}, []string{"dispatcher"}),
		coopCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Name:      "coop_count",
			Help:      "Currently registered cooperation count.",
		}),
		agentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actorcore",
			Name:      "agent_count",
			Help:      "Currently live agent count.",
		}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(e.queueDepth, e.workerActive, e.coopCount, e.agentCount)
	return e
}

// Collect refreshes every gauge from the current Collector snapshot. Nothing
// calls it automatically; the caller decides how often.
func (e *PrometheusExporter) Collect() {
	snap := e.collector.Snapshot()
	for name, depth := range snap.QueueDepths {
		e.queueDepth.WithLabelValues(name).Set(float64(depth))
	}
	for name, active := range snap.WorkerActive {
		e.workerActive.WithLabelValues(name).Set(float64(active))
	}
	e.coopCount.Set(float64(snap.CoopCount))
	e.agentCount.Set(float64(snap.AgentCount))
}
