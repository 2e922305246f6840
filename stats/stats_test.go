package stats_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/sobjgo/actorcore/stats"
)

func TestCollectorSnapshot(t *testing.T) {
	c := stats.NewCollector()
	c.SetQueueDepth("one_thread", 3)
	c.SetWorkerActive("thread_pool", 2)
	c.SetCoopCount(5)
	c.SetAgentCount(10)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.QueueDepths["one_thread"])
	assert.Equal(t, int64(2), snap.WorkerActive["thread_pool"])
	assert.Equal(t, int64(5), snap.CoopCount)
	assert.Equal(t, int64(10), snap.AgentCount)
}

func TestPrometheusExporterCollectDoesNotPanic(t *testing.T) {
	c := stats.NewCollector()
	c.SetQueueDepth("one_thread", 1)
	reg := prometheus.NewRegistry()
	exporter := stats.NewPrometheusExporter(c, reg)
	exporter.Collect()

	metrics, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, metrics)
}
