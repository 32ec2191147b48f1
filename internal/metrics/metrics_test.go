package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRegistersAndCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	set := New(registry)

	set.ObserveRequest("check", "ok")
	set.ObserveRequest("check", "error")
	set.CacheHit("check")
	set.CacheMiss("usage")
	set.ObserveRealtimeEvent("usage.updated")

	assert.Equal(t, 1.0, testutil.ToFloat64(set.Requests.WithLabelValues("check", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.Requests.WithLabelValues("check", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.CacheHits.WithLabelValues("check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.CacheMisses.WithLabelValues("usage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.RealtimeEvents.WithLabelValues("usage.updated")))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}
