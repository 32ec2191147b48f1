// Package metrics defines the Prometheus instrumentation for the SDK.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the SDK's collectors. All collectors are registered on the
// Registerer passed to New, so embedding applications control exposure.
type Set struct {
	Requests       *prometheus.CounterVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	RealtimeEvents *prometheus.CounterVec
}

// New registers and returns the SDK collector set.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)

	return &Set{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendraa_requests_total",
			Help: "Billing API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendraa_cache_hits_total",
			Help: "Read queries served from cache, by namespace.",
		}, []string{"namespace"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendraa_cache_misses_total",
			Help: "Read queries that required a fetch, by namespace.",
		}, []string{"namespace"}),
		RealtimeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendraa_realtime_events_total",
			Help: "Realtime events delivered to listeners, by type.",
		}, []string{"type"}),
	}
}

// CacheHit implements the query cache observer.
func (s *Set) CacheHit(namespace string) {
	s.CacheHits.WithLabelValues(namespace).Inc()
}

// CacheMiss implements the query cache observer.
func (s *Set) CacheMiss(namespace string) {
	s.CacheMisses.WithLabelValues(namespace).Inc()
}

// ObserveRequest records one API call outcome.
func (s *Set) ObserveRequest(operation, outcome string) {
	s.Requests.WithLabelValues(operation, outcome).Inc()
}

// ObserveRealtimeEvent records one delivered realtime event.
func (s *Set) ObserveRealtimeEvent(eventType string) {
	s.RealtimeEvents.WithLabelValues(eventType).Inc()
}
