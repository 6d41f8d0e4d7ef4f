// Package metrics defines the relay's Prometheus metrics. They live in a
// standalone package so the HTTP surface and the relay service can both
// record without importing each other.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrelay_http_requests_total",
		Help: "Relay HTTP requests by route and status",
	}, []string{"route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xrelay_http_request_duration_seconds",
		Help:    "Relay HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	UpstreamCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrelay_upstream_calls_total",
		Help: "Upstream GraphQL calls by operation and result kind",
	}, []string{"operation", "result"})

	RemovalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrelay_removals_total",
		Help: "Follower removal attempts by outcome",
	}, []string{"outcome"})

	AuditAppendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xrelay_audit_append_failures_total",
		Help: "Audit entries that could not be written to the sink",
	})

	QueryIDRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xrelay_queryid_refreshes_total",
		Help: "Query id refresh attempts by result",
	}, []string{"result"})
)

// Register registers every relay metric on the given registry, tolerating
// re-registration so tests can call it repeatedly.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamCallsTotal,
		RemovalsTotal,
		AuditAppendFailuresTotal,
		QueryIDRefreshesTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler serves the default gatherer, where Register puts everything.
func Handler() http.Handler {
	return promhttp.Handler()
}
