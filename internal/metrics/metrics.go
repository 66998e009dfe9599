// Package metrics holds the Prometheus collectors exported by the portal.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups every portal metric.
type Collectors struct {
	HelpdeskRequests *prometheus.CounterVec
	HelpdeskLatency  *prometheus.HistogramVec
	TicketBuilds     *prometheus.CounterVec
	DroppedFields    *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	FieldCache       *prometheus.CounterVec
}

var (
	once sync.Once
	inst *Collectors
)

// Get returns the process-wide collectors, registering them on first use.
func Get() *Collectors {
	once.Do(func() {
		inst = newCollectors()
	})
	return inst
}

func newCollectors() *Collectors {
	return &Collectors{
		HelpdeskRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "helpdesk",
			Name:      "requests_total",
			Help:      "Helpdesk API calls, labeled by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		HelpdeskLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "helpdesk",
			Name:      "request_duration_seconds",
			Help:      "Duration of helpdesk API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		TicketBuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ticket",
			Name:      "builds_total",
			Help:      "Ticket payload builds, labeled by result",
		}, []string{"result"}),
		DroppedFields: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ticket",
			Name:      "custom_fields_dropped_total",
			Help:      "Custom field values left out of a ticket, labeled by reason",
		}, []string{"reason"}),
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "submission",
			Name:      "processed_total",
			Help:      "Processed submissions, labeled by final status",
		}, []string{"status"}),
		FieldCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "fieldcache",
			Name:      "lookups_total",
			Help:      "Custom field cache lookups, labeled by backend and result",
		}, []string{"backend", "result"}),
	}
}
