// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrphanRequestedDetected tracks REQUESTED collections found with zero linked vehicles
	OrphanRequestedDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "cleanup",
			Name:      "orphan_requested_detected_total",
			Help:      "Total number of orphaned REQUESTED collections detected",
		},
	)

	// OrphanRequestedCleaned tracks orphaned REQUESTED collections deleted
	OrphanRequestedCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "cleanup",
			Name:      "orphan_requested_cleaned_total",
			Help:      "Total number of orphaned REQUESTED collections deleted",
		},
	)

	// NegotiationNoopUpdates tracks guarded vehicle updates that matched zero rows.
	// The protocol treats these as benign, so a counter is the only signal that a
	// user action found no vehicles in the expected state.
	NegotiationNoopUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "negotiation",
			Name:      "noop_updates_total",
			Help:      "Guarded vehicle updates that affected zero rows, by operation",
		},
		[]string{"operation"},
	)

	// CollectionsUpserted tracks collection upserts by outcome
	CollectionsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "collections",
			Name:      "upserted_total",
			Help:      "Total number of collection rows created or refreshed via upsert",
		},
	)

	// CollectionsApproved tracks collections moved from REQUESTED to APPROVED
	CollectionsApproved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "collections",
			Name:      "approved_total",
			Help:      "Total number of collections approved",
		},
	)

	// EventsPublished tracks negotiation events published to Kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of negotiation events published, by type and status",
		},
		[]string{"event_type", "status"},
	)
)

// RecordNoopUpdate records a guarded update that matched zero rows
func RecordNoopUpdate(operation string) {
	NegotiationNoopUpdates.WithLabelValues(operation).Inc()
}

// RecordEventPublish records a Kafka publish attempt
func RecordEventPublish(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}
