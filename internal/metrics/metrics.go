// Package metrics registers the process's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlane",
		Name:      "refresh_runs_total",
		Help:      "Refresh pipeline runs by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fieldlane",
		Name:      "refresh_duration_seconds",
		Help:      "Wall time of a full refresh run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	EventsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldlane",
		Name:      "events_stored",
		Help:      "Events currently in the catalog window.",
	})

	LaneSlotsPlanned = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fieldlane",
		Name:      "lane_slots_planned",
		Help:      "Slots in the current lane plan by kind.",
	}, []string{"kind"}) // real | placeholder

	DeeplinkResolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlane",
		Name:      "deeplink_resolves_total",
		Help:      "Lane deeplink resolutions by result.",
	}, []string{"result"}) // ok | fallback | empty | error

	LaneTunes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlane",
		Name:      "lane_tunes_total",
		Help:      "Stub stream playlist requests per lane.",
	}, []string{"lane"})

	IngestUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlane",
		Name:      "ingest_upserts_total",
		Help:      "Events upserted per provider.",
	}, []string{"provider"})

	IngestDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlane",
		Name:      "ingest_drops_total",
		Help:      "Events dropped at normalization per provider.",
	}, []string{"provider"})
)
