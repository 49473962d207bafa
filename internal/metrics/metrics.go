package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts transition requests by role, target status and outcome.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_transitions_total",
			Help: "Workflow transition requests by role, target status and outcome",
		},
		[]string{"role", "target", "outcome"},
	)

	// FoliosIssuedTotal counts folio numbers handed out.
	FoliosIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_folios_issued_total",
			Help: "Folio numbers issued by counter backend",
		},
		[]string{"backend"},
	)

	// FolioFailuresTotal counts folio requests that could not be completed.
	FolioFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_folio_failures_total",
			Help: "Failed folio requests by counter backend",
		},
		[]string{"backend"},
	)

	// ActivityEventsTotal counts activity-log deliveries by sink and outcome.
	ActivityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_activity_events_total",
			Help: "Activity log events by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)
)
