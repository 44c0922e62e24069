// Package metrics exposes prometheus instrumentation for the interception
// decision path and the host-list lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdelane/faultgate/internal/fault/domain"
)

var (
	// DecisionsTotal counts every Decide consultation by outcome.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faultgate",
		Name:      "decisions_total",
		Help:      "Interception decisions, partitioned by outcome (blocked or forwarded).",
	}, []string{"outcome"})

	// BlockedTotal counts substituted responses by failure type.
	BlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faultgate",
		Name:      "blocked_total",
		Help:      "Blocked requests, partitioned by the injected failure type.",
	}, []string{"failure_type"})

	// HostListReloads counts host-list replacements, partitioned by origin
	// (control API, file watcher) and result.
	HostListReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faultgate",
		Name:      "hostlist_reloads_total",
		Help:      "Host-list replacements, partitioned by origin and result.",
	}, []string{"origin", "result"})
)

// ObserveDecision records one Decide outcome.
func ObserveDecision(d domain.Decision) {
	if d.Blocked {
		DecisionsTotal.WithLabelValues("blocked").Inc()
		BlockedTotal.WithLabelValues(d.Failure.String()).Inc()
		return
	}
	DecisionsTotal.WithLabelValues("forwarded").Inc()
}

// Handler returns the prometheus exposition handler for the control API.
func Handler() http.Handler {
	return promhttp.Handler()
}
