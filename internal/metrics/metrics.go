// Package metrics provides Prometheus instrumentation for session
// handling: lifecycle outcomes, ID regeneration results and backing store
// failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsStarted counts started sessions, labeled by outcome:
	// "resumed" when the client's session was loaded, "created" when a
	// fresh one was minted.
	SessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satori_sessions_started_total",
		Help: "Total number of sessions started",
	}, []string{"outcome"}) // outcome = "resumed", "created"

	// SessionsRegenerated counts ID regenerations, labeled by result.
	SessionsRegenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satori_sessions_regenerated_total",
		Help: "Total number of session ID regenerations",
	}, []string{"result"}) // result = "ok", "failed"

	// SessionsDestroyed counts destroyed sessions.
	SessionsDestroyed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satori_sessions_destroyed_total",
		Help: "Total number of sessions destroyed",
	})

	// StoreErrors counts backing store failures by operation.
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satori_session_store_errors_total",
		Help: "Total number of session store failures",
	}, []string{"op"}) // op = "load", "save", "delete", "regenerate"

	// SessionsPurged counts expired sessions removed by store sweeps.
	SessionsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satori_sessions_purged_total",
		Help: "Total number of expired sessions purged from stores",
	})
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsRegenerated,
		SessionsDestroyed,
		StoreErrors,
		SessionsPurged,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
