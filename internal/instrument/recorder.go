// Package instrument records simulation counters and gauges in Prometheus
// form. Each Recorder owns its registry so tests and parallel batches never
// collide on the default one.
package instrument

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes used as the "outcome" label.
const (
	OutcomeRefer    = "refer"
	OutcomeDecline  = "decline"
	OutcomeNoSignal = "no_signal"
)

// Recorder collects simulation metrics. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	decisions           *prometheus.CounterVec
	invitationsSent     prometheus.Counter
	invitationsAccepted prometheus.Counter
	rounds              prometheus.Counter
	runs                prometheus.Counter
	runDuration         prometheus.Histogram
	users               prometheus.Gauge
	kFactor             prometheus.Gauge
}

// NewRecorder creates a recorder with a fresh registry. It also registers
// the Go runtime and process collectors so /metrics is useful on its own.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viralsim_referral_decisions_total",
			Help: "Referral decisions evaluated, by outcome.",
		}, []string{"outcome"}),
		invitationsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "viralsim_invitations_sent_total",
			Help: "Invitations sent by referring personas.",
		}),
		invitationsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "viralsim_invitations_accepted_total",
			Help: "Invitations accepted, each producing a new user.",
		}),
		rounds: f.NewCounter(prometheus.CounterOpts{
			Name: "viralsim_rounds_total",
			Help: "Referral rounds executed.",
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "viralsim_runs_total",
			Help: "Simulation runs completed.",
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "viralsim_run_duration_seconds",
			Help:    "Wall time of a simulation run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		users: f.NewGauge(prometheus.GaugeOpts{
			Name: "viralsim_graph_users",
			Help: "Users in the most recent referral graph.",
		}),
		kFactor: f.NewGauge(prometheus.GaugeOpts{
			Name: "viralsim_k_factor",
			Help: "Viral coefficient of the most recent referral graph.",
		}),
	}
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteTextfile writes the current metrics to path for the node exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// ObserveDecision counts one referral decision.
func (r *Recorder) ObserveDecision(outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// ObserveInvitations counts sent and accepted invitations.
func (r *Recorder) ObserveInvitations(sent, accepted int) {
	if r == nil {
		return
	}
	r.invitationsSent.Add(float64(sent))
	r.invitationsAccepted.Add(float64(accepted))
}

// ObserveRound counts one referral round.
func (r *Recorder) ObserveRound() {
	if r == nil {
		return
	}
	r.rounds.Inc()
}

// ObserveRun records a finished run and the resulting graph's size and
// viral coefficient.
func (r *Recorder) ObserveRun(elapsed time.Duration, users int, kFactor float64) {
	if r == nil {
		return
	}
	r.runs.Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.users.Set(float64(users))
	r.kFactor.Set(kFactor)
}
