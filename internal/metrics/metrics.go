// Package metrics counts the steps of the deployment and recovery workflows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "safe_wallet"

// Step outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeNetworkError = "network_error"
	OutcomeInterrupted  = "interrupted"
	OutcomeCancelled    = "cancelled"
)

// Metrics holds the workflow counters.
type Metrics struct {
	steps *prometheus.CounterVec
	polls *prometheus.CounterVec
}

// New creates the counters and registers them on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestration_steps_total",
			Help:      "Workflow steps run by the deployment and recovery services, by outcome.",
		}, []string{"service", "step", "outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Calls made while polling the node or the relay.",
		}, []string{"poll"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.steps, m.polls} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// Noop returns unregistered counters.
func Noop() *Metrics {
	m, _ := New(nil)
	return m
}

// Step counts one run of step by service.
func (m *Metrics) Step(service, step, outcome string) {
	m.steps.WithLabelValues(service, step, outcome).Inc()
}

// PollAttempt counts one call of poll.
func (m *Metrics) PollAttempt(poll string) {
	m.polls.WithLabelValues(poll).Inc()
}
