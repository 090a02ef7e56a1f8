package litepool

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type serverMetrics struct {
	accepted     prometheus.Counter
	acceptErrors prometheus.Counter
	rejected     prometheus.Counter
	responses    *prometheus.CounterVec
}

func newServerMetrics(namespace string, reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accept_errors_total",
			Help:      "Total number of failed accepts",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections_rejected_total",
			Help:      "Connections closed unanswered because the pool was shutting down",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Responses by status code, status 0 means the connection failed before routing",
		}, []string{"status", "outcome"}),
	}

	reg.MustRegister(m.accepted, m.acceptErrors, m.rejected, m.responses)
	return m
}

func (m *serverMetrics) connAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *serverMetrics) acceptFailed() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

func (m *serverMetrics) connRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *serverMetrics) served(status int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.responses.WithLabelValues(strconv.Itoa(status), outcome).Inc()
}
