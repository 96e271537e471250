// Package metrics exposes Prometheus instruments for proxy invocations on
// both the client and the server side.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dhcpproxy/protocol"
)

const namespace = "dhcp_proxy"

// Outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeDhcpError      = "dhcp_error"
	OutcomeTransportError = "transport_error"
	OutcomeRemoteError    = "remote_error"
	OutcomeProtocolError  = "protocol_error"
	OutcomeError          = "error"
)

// Metrics groups the instruments recorded per invocation.
type Metrics struct {
	calls          *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	protocolFaults *prometheus.CounterVec
}

// New registers the instruments on reg under subsystem, e.g. "client" or
// "server".
func New(reg prometheus.Registerer, subsystem string) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_total",
			Help:      "Proxy invocations by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_duration_seconds",
			Help:      "Proxy invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		protocolFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "protocol_faults_total",
			Help:      "Connections torn down because the frame stream was corrupt.",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.duration, m.protocolFaults} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records one invocation of op that started at start.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.calls.WithLabelValues(op, Outcome(err)).Inc()

	var perr *protocol.ProtocolError
	if errors.As(err, &perr) {
		m.protocolFaults.WithLabelValues(perr.Reason).Inc()
	}
}

// Outcome classifies err into one of the outcome labels.
func Outcome(err error) string {
	var (
		dhcpErr      *protocol.DhcpServerError
		transportErr *protocol.RemoteTransportError
		remoteErr    *protocol.RemoteError
		protocolErr  *protocol.ProtocolError
	)

	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &dhcpErr):
		return OutcomeDhcpError
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	case errors.As(err, &remoteErr):
		return OutcomeRemoteError
	case errors.As(err, &protocolErr):
		return OutcomeProtocolError
	default:
		return OutcomeError
	}
}
