package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instrumentation surface shared by every
// connection's transport: counters for accepted/active connections, chunk
// throughput, and secure-channel renewals.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	chunksProcessed     prometheus.Counter
	bytesIn             prometheus.Counter
	bytesOut            prometheus.Counter
	secureChannelRenews prometheus.Counter
}

// NewMetrics registers the transport's metrics against reg. A nil reg is
// accepted for tests and constructs metrics that are simply never scraped.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "connections_active",
			Help: "Currently active TCP connections.",
		}),
		chunksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "chunks_processed_total",
			Help: "Total inbound chunk groups that passed sequence and security validation.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "bytes_in_total",
			Help: "Total bytes read from client sockets.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "bytes_out_total",
			Help: "Total bytes written to client sockets.",
		}),
		secureChannelRenews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opcua", Subsystem: "transport", Name: "secure_channel_renewals_total",
			Help: "Total OpenSecureChannel Renew requests served.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connectionsAccepted, m.connectionsActive, m.chunksProcessed,
			m.bytesIn, m.bytesOut, m.secureChannelRenews)
	}
	return m
}

func (m *Metrics) connAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) chunkProcessed() {
	if m == nil {
		return
	}
	m.chunksProcessed.Inc()
}

func (m *Metrics) observeBytesIn(n int) {
	if m == nil {
		return
	}
	m.bytesIn.Add(float64(n))
}

func (m *Metrics) observeBytesOut(n int) {
	if m == nil {
		return
	}
	m.bytesOut.Add(float64(n))
}

func (m *Metrics) secureChannelRenewed() {
	if m == nil {
		return
	}
	m.secureChannelRenews.Inc()
}
