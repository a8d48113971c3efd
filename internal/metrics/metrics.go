// Package metrics exposes the node's counters and gauges as Prometheus
// collectors, mirroring the event taxonomy of the original C implementation's
// metric.h (overruns, bad escapes, refused digipeats, pool exhaustion, and
// so on).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the node publishes. It is created
// once per Core and registered with a prometheus.Registerer by the caller,
// never reached for as a package-level global.
type Metrics struct {
	Overrun            prometheus.Counter
	Underrun           prometheus.Counter
	BadEscape          prometheus.Counter
	UnknownKISSCommand prometheus.Counter
	InvalidAddress     prometheus.Counter
	NotMe              prometheus.Counter
	NotMeBytes         prometheus.Counter
	RefusedDigipeat    prometheus.Counter
	UnknownFrame       prometheus.Counter
	NoPackets          prometheus.Counter
	PacketsAllocated   prometheus.Counter
	PacketsFreed       prometheus.Counter
	NoBuffers          prometheus.Counter
	NoConnections      prometheus.Counter
	NoSockets          prometheus.Counter
	KISSFramesSent     prometheus.Counter
	KISSBytesSent      prometheus.Counter
	SABMSuccess        prometheus.Counter
	SABMFail           prometheus.Counter

	ErrorsByCode *prometheus.CounterVec

	PacketPoolInUse    prometheus.GaugeFunc
	BufferPoolInUse    prometheus.GaugeFunc
	ConnectionTableLen prometheus.GaugeFunc
}

// Gauges groups the live-occupancy callbacks a Core supplies when building
// its Metrics, so the gauge collectors always reflect current state rather
// than a stale snapshot.
type Gauges struct {
	PacketPoolInUse    func() float64
	BufferPoolInUse    func() float64
	ConnectionTableLen func() float64
}

const namespace = "ax25"

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// New builds a Metrics bundle wired to the given occupancy callbacks. It
// does not register anything; call Register to attach it to a registry.
func New(g Gauges) *Metrics {
	m := &Metrics{
		Overrun:            counter("overrun_total", "Frames dropped because they exceeded the receive buffer"),
		Underrun:           counter("underrun_total", "Frames dropped because they were too short"),
		BadEscape:          counter("bad_escape_total", "Invalid KISS escape sequences received"),
		UnknownKISSCommand: counter("unknown_kiss_command_total", "Unrecognised KISS command bytes received"),
		InvalidAddress:     counter("invalid_address_total", "Frames dropped for malformed addresses"),
		NotMe:              counter("not_me_total", "Frames dropped because the active destination was not this node"),
		NotMeBytes:         counter("not_me_bytes_total", "Bytes dropped because the active destination was not this node"),
		RefusedDigipeat:    counter("refused_digipeat_total", "Frames whose active destination was a digipeater slot"),
		UnknownFrame:       counter("unknown_frame_total", "Frames with an unrecognised control field"),
		NoPackets:          counter("no_packets_total", "Packet pool exhausted on allocation"),
		PacketsAllocated:   counter("packets_allocated_total", "Packets allocated from the pool"),
		PacketsFreed:       counter("packets_freed_total", "Packets returned to the pool"),
		NoBuffers:          counter("no_buffers_total", "Buffer pool exhausted on allocation"),
		NoConnections:      counter("no_connections_total", "Connection table exhausted on find_or_create"),
		NoSockets:          counter("no_sockets_total", "Socket table exhausted on listen/connect"),
		KISSFramesSent:     counter("kiss_frames_sent_total", "KISS frames transmitted"),
		KISSBytesSent:      counter("kiss_bytes_sent_total", "KISS payload bytes transmitted"),
		SABMSuccess:        counter("sabm_success_total", "Inbound SABM/SABME accepted"),
		SABMFail:           counter("sabm_fail_total", "Inbound SABM/SABME rejected"),

		ErrorsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dl_errors_total",
			Help:      "Data-link errors surfaced via on_error, by taxonomy letter",
		}, []string{"code"}),
	}

	if g.PacketPoolInUse != nil {
		m.PacketPoolInUse = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "packet_pool_in_use", Help: "Packets currently allocated",
		}, g.PacketPoolInUse)
	}
	if g.BufferPoolInUse != nil {
		m.BufferPoolInUse = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_pool_in_use", Help: "Buffers currently allocated",
		}, g.BufferPoolInUse)
	}
	if g.ConnectionTableLen != nil {
		m.ConnectionTableLen = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active", Help: "Non-disconnected connections",
		}, g.ConnectionTableLen)
	}

	return m
}

// Register attaches every collector in m to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		m.Overrun, m.Underrun, m.BadEscape, m.UnknownKISSCommand, m.InvalidAddress,
		m.NotMe, m.NotMeBytes, m.RefusedDigipeat, m.UnknownFrame, m.NoPackets,
		m.PacketsAllocated, m.PacketsFreed, m.NoBuffers, m.NoConnections, m.NoSockets,
		m.KISSFramesSent, m.KISSBytesSent, m.SABMSuccess, m.SABMFail, m.ErrorsByCode,
	} {
		reg.MustRegister(c)
	}
	for _, g := range []prometheus.Collector{m.PacketPoolInUse, m.BufferPoolInUse, m.ConnectionTableLen} {
		if g != nil {
			reg.MustRegister(g)
		}
	}
}
