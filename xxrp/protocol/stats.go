package protocol

import (
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"l2/xxrp/config"
	"l2/xxrp/packet"
)

const numEvents = int(packet.EventLv) + 1

// PortStats are the per port counters of one application. They survive a
// port disable and are cleared when the application is disabled.
type PortStats struct {
	PktsRx              uint64
	PktsDroppedRx       uint64
	ParseErrors         uint64
	PktsTx              uint64
	EventsRx            [numEvents]uint64
	EventsTx            [numEvents]uint64
	LeaveAllRx          uint64
	LeaveAllTx          uint64
	FailedRegistrations uint64
	PeerMac             net.HardwareAddr
}

type metrics struct {
	pktsRx      *prometheus.CounterVec
	pktsTx      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	parseErrors *prometheus.CounterVec
	eventsRx    *prometheus.CounterVec
	eventsTx    *prometheus.CounterVec
	failedReg   *prometheus.CounterVec
	registered  *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	portLabels := []string{"appl", "port"}
	eventLabels := []string{"appl", "port", "event"}
	return &metrics{
		pktsRx: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_pdus_rx_total", Help: "PDUs received and processed.",
		}, portLabels),
		pktsTx: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_pdus_tx_total", Help: "PDUs transmitted.",
		}, portLabels),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_pdus_dropped_total", Help: "Received PDUs dropped.",
		}, portLabels),
		parseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_parse_errors_total", Help: "Received PDUs rejected as malformed.",
		}, portLabels),
		eventsRx: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_events_rx_total", Help: "Attribute events received.",
		}, eventLabels),
		eventsTx: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_events_tx_total", Help: "Attribute events transmitted.",
		}, eventLabels),
		failedReg: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xxrp_failed_registrations_total", Help: "VLAN memberships the VLAN module refused.",
		}, portLabels),
		registered: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xxrp_registered_attributes", Help: "Attributes with a registrar in IN or LV.",
		}, portLabels),
	}
}

type portCounters struct {
	stats PortStats
	appl  config.Application
	port  string
	m     *metrics
}

func newPortCounters(m *metrics, appl config.Application, port uint32) *portCounters {
	return &portCounters{m: m, appl: appl, port: strconv.FormatUint(uint64(port), 10)}
}

func (c *portCounters) rx() {
	c.stats.PktsRx++
	c.m.pktsRx.WithLabelValues(c.appl.String(), c.port).Inc()
}

func (c *portCounters) tx() {
	c.stats.PktsTx++
	c.m.pktsTx.WithLabelValues(c.appl.String(), c.port).Inc()
}

func (c *portCounters) drop() {
	c.stats.PktsDroppedRx++
	c.m.dropped.WithLabelValues(c.appl.String(), c.port).Inc()
}

func (c *portCounters) parseError() {
	c.stats.ParseErrors++
	c.m.parseErrors.WithLabelValues(c.appl.String(), c.port).Inc()
	c.drop()
}

func (c *portCounters) eventRx(e packet.Event) {
	if int(e) < numEvents {
		c.stats.EventsRx[e]++
	}
	c.m.eventsRx.WithLabelValues(c.appl.String(), c.port, e.String()).Inc()
}

func (c *portCounters) eventTx(e packet.Event) {
	if int(e) < numEvents {
		c.stats.EventsTx[e]++
	}
	c.m.eventsTx.WithLabelValues(c.appl.String(), c.port, e.String()).Inc()
}

func (c *portCounters) leaveAllRx() {
	c.stats.LeaveAllRx++
	c.m.eventsRx.WithLabelValues(c.appl.String(), c.port, "LeaveAll").Inc()
}

func (c *portCounters) leaveAllTx() {
	c.stats.LeaveAllTx++
	c.m.eventsTx.WithLabelValues(c.appl.String(), c.port, "LeaveAll").Inc()
}

func (c *portCounters) failedRegistration() {
	c.stats.FailedRegistrations++
	c.m.failedReg.WithLabelValues(c.appl.String(), c.port).Inc()
}

func (c *portCounters) registered(n int) {
	c.m.registered.WithLabelValues(c.appl.String(), c.port).Set(float64(n))
}

func (c *portCounters) snapshot() PortStats {
	s := c.stats
	s.PeerMac = append(net.HardwareAddr(nil), c.stats.PeerMac...)
	return s
}

func (c *portCounters) clear() {
	c.stats = PortStats{}
}
