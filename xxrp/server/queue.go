package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"l2/xxrp/config"
)

const DEFAULT_RX_QUEUE_DEPTH = 512

type TopologyKind uint8

const (
	TopoPortState TopologyKind = iota
	TopoPortRole
	TopoMstiMap
	TopoVlanAdmin
)

var TopologyKindStrMap = map[TopologyKind]string{
	TopoPortState: "PortState",
	TopoPortRole:  "PortRole",
	TopoMstiMap:   "MstiMap",
	TopoVlanAdmin: "VlanAdmin",
}

func (k TopologyKind) String() string {
	return TopologyKindStrMap[k]
}

// TopologyEvent is a spanning tree or VLAN module notification deferred to
// the rx task.
type TopologyEvent struct {
	Kind       TopologyKind
	Port       uint32
	Msti       uint8
	Forwarding bool
	Role       config.PortRole
	Vid        uint16
	Admin      config.RegistrarAdmin
}

type rxItem struct {
	frame []byte
	port  uint32
	event *TopologyEvent
}

// rxQueue is the single FIFO drained by the rx task. Frames are bounded and
// the newest frame is dropped when the bound is reached; topology events
// are never dropped so they keep their place relative to frames.
type rxQueue struct {
	mu     sync.Mutex
	items  []rxItem
	frames int
	depth  int
	notify chan struct{}

	dropped      uint64
	depthGauge   prometheus.Gauge
	droppedTotal prometheus.Counter
}

func newRxQueue(depth int, reg prometheus.Registerer) *rxQueue {
	if depth <= 0 {
		depth = DEFAULT_RX_QUEUE_DEPTH
	}
	f := promauto.With(reg)
	return &rxQueue{
		depth:  depth,
		notify: make(chan struct{}, 1),
		depthGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "xxrp_rx_queue_depth", Help: "Frames waiting for the rx task.",
		}),
		droppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "xxrp_rx_queue_dropped_total", Help: "Frames dropped because the rx queue was full.",
		}),
	}
}

func (q *rxQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *rxQueue) pushFrame(port uint32, frame []byte) bool {
	q.mu.Lock()
	if q.frames >= q.depth {
		q.dropped++
		q.mu.Unlock()
		q.droppedTotal.Inc()
		return false
	}
	q.items = append(q.items, rxItem{port: port, frame: append([]byte(nil), frame...)})
	q.frames++
	q.depthGauge.Set(float64(q.frames))
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *rxQueue) pushEvent(ev TopologyEvent) {
	q.mu.Lock()
	q.items = append(q.items, rxItem{event: &ev})
	q.mu.Unlock()
	q.wake()
}

// drain takes everything queued so far, in arrival order.
func (q *rxQueue) drain() []rxItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.frames = 0
	q.depthGauge.Set(0)
	return items
}

func (q *rxQueue) clear() {
	q.drain()
	select {
	case <-q.notify:
	default:
	}
}

func (q *rxQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
