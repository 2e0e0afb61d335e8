package protocol

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/plugin"
	"l2/xxrp/utils"
)

type EngineConfig struct {
	Ports     []uint32
	Vlan      plugin.VlanIntf
	Stp       plugin.StpIntf
	Transport plugin.TransportIntf

	Clock      clock.Clock
	Rand       *rand.Rand
	Registerer prometheus.Registerer
	// MaxMads bounds the number of ports that may run an application at the
	// same time. Zero means one per port.
	MaxMads int

	// ports that are not point-to-point links
	SharedMedia []uint32
}

// Engine owns all protocol state. Every exported method takes the engine
// lock for its whole duration; the unexported helpers receive a *held which
// only exists while the lock is taken.
type Engine struct {
	mu sync.Mutex
	st state
}

type state struct {
	vlan      plugin.VlanIntf
	stp       plugin.StpIntf
	transport plugin.TransportIntf
	rnd       *rand.Rand
	timers    *TimerEngine
	metrics   *metrics

	ports   map[uint32]bool
	shared  map[uint32]bool
	maxMads int
	mads    int
	appls   [config.ApplMax]*Appl
}

// held is the proof that the engine lock is taken.
type held struct {
	*state
}

func NewEngine(cfg EngineConfig) *Engine {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Engine{
		st: state{
			vlan:      cfg.Vlan,
			stp:       cfg.Stp,
			transport: cfg.Transport,
			rnd:       rnd,
			timers:    NewTimerEngine(cfg.Clock),
			metrics:   newMetrics(reg),
			ports:     make(map[uint32]bool, len(cfg.Ports)),
			shared:    make(map[uint32]bool),
			maxMads:   cfg.MaxMads,
		},
	}
	for _, p := range cfg.Ports {
		e.st.ports[p] = true
	}
	for _, p := range cfg.SharedMedia {
		if e.st.ports[p] {
			e.st.shared[p] = true
		}
	}
	if e.st.maxMads <= 0 {
		e.st.maxMads = len(cfg.Ports)
	}
	return e
}

func (e *Engine) acquire() *held {
	e.mu.Lock()
	return &held{state: &e.st}
}

func (e *Engine) release(h *held) {
	h.state = nil
	e.mu.Unlock()
}

// SetKick installs the hook called whenever the earliest timer deadline
// moves closer. It is called with the engine lock held and must not block.
func (e *Engine) SetKick(kick func()) {
	h := e.acquire()
	defer e.release(h)
	h.timers.kick = kick
}

// TimerTick fires every expired timer and returns the wait until the next
// deadline.
func (e *Engine) TimerTick() (time.Duration, bool) {
	h := e.acquire()
	defer e.release(h)
	return h.timers.Tick(h)
}

func (e *Engine) ArmedTimers() int {
	h := e.acquire()
	defer e.release(h)
	return h.timers.Armed()
}

// Ports returns the ports this engine knows in ascending order.
func (e *Engine) Ports() []uint32 {
	h := e.acquire()
	defer e.release(h)
	return h.sortedPorts()
}

func (h *held) sortedPorts() []uint32 {
	out := make([]uint32, 0, len(h.ports))
	for p := range h.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *held) appl(id config.Application) (*Appl, error) {
	if id >= config.ApplMax {
		return nil, configErr("application", "unknown application %d", id)
	}
	a := h.appls[id]
	if a == nil {
		return nil, ErrNotEnabled
	}
	return a, nil
}

func (h *held) mad(id config.Application, port uint32) (*Mad, error) {
	a, err := h.appl(id)
	if err != nil {
		return nil, err
	}
	if !h.ports[port] {
		return nil, configErr("port", "port %d does not exist", port)
	}
	m := a.mads[port]
	if m == nil {
		return nil, ErrPortDisabled
	}
	return m, nil
}

// IsExclusiveAvailable tells whether id could be enabled now.
func (e *Engine) IsExclusiveAvailable(id config.Application) bool {
	h := e.acquire()
	defer e.release(h)
	for _, a := range h.appls {
		if a != nil && a.id != id {
			return false
		}
	}
	return true
}

// Enable constructs the application with its per port state. It fails with
// an *ExclusivityError if another application of the family is enabled and
// with a *ResourceError, after rolling back, if the ports cannot all be
// started.
func (e *Engine) Enable(id config.Application, conf config.ApplConf) error {
	h := e.acquire()
	defer e.release(h)
	return h.enable(id, conf)
}

// Disable stops every port and then the application. No timer of the
// application is armed once it returns.
func (e *Engine) Disable(id config.Application) error {
	h := e.acquire()
	defer e.release(h)
	return h.disable(id)
}

func (e *Engine) GlobalEnabled(id config.Application) bool {
	h := e.acquire()
	defer e.release(h)
	_, err := h.appl(id)
	return err == nil
}

func (e *Engine) SetPortEnabled(id config.Application, port uint32, enable bool) error {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	if !h.ports[port] {
		return configErr("port", "port %d does not exist", port)
	}
	if enable {
		return a.enablePort(h, port)
	}
	a.disablePort(h, port, false)
	return nil
}

func (e *Engine) PortEnabled(id config.Application, port uint32) (bool, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return false, err
	}
	if !h.ports[port] {
		return false, configErr("port", "port %d does not exist", port)
	}
	return a.mads[port] != nil, nil
}

// SetPointToPoint records whether port is a point-to-point link. It holds
// for every application and takes effect on the next applicant event.
func (e *Engine) SetPointToPoint(port uint32, p2p bool) error {
	h := e.acquire()
	defer e.release(h)
	if !h.ports[port] {
		return configErr("port", "port %d does not exist", port)
	}
	if p2p {
		delete(h.shared, port)
	} else {
		h.shared[port] = true
	}
	debug.Logger.Info("port media changed", zap.Uint32("port", port), zap.Bool("pointToPoint", p2p))
	return nil
}

func (e *Engine) PointToPoint(port uint32) (bool, error) {
	h := e.acquire()
	defer e.release(h)
	if !h.ports[port] {
		return false, configErr("port", "port %d does not exist", port)
	}
	return !h.shared[port], nil
}

func (e *Engine) SetTimers(id config.Application, port uint32, t config.Timers) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	if !h.ports[port] {
		return configErr("port", "port %d does not exist", port)
	}
	pc := a.conf.Port(port)
	pc.Timers = t
	a.conf.SetPort(port, pc)
	if m := a.mads[port]; m != nil {
		m.timers = t
	}
	return nil
}

func (e *Engine) Timers(id config.Application, port uint32) (config.Timers, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return config.Timers{}, err
	}
	if !h.ports[port] {
		return config.Timers{}, configErr("port", "port %d does not exist", port)
	}
	return a.conf.Port(port).Timers, nil
}

func (e *Engine) SetPeriodic(id config.Application, port uint32, enable bool) error {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	if !h.ports[port] {
		return configErr("port", "port %d does not exist", port)
	}
	pc := a.conf.Port(port)
	pc.Periodic = enable
	a.conf.SetPort(port, pc)
	if m := a.mads[port]; m != nil {
		if enable {
			m.periodicEvent(h, PeriodicEventEnabled)
		} else {
			m.periodicEvent(h, PeriodicEventDisabled)
		}
	}
	return nil
}

func (e *Engine) Periodic(id config.Application, port uint32) (bool, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return false, err
	}
	if !h.ports[port] {
		return false, configErr("port", "port %d does not exist", port)
	}
	return a.conf.Port(port).Periodic, nil
}

func (e *Engine) SetManagedVlans(id config.Application, vlans config.VlanList) error {
	if err := vlans.Validate(); err != nil {
		return err
	}
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	a.setManaged(h, vlans)
	return nil
}

func (e *Engine) ManagedVlans(id config.Application) (config.VlanList, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return config.VlanList{}, err
	}
	return a.managed, nil
}

// Join requests a declaration of vid on port.
func (e *Engine) Join(id config.Application, port uint32, vid uint16) error {
	h := e.acquire()
	defer e.release(h)
	m, err := h.mad(id, port)
	if err != nil {
		return err
	}
	if !m.appl.managed.Get(vid) {
		return configErr("join", "vlan %d is not managed", vid)
	}
	m.localJoin.Set(vid)
	m.appEvent(h, vid, AppEventJoin, nil)
	return nil
}

// Leave withdraws a declaration requested by Join. The attribute stays
// declared while another port of the ring has it registered.
func (e *Engine) Leave(id config.Application, port uint32, vid uint16) error {
	h := e.acquire()
	defer e.release(h)
	m, err := h.mad(id, port)
	if err != nil {
		return err
	}
	if !m.appl.managed.Get(vid) {
		return configErr("leave", "vlan %d is not managed", vid)
	}
	m.localJoin.Clear(vid)
	if !m.appl.shouldDeclare(h, m, vid, m.port) {
		m.appEvent(h, vid, AppEventLv, nil)
	}
	return nil
}

// SetRegistrarAdmin is the VLAN module callback for a change of the static
// registration of vid on port.
func (e *Engine) SetRegistrarAdmin(port uint32, vid uint16, admin config.RegistrarAdmin) {
	h := e.acquire()
	defer e.release(h)
	for _, a := range h.appls {
		if a == nil {
			continue
		}
		if m := a.mads[port]; m != nil && a.managed.Get(vid) {
			m.setAdmin(h, vid, admin)
		}
	}
}

// ReceiveFrame processes one received frame. Malformed frames and frames
// for a disabled port are counted and dropped; the returned error is for
// logging only.
func (e *Engine) ReceiveFrame(port uint32, frame []byte) error {
	h := e.acquire()
	defer e.release(h)
	id, ok := packet.Classify(frame)
	if !ok {
		return &packet.ParseError{Reason: "unknown frame"}
	}
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	c := a.counters(h, port)
	m := a.mads[port]
	if m == nil {
		c.drop()
		return ErrPortDisabled
	}
	pdu, err := packet.Decode(frame)
	if err != nil {
		c.parseError()
		return err
	}
	c.rx()
	m.receive(h, pdu)
	return nil
}

func (e *Engine) PortStateChange(port uint32, msti uint8, forwarding bool) {
	h := e.acquire()
	defer e.release(h)
	if msti >= config.MstiMax {
		debug.Logger.Error("port state change for unknown msti", zap.Uint8("msti", msti))
		return
	}
	for _, a := range h.appls {
		if a == nil || a.mads[port] == nil {
			continue
		}
		if forwarding {
			a.ring.addPort(h, a, port, msti)
		} else {
			a.ring.removePort(h, a, port, msti, false)
		}
	}
}

func (e *Engine) PortRoleChange(port uint32, msti uint8, role config.PortRole) {
	h := e.acquire()
	defer e.release(h)
	if msti >= config.MstiMax {
		debug.Logger.Error("port role change for unknown msti", zap.Uint8("msti", msti))
		return
	}
	for _, a := range h.appls {
		if a == nil || a.mads[port] == nil {
			continue
		}
		a.ring.roleChange(h, a, port, msti, role)
	}
}

// MstiMapChange re-derives every ring and the declarations that depend on
// which instance a VLAN belongs to.
func (e *Engine) MstiMapChange() {
	h := e.acquire()
	defer e.release(h)
	for _, a := range h.appls {
		if a == nil {
			continue
		}
		for msti := uint8(0); msti < config.MstiMax; msti++ {
			a.ring.rebuild(h, a, msti)
		}
		a.reconcileDeclarations(h)
	}
}

func (e *Engine) Rebuild(msti uint8) {
	h := e.acquire()
	defer e.release(h)
	if msti >= config.MstiMax {
		return
	}
	for _, a := range h.appls {
		if a != nil {
			a.ring.rebuild(h, a, msti)
		}
	}
}

// MadEntry is the state of one attribute on one port.
type MadEntry struct {
	Applicant ApplicantState
	Registrar RegistrarState
	Admin     config.RegistrarAdmin
}

func (e *Engine) MadGet(id config.Application, port uint32, vid uint16) (MadEntry, error) {
	h := e.acquire()
	defer e.release(h)
	m, err := h.mad(id, port)
	if err != nil {
		return MadEntry{}, err
	}
	if !m.appl.managed.Get(vid) {
		return MadEntry{}, configErr("mad", "vlan %d is not managed", vid)
	}
	return m.machines[vid], nil
}

// Registrations returns the VLANs registered (IN or LV) on port in
// ascending order.
func (e *Engine) Registrations(id config.Application, port uint32) ([]uint16, error) {
	h := e.acquire()
	defer e.release(h)
	m, err := h.mad(id, port)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for _, vid := range m.appl.managedVids {
		if m.machines[vid].Registrar != RegistrarMT {
			out = append(out, vid)
		}
	}
	return out, nil
}

func (e *Engine) PortStats(id config.Application, port uint32) (PortStats, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return PortStats{}, err
	}
	if !h.ports[port] {
		return PortStats{}, configErr("port", "port %d does not exist", port)
	}
	return a.counters(h, port).snapshot(), nil
}

func (e *Engine) ClearPortStats(id config.Application, port uint32) error {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return err
	}
	if !h.ports[port] {
		return configErr("port", "port %d does not exist", port)
	}
	a.counters(h, port).clear()
	return nil
}

func (e *Engine) Ring(id config.Application, msti uint8) ([]uint32, error) {
	h := e.acquire()
	defer e.release(h)
	a, err := h.appl(id)
	if err != nil {
		return nil, err
	}
	if msti >= config.MstiMax {
		return nil, configErr("ring", "msti %d out of range", msti)
	}
	return append([]uint32(nil), a.ring.rings[msti]...), nil
}
