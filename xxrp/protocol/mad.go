//
//Copyright [2016] [SnapRoute Inc]
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//	 Unless required by applicable law or agreed to in writing, software
//	 distributed under the License is distributed on an "AS IS" BASIS,
//	 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//	 See the License for the specific language governing permissions and
//	 limitations under the License.
//
// _______  __       __________   ___      _______.____    __    ____  __  .___________.  ______  __    __
// |   ____||  |     |   ____\  \ /  /     /       |\   \  /  \  /   / |  | |           | /      ||  |  |  |
// |  |__   |  |     |  |__   \  V  /     |   (----` \   \/    \/   /  |  | `---|  |----`|  ,----'|  |__|  |
// |   __|  |  |     |   __|   >   <       \   \      \            /   |  |     |  |     |  |     |   __   |
// |  |     |  `----.|  |____ /  .  \  .----)   |      \    /\    /    |  |     |  |     |  `----.|  |  |  |
// |__|     |_______||_______/__/ \__\ |_______/        \__/  \__/     |__|     |__|      \______||__|  |__|
//

package protocol

import (
	"net"
	"time"

	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/utils"
)

// Mad is the attribute declaration state of one port: an applicant and a
// registrar per managed VLAN plus the port's LeaveAll and Periodic machines.
type Mad struct {
	appl *Appl
	port uint32

	timers   config.Timers
	machines [config.VlanIdCount]MadEntry
	// VLANs declared because of a local Join request
	localJoin config.VlanList

	leaveAll LeaveAllState
	periodic PeriodicState

	joinTimer     *Timer
	leaveAllTimer *Timer
	periodicTimer *Timer
	leaveTimers   map[uint16]*Timer

	// events encoded but not yet sent because the last PDU was full
	pending packet.EventVector
	peerMac net.HardwareAddr
}

func newMad(h *held, a *Appl, port uint32, pc config.PortConf) *Mad {
	m := &Mad{
		appl:        a,
		port:        port,
		timers:      pc.Timers,
		leaveTimers: make(map[uint16]*Timer),
	}
	m.joinTimer = newTimer(TimerTypeJoin, port, 0, m.joinTimerExpired)
	m.leaveAllTimer = newTimer(TimerTypeLeaveAll, port, 0, m.leaveAllTimerExpired)
	m.periodicTimer = newTimer(TimerTypePeriodic, port, 0, m.periodicTimerExpired)
	for _, vid := range a.managedVids {
		m.machines[vid] = MadEntry{
			Applicant: ApplicantVO,
			Registrar: RegistrarMT,
			Admin:     h.vlan.RegistrarAdmin(port, vid),
		}
	}
	return m
}

// start runs the machines' Begin and applies fixed registrations. The port
// is not yet in any ring.
func (m *Mad) start(h *held) {
	pc := m.appl.conf.Port(m.port)
	if pc.Periodic {
		m.periodicEvent(h, PeriodicEventBegin)
	}
	m.leaveAllEvent(h, LeaveAllEventBegin)
	for _, vid := range m.appl.managedVids {
		if m.machines[vid].Admin == config.AdminFixed {
			m.applyFixed(h, vid)
		}
	}
}

// destroy withdraws dynamic registrations and releases every timer.
func (m *Mad) destroy(h *held) {
	for _, vid := range m.appl.managedVids {
		e := &m.machines[vid]
		if e.Registrar != RegistrarMT && e.Admin == config.AdminNormal {
			if err := h.vlan.RemoveMembership(m.port, vid); err != nil {
				debug.Logger.Warn("remove membership failed", zap.Uint32("port", m.port),
					zap.Uint16("vid", vid), zap.Error(err))
			}
		}
		*e = MadEntry{}
	}
	h.timers.Disarm(m.joinTimer)
	h.timers.Disarm(m.leaveAllTimer)
	h.timers.Disarm(m.periodicTimer)
	for vid, t := range m.leaveTimers {
		h.timers.Disarm(t)
		delete(m.leaveTimers, vid)
	}
	m.pending.Reset()
}

func (m *Mad) counters(h *held) *portCounters {
	return m.appl.counters(h, m.port)
}

// requestTx arms the join timer unless a transmit opportunity is already
// scheduled.
func (m *Mad) requestTx(h *held) {
	if m.joinTimer.Running() {
		return
	}
	ms := m.timers.JoinDuration().Milliseconds()
	if ms < 1 {
		ms = 1
	}
	h.timers.Arm(m.joinTimer, time.Duration(h.rnd.Int63n(ms)+1)*time.Millisecond)
}

func (m *Mad) appEvent(h *held, vid uint16, ev ApplicantEvent, vec *packet.EventVector) {
	e := &m.machines[vid]
	if ev == AppEventLv && e.Admin == config.AdminFixed {
		return
	}
	next, action := e.Applicant.step(ev, !h.shared[m.port])
	if vec != nil {
		registered := e.Registrar == RegistrarIN
		switch action {
		case appActSendNew:
			vec.Set(vid, packet.EventNew)
		case appActSendJoin:
			if registered {
				vec.Set(vid, packet.EventJoinIn)
			} else {
				vec.Set(vid, packet.EventJoinMt)
			}
		case appActSend:
			if registered {
				vec.Set(vid, packet.EventIn)
			} else {
				vec.Set(vid, packet.EventMt)
			}
		case appActSendLeave:
			vec.Set(vid, packet.EventLv)
		}
	}
	if next != e.Applicant {
		MachineLogger(m, "applicant", vid, ev, e.Applicant, next)
		e.Applicant = next
	}
	if next.RequiresTx() {
		m.requestTx(h)
	}
}

func (m *Mad) regEvent(h *held, vid uint16, ev RegistrarEvent) {
	e := &m.machines[vid]
	prev := e.Registrar
	next, action := prev.next(ev)
	if next != prev {
		MachineLogger(m, "registrar", vid, ev, prev, next)
		e.Registrar = next
	}
	switch action {
	case regActNew:
		if prev == RegistrarMT {
			m.appl.joinIndication(h, m.port, vid)
		} else {
			m.appl.ring.propagateJoin(h, m.appl, m.port, vid)
		}
	case regActJoin:
		m.appl.joinIndication(h, m.port, vid)
	case regActLeave:
		m.stopLeaveTimer(h, vid)
		m.appl.leaveIndication(h, m.port, vid)
	case regActStartTimer:
		m.startLeaveTimer(h, vid)
	case regActStopTimer:
		m.stopLeaveTimer(h, vid)
	case regActStopTimerNew:
		m.stopLeaveTimer(h, vid)
		m.appl.ring.propagateJoin(h, m.appl, m.port, vid)
	}
}

// regEventNormal delivers ev only to registrars without a static override.
func (m *Mad) regEventNormal(h *held, vid uint16, ev RegistrarEvent) {
	if m.machines[vid].Admin == config.AdminNormal {
		m.regEvent(h, vid, ev)
	}
}

func (m *Mad) startLeaveTimer(h *held, vid uint16) {
	t := m.leaveTimers[vid]
	if t == nil {
		t = newTimer(TimerTypeLeave, m.port, vid, func(h *held) { m.leaveTimerExpired(h, vid) })
		m.leaveTimers[vid] = t
	}
	h.timers.Arm(t, m.timers.LeaveDuration())
}

func (m *Mad) stopLeaveTimer(h *held, vid uint16) {
	if t := m.leaveTimers[vid]; t != nil {
		h.timers.Disarm(t)
		delete(m.leaveTimers, vid)
	}
}

func (m *Mad) leaveTimerExpired(h *held, vid uint16) {
	delete(m.leaveTimers, vid)
	if m.appl.mads[m.port] != m || !m.appl.managed.Get(vid) {
		debug.Logger.Error("leave timer fired for a released attribute",
			zap.Uint32("port", m.port), zap.Uint16("vid", vid))
		return
	}
	m.regEventNormal(h, vid, RegEventLeaveTimer)
}

func (m *Mad) leaveAllEvent(h *held, ev LeaveAllEvent) {
	next, action := m.leaveAll.next(ev)
	m.leaveAll = next
	if action == laActStartTimer {
		la := m.timers.LeaveAllDuration()
		jitter := time.Duration(h.rnd.Int63n(int64(la/2) + 1))
		h.timers.Arm(m.leaveAllTimer, la+jitter)
	}
	if next == LeaveAllActive {
		m.requestTx(h)
	}
}

func (m *Mad) leaveAllTimerExpired(h *held) {
	if m.appl.mads[m.port] != m {
		debug.Logger.Error("leave-all timer fired for a disabled port", zap.Uint32("port", m.port))
		return
	}
	m.leaveAllEvent(h, LeaveAllEventTimer)
}

func (m *Mad) periodicEvent(h *held, ev PeriodicEvent) {
	next, action := m.periodic.next(ev)
	m.periodic = next
	switch action {
	case perActStartTimer:
		h.timers.Arm(m.periodicTimer, config.PeriodicTimer)
	case perActStopTimer:
		h.timers.Disarm(m.periodicTimer)
	case perActPeriodic:
		for _, vid := range m.appl.managedVids {
			m.appEvent(h, vid, AppEventPeriodic, nil)
		}
		h.timers.Arm(m.periodicTimer, config.PeriodicTimer)
	}
}

func (m *Mad) periodicTimerExpired(h *held) {
	if m.appl.mads[m.port] != m {
		debug.Logger.Error("periodic timer fired for a disabled port", zap.Uint32("port", m.port))
		return
	}
	m.periodicEvent(h, PeriodicEventTimer)
}

// joinTimerExpired is the transmit opportunity of the port.
func (m *Mad) joinTimerExpired(h *held) {
	if m.appl.mads[m.port] != m {
		debug.Logger.Error("join timer fired for a disabled port", zap.Uint32("port", m.port))
		return
	}
	leaveAll := m.leaveAll == LeaveAllActive
	if leaveAll {
		m.leaveAllEvent(h, LeaveAllEventTx)
	}
	var vec packet.EventVector
	ev := AppEventTx
	if leaveAll {
		ev = AppEventTxLA
	}
	for _, vid := range m.appl.managedVids {
		if h.stp.PortForwarding(m.port, h.stp.MstiOf(vid)) {
			m.appEvent(h, vid, ev, &vec)
		}
	}
	m.pending.Merge(&vec)
	m.transmit(h, &m.pending, leaveAll)
	if m.pending.Pending() > 0 {
		m.requestTx(h)
	}
	if leaveAll {
		// our own LeaveAll also ages the local registrations
		for _, vid := range m.appl.managedVids {
			m.regEventNormal(h, vid, RegEventTxLA)
		}
	}
}

// transmit sends one PDU from vec. Events that did not fit stay in vec.
func (m *Mad) transmit(h *held, vec *packet.EventVector, leaveAll bool) bool {
	before := *vec
	frame, err := packet.Encode(m.appl.id, h.transport.PortMac(m.port), vec, leaveAll)
	if err != nil {
		debug.Logger.Error("encode failed", zap.Uint32("port", m.port), zap.Error(err))
		return false
	}
	if frame == nil {
		return false
	}
	if err := h.transport.Transmit(m.port, frame); err != nil {
		debug.Logger.Warn("transmit failed", zap.Uint32("port", m.port), zap.Error(err))
		return false
	}
	c := m.counters(h)
	c.tx()
	if leaveAll {
		c.leaveAllTx()
	}
	for vid, e := range before {
		if e != packet.EventNone && vec[vid] == packet.EventNone {
			c.eventTx(e)
		}
	}
	return true
}

func (m *Mad) receive(h *held, pdu *packet.PDU) {
	m.peerMac = pdu.SrcMAC
	c := m.counters(h)
	c.stats.PeerMac = pdu.SrcMAC
	for _, va := range pdu.Attributes {
		if va.LeaveAll {
			c.leaveAllRx()
			m.leaveAllEvent(h, LeaveAllEventRx)
			for _, vid := range m.appl.managedVids {
				m.appEvent(h, vid, AppEventRLA, nil)
				m.regEventNormal(h, vid, RegEventRLA)
			}
		}
		for i, ev := range va.Events {
			vid := va.FirstValue + uint16(i)
			c.eventRx(ev)
			if !m.appl.managed.Get(vid) {
				continue
			}
			m.rxEvent(h, vid, ev)
		}
	}
	n := 0
	for _, vid := range m.appl.managedVids {
		if m.machines[vid].Registrar != RegistrarMT {
			n++
		}
	}
	c.registered(n)
}

func (m *Mad) rxEvent(h *held, vid uint16, ev packet.Event) {
	switch ev {
	case packet.EventNew:
		m.regEventNormal(h, vid, RegEventRNew)
		m.appEvent(h, vid, AppEventRNew, nil)
	case packet.EventJoinIn:
		m.regEventNormal(h, vid, RegEventRJoinIn)
		m.appEvent(h, vid, AppEventRJoinIn, nil)
	case packet.EventJoinMt:
		m.regEventNormal(h, vid, RegEventRJoinMt)
		m.appEvent(h, vid, AppEventRJoinMt, nil)
	case packet.EventLv:
		m.regEventNormal(h, vid, RegEventRLv)
		m.appEvent(h, vid, AppEventRLv, nil)
	case packet.EventIn:
		m.appEvent(h, vid, AppEventRIn, nil)
	case packet.EventMt:
		m.appEvent(h, vid, AppEventRMt, nil)
	}
}

// applyFixed forces a fixed registration in and declares it.
func (m *Mad) applyFixed(h *held, vid uint16) {
	e := &m.machines[vid]
	m.stopLeaveTimer(h, vid)
	e.Registrar = RegistrarIN
	m.appEvent(h, vid, AppEventJoin, nil)
	m.appl.ring.propagateJoin(h, m.appl, m.port, vid)
}

// setAdmin handles a change of the static registration of vid.
func (m *Mad) setAdmin(h *held, vid uint16, admin config.RegistrarAdmin) {
	e := &m.machines[vid]
	prev := e.Admin
	if prev == admin {
		return
	}
	debug.Logger.Info("registrar admin changed", zap.Stringer("appl", m.appl.id),
		zap.Uint32("port", m.port), zap.Uint16("vid", vid),
		zap.Stringer("from", prev), zap.Stringer("to", admin))
	e.Admin = admin
	if admin == config.AdminFixed {
		m.applyFixed(h, vid)
		return
	}
	wasRegistered := e.Registrar != RegistrarMT
	m.stopLeaveTimer(h, vid)
	e.Registrar = RegistrarMT
	if wasRegistered && prev == config.AdminNormal {
		if err := h.vlan.RemoveMembership(m.port, vid); err != nil {
			debug.Logger.Warn("remove membership failed", zap.Uint32("port", m.port),
				zap.Uint16("vid", vid), zap.Error(err))
		}
	}
	if !m.appl.shouldDeclare(h, m, vid) {
		m.appEvent(h, vid, AppEventLv, nil)
	}
	if wasRegistered {
		m.appl.ring.propagateLeave(h, m.appl, m.port, vid)
	}
}

func (m *Mad) addAttribute(h *held, vid uint16) {
	m.machines[vid] = MadEntry{
		Applicant: ApplicantVO,
		Registrar: RegistrarMT,
		Admin:     h.vlan.RegistrarAdmin(m.port, vid),
	}
}

// removeAttribute deregisters vid and, if it was declared, queues a final
// Lv before the state is dropped.
func (m *Mad) removeAttribute(h *held, vid uint16) {
	e := &m.machines[vid]
	if e.Registrar != RegistrarMT && e.Admin == config.AdminNormal {
		if err := h.vlan.RemoveMembership(m.port, vid); err != nil {
			debug.Logger.Warn("remove membership failed", zap.Uint32("port", m.port),
				zap.Uint16("vid", vid), zap.Error(err))
		}
	}
	declared := e.Applicant.Declaring()
	m.stopLeaveTimer(h, vid)
	m.localJoin.Clear(vid)
	*e = MadEntry{}
	m.pending.Set(vid, packet.EventNone)
	if declared && h.stp.PortForwarding(m.port, h.stp.MstiOf(vid)) {
		m.pending.Set(vid, packet.EventLv)
		m.requestTx(h)
	}
}
