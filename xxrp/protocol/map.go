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
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/utils"
)

// Map is the propagation context of an application: per MSTI, the ordered
// ring of enabled ports that forward in that instance. A registration on
// one ring port is declared on all the others.
type Map struct {
	rings [config.MstiMax][]uint32
	roles [config.MstiMax]map[uint32]config.PortRole
}

func newMap() *Map {
	mp := &Map{}
	for i := range mp.roles {
		mp.roles[i] = make(map[uint32]config.PortRole)
	}
	return mp
}

func (mp *Map) contains(msti uint8, port uint32) bool {
	if msti >= config.MstiMax {
		return false
	}
	for _, p := range mp.rings[msti] {
		if p == port {
			return true
		}
	}
	return false
}

func (mp *Map) erase(msti uint8, port uint32) {
	ring := mp.rings[msti]
	for i, p := range ring {
		if p == port {
			mp.rings[msti] = append(ring[:i], ring[i+1:]...)
			return
		}
	}
}

func vidsOf(h *held, a *Appl, msti uint8) []uint16 {
	var out []uint16
	for _, vid := range a.managedVids {
		if h.stp.MstiOf(vid) == msti {
			out = append(out, vid)
		}
	}
	return out
}

// addPort connects a forwarding port to the ring of msti. Its registrations
// are propagated to the ring, and it starts declaring what the ring has
// registered.
func (mp *Map) addPort(h *held, a *Appl, port uint32, msti uint8) {
	m := a.mads[port]
	if m == nil || mp.contains(msti, port) || !h.stp.PortForwarding(port, msti) {
		return
	}
	mp.rings[msti] = append(mp.rings[msti], port)
	debug.Logger.Debug("port added to ring", zap.Stringer("appl", a.id),
		zap.Uint32("port", port), zap.Uint8("msti", msti))
	for _, vid := range vidsOf(h, a, msti) {
		if m.machines[vid].Registrar != RegistrarMT {
			mp.propagateJoin(h, a, port, vid)
		}
		if a.shouldDeclare(h, m, vid) && !m.machines[vid].Applicant.Declaring() {
			m.appEvent(h, vid, AppEventJoin, nil)
		}
	}
}

// removePort disconnects port from the ring of msti. Registrations made
// through it are withdrawn from the rest of the ring and the declarations
// it made on behalf of the ring are withdrawn at once, unless the whole
// application is being torn down.
func (mp *Map) removePort(h *held, a *Appl, port uint32, msti uint8, teardown bool) {
	if !mp.contains(msti, port) {
		return
	}
	m := a.mads[port]
	vids := vidsOf(h, a, msti)
	if m != nil && !teardown {
		for _, vid := range vids {
			if m.machines[vid].Registrar != RegistrarMT {
				mp.propagateLeave(h, a, port, vid)
			}
		}
		mp.transmitLeave(h, m, vids)
	}
	mp.erase(msti, port)
	debug.Logger.Debug("port removed from ring", zap.Stringer("appl", a.id),
		zap.Uint32("port", port), zap.Uint8("msti", msti))
}

// transmitLeave sends a Lv for every propagated declaration of m among
// vids without waiting for a transmit opportunity.
func (mp *Map) transmitLeave(h *held, m *Mad, vids []uint16) {
	var vec packet.EventVector
	for _, vid := range vids {
		e := &m.machines[vid]
		if !e.Applicant.Declaring() || e.Admin == config.AdminFixed || m.localJoin.Get(vid) {
			continue
		}
		m.appEvent(h, vid, AppEventLv, nil)
		if e.Applicant == ApplicantLA {
			m.appEvent(h, vid, AppEventTx, &vec)
		}
	}
	if vec.Pending() == 0 {
		return
	}
	m.transmit(h, &vec, false)
	if vec.Pending() > 0 {
		m.pending.Merge(&vec)
		m.requestTx(h)
	}
}

// roleChange reacts to a spanning tree role transition of port in msti. A
// port becoming designated flushes what it learned as a root or alternate
// port; a designated port becoming root or alternate re-declares.
func (mp *Map) roleChange(h *held, a *Appl, port uint32, msti uint8, role config.PortRole) {
	prev := mp.roles[msti][port]
	mp.roles[msti][port] = role
	m := a.mads[port]
	if m == nil || prev == role {
		return
	}
	rootOrAlt := func(r config.PortRole) bool {
		return r == config.PortRoleRoot || r == config.PortRoleAlternate
	}
	switch {
	case rootOrAlt(prev) && role == config.PortRoleDesignated:
		debug.Logger.Info("flush", zap.Stringer("appl", a.id), zap.Uint32("port", port), zap.Uint8("msti", msti))
		for _, vid := range vidsOf(h, a, msti) {
			m.regEventNormal(h, vid, RegEventFlush)
		}
		m.leaveAllEvent(h, LeaveAllEventTimer)
	case prev == config.PortRoleDesignated && rootOrAlt(role):
		debug.Logger.Info("re-declare", zap.Stringer("appl", a.id), zap.Uint32("port", port), zap.Uint8("msti", msti))
		for _, vid := range vidsOf(h, a, msti) {
			m.appEvent(h, vid, AppEventRedeclare, nil)
			m.regEventNormal(h, vid, RegEventRedeclare)
		}
	}
}

// rebuild makes the ring of msti match the forwarding state reported by
// the spanning tree.
func (mp *Map) rebuild(h *held, a *Appl, msti uint8) {
	for _, p := range append([]uint32(nil), mp.rings[msti]...) {
		if a.mads[p] == nil || !h.stp.PortForwarding(p, msti) {
			mp.removePort(h, a, p, msti, false)
		}
	}
	for _, p := range a.enabledPorts() {
		mp.addPort(h, a, p, msti)
	}
}

// propagateJoin makes every other ring port declare vid after it was
// registered on port.
func (mp *Map) propagateJoin(h *held, a *Appl, port uint32, vid uint16) {
	msti := h.stp.MstiOf(vid)
	if !mp.contains(msti, port) {
		return
	}
	for _, q := range mp.rings[msti] {
		if q == port {
			continue
		}
		if m := a.mads[q]; m != nil && !m.machines[vid].Applicant.Declaring() {
			m.appEvent(h, vid, AppEventJoin, nil)
		}
	}
}

// propagateLeave withdraws vid from the ring ports that no longer have a
// reason to declare it once the registration on port is gone.
func (mp *Map) propagateLeave(h *held, a *Appl, port uint32, vid uint16) {
	msti := h.stp.MstiOf(vid)
	if !mp.contains(msti, port) {
		return
	}
	for _, q := range mp.rings[msti] {
		if q == port {
			continue
		}
		m := a.mads[q]
		if m == nil || !m.machines[vid].Applicant.Declaring() {
			continue
		}
		if !a.shouldDeclare(h, m, vid, port) {
			m.appEvent(h, vid, AppEventLv, nil)
		}
	}
}
