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
	"sort"

	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/utils"
)

// Appl is one running application: its configuration, the MAD of every
// enabled port and the propagation rings.
type Appl struct {
	id          config.Application
	conf        config.ApplConf
	managed     config.VlanList
	managedVids []uint16
	mads        map[uint32]*Mad
	ring        *Map
	stats       map[uint32]*portCounters
}

func (h *held) enable(id config.Application, conf config.ApplConf) error {
	if id >= config.ApplMax {
		return configErr("application", "unknown application %d", id)
	}
	if h.appls[id] != nil {
		return nil
	}
	for _, other := range h.appls {
		if other != nil {
			return &ExclusivityError{Requested: id, Active: other.id}
		}
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	for p, pc := range conf.Ports {
		if pc != nil && pc.Enable && !h.ports[p] {
			return configErr("port", "port %d does not exist", p)
		}
	}
	a := &Appl{
		id:    id,
		conf:  conf.Clone(),
		mads:  make(map[uint32]*Mad),
		ring:  newMap(),
		stats: make(map[uint32]*portCounters),
	}
	a.conf.GlobalEnable = true
	a.managed = conf.ManagedVlans
	a.managedVids = a.managed.Vids()
	h.appls[id] = a
	debug.Logger.Info("application enabled", zap.Stringer("appl", id),
		zap.Stringer("managed", a.managed))

	for _, p := range h.sortedPorts() {
		if !a.conf.Port(p).Enable {
			continue
		}
		if err := a.enablePort(h, p); err != nil {
			debug.Logger.Error("enable failed, rolling back", zap.Stringer("appl", id),
				zap.Uint32("port", p), zap.Error(err))
			h.disable(id)
			return err
		}
	}
	return nil
}

func (h *held) disable(id config.Application) error {
	a, err := h.appl(id)
	if err != nil {
		if err == ErrNotEnabled {
			return nil
		}
		return err
	}
	for _, p := range a.enabledPorts() {
		a.disablePort(h, p, true)
	}
	h.appls[id] = nil
	debug.Logger.Info("application disabled", zap.Stringer("appl", id))
	return nil
}

func (a *Appl) enabledPorts() []uint32 {
	out := make([]uint32, 0, len(a.mads))
	for p := range a.mads {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Appl) counters(h *held, port uint32) *portCounters {
	c := a.stats[port]
	if c == nil {
		c = newPortCounters(h.metrics, a.id, port)
		a.stats[port] = c
	}
	return c
}

func (a *Appl) enablePort(h *held, port uint32) error {
	pc := a.conf.Port(port)
	pc.Enable = true
	if a.mads[port] != nil {
		a.conf.SetPort(port, pc)
		return nil
	}
	if h.mads >= h.maxMads {
		return &ResourceError{Port: port, Reason: "no MAD available"}
	}
	a.conf.SetPort(port, pc)
	m := newMad(h, a, port, pc)
	a.mads[port] = m
	h.mads++
	m.start(h)
	for msti := uint8(0); msti < config.MstiMax; msti++ {
		a.ring.addPort(h, a, port, msti)
	}
	debug.Logger.Info("port enabled", zap.Stringer("appl", a.id), zap.Uint32("port", port))
	return nil
}

// disablePort takes the port out of every ring, withdraws what it
// registered and releases its timers. On teardown the whole application
// goes away, so nothing is withdrawn on the wire or from the other ports.
func (a *Appl) disablePort(h *held, port uint32, teardown bool) {
	pc := a.conf.Port(port)
	pc.Enable = false
	a.conf.SetPort(port, pc)
	m := a.mads[port]
	if m == nil {
		return
	}
	for msti := uint8(0); msti < config.MstiMax; msti++ {
		a.ring.removePort(h, a, port, msti, teardown)
	}
	m.destroy(h)
	delete(a.mads, port)
	h.mads--
	debug.Logger.Info("port disabled", zap.Stringer("appl", a.id), zap.Uint32("port", port))
}

// setManaged applies a new managed set. Removed VLANs are deregistered and
// withdrawn on the wire, added VLANs start from VO/MT.
func (a *Appl) setManaged(h *held, vlans config.VlanList) {
	old := a.managed
	var added, removed []uint16
	for vid := uint16(config.VlanIdMin); vid <= config.VlanIdMax; vid++ {
		switch {
		case vlans.Get(vid) && !old.Get(vid):
			added = append(added, vid)
		case !vlans.Get(vid) && old.Get(vid):
			removed = append(removed, vid)
		}
	}
	ports := a.enabledPorts()
	for _, vid := range removed {
		for _, p := range ports {
			a.mads[p].removeAttribute(h, vid)
		}
	}
	a.managed = vlans
	a.managedVids = vlans.Vids()
	a.conf.ManagedVlans = vlans
	for _, vid := range added {
		for _, p := range ports {
			a.mads[p].addAttribute(h, vid)
		}
	}
	for _, vid := range added {
		for _, p := range ports {
			if a.mads[p].machines[vid].Admin == config.AdminFixed {
				a.mads[p].applyFixed(h, vid)
			}
		}
	}
	debug.Logger.Info("managed vlans changed", zap.Stringer("appl", a.id),
		zap.Int("added", len(added)), zap.Int("removed", len(removed)))
}

// registeredElsewhere reports a registration of vid on a ring port other
// than the excluded ones.
func (a *Appl) registeredElsewhere(h *held, vid uint16, exclude ...uint32) bool {
	msti := h.stp.MstiOf(vid)
	if msti >= config.MstiMax {
		return false
	}
next:
	for _, q := range a.ring.rings[msti] {
		for _, x := range exclude {
			if q == x {
				continue next
			}
		}
		if m := a.mads[q]; m != nil && m.machines[vid].Registrar != RegistrarMT {
			return true
		}
	}
	return false
}

// shouldDeclare tells whether m has a reason to declare vid: a local join
// request, a fixed registration or a registration on another ring port.
func (a *Appl) shouldDeclare(h *held, m *Mad, vid uint16, exclude ...uint32) bool {
	if m.localJoin.Get(vid) || m.machines[vid].Admin == config.AdminFixed {
		return true
	}
	if !a.ring.contains(h.stp.MstiOf(vid), m.port) {
		return false
	}
	return a.registeredElsewhere(h, vid, append(exclude, m.port)...)
}

func (a *Appl) joinIndication(h *held, port uint32, vid uint16) {
	if err := h.vlan.AddMembership(port, vid); err != nil {
		a.counters(h, port).failedRegistration()
		debug.Logger.Warn("add membership failed", zap.Stringer("appl", a.id),
			zap.Uint32("port", port), zap.Uint16("vid", vid), zap.Error(err))
	}
	a.ring.propagateJoin(h, a, port, vid)
}

func (a *Appl) leaveIndication(h *held, port uint32, vid uint16) {
	if err := h.vlan.RemoveMembership(port, vid); err != nil {
		debug.Logger.Warn("remove membership failed", zap.Stringer("appl", a.id),
			zap.Uint32("port", port), zap.Uint16("vid", vid), zap.Error(err))
	}
	a.ring.propagateLeave(h, a, port, vid)
}

// reconcileDeclarations brings every applicant in line with shouldDeclare.
func (a *Appl) reconcileDeclarations(h *held) {
	for _, p := range a.enabledPorts() {
		m := a.mads[p]
		for _, vid := range a.managedVids {
			want := a.shouldDeclare(h, m, vid)
			have := m.machines[vid].Applicant.Declaring()
			switch {
			case want && !have:
				m.appEvent(h, vid, AppEventJoin, nil)
			case !want && have:
				m.appEvent(h, vid, AppEventLv, nil)
			}
		}
	}
}
