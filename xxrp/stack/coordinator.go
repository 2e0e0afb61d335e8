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

package stack

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/plugin"
	"l2/xxrp/utils"
)

// Engine is the part of the protocol engine the coordinator reconciles.
type Engine interface {
	GlobalEnabled(id config.Application) bool
	Enable(id config.Application, conf config.ApplConf) error
	Disable(id config.Application) error
	PortEnabled(id config.Application, port uint32) (bool, error)
	SetPortEnabled(id config.Application, port uint32, enable bool) error
	Timers(id config.Application, port uint32) (config.Timers, error)
	SetTimers(id config.Application, port uint32, t config.Timers) error
	Periodic(id config.Application, port uint32) (bool, error)
	SetPeriodic(id config.Application, port uint32, enable bool) error
	ManagedVlans(id config.Application) (config.VlanList, error)
	SetManagedVlans(id config.Application, vlans config.VlanList) error
}

// EnqueueFunc hands an admitted frame to the local rx queue. It reports
// false when the frame was dropped.
type EnqueueFunc func(port uint32, frame []byte) bool

// Coordinator runs on every unit. On the primary it owns the desired
// configuration and keeps the other units' admission mirrors in sync; on
// every unit it decides which received frames reach the primary.
type Coordinator struct {
	mu      sync.Mutex
	stack   plugin.StackIntf
	engine  Engine
	enqueue EnqueueFunc

	primary bool
	session uuid.UUID

	desired  [config.ApplMax]config.ApplConf
	mirror   [config.ApplMax]config.LocalConf
	portUnit map[uint32]uint32
}

func NewCoordinator(stack plugin.StackIntf, engine Engine, enqueue EnqueueFunc) *Coordinator {
	c := &Coordinator{
		stack:    stack,
		engine:   engine,
		enqueue:  enqueue,
		portUnit: make(map[uint32]uint32),
	}
	for i := range c.desired {
		c.desired[i] = config.DefaultApplConf()
		c.mirror[i] = config.LocalConf{PortEnable: make(map[uint32]bool)}
	}
	return c
}

// SetPorts records which unit owns each port.
func (c *Coordinator) SetPorts(ports []*config.PortInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range ports {
		c.portUnit[p.Port] = p.Unit
	}
}

func (c *Coordinator) IsPrimary() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary
}

func (c *Coordinator) Session() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Desired returns a copy of the configuration the primary maintains.
func (c *Coordinator) Desired(id config.Application) config.ApplConf {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired[id].Clone()
}

// SetDesired replaces the desired configuration of id. The caller has
// already applied it to the engine; the mirrors are refreshed when this
// unit is primary.
func (c *Coordinator) SetDesired(id config.Application, conf config.ApplConf) error {
	if id >= config.ApplMax {
		return &config.ConfigError{Op: "application", Reason: fmt.Sprintf("unknown application %d", id)}
	}
	c.mu.Lock()
	c.desired[id] = conf.Clone()
	primary := c.primary
	c.mu.Unlock()
	if !primary {
		return nil
	}
	return c.DistributeConfig(id)
}

// BecomePrimary starts a new primary term.
func (c *Coordinator) BecomePrimary() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary = true
	c.session = uuid.New()
	debug.Logger.Info("became primary", zap.Stringer("session", c.session),
		zap.Uint32("unit", c.stack.LocalUnit()))
	return c.session
}

func (c *Coordinator) BecomeSecondary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary = false
	debug.Logger.Info("became secondary", zap.Uint32("unit", c.stack.LocalUnit()))
}

// localConf is the mirror unit needs for id: the global enable and the
// enable of the ports it owns.
func (c *Coordinator) localConf(id config.Application, unit uint32) config.LocalConf {
	d := &c.desired[id]
	lc := config.LocalConf{GlobalEnable: d.GlobalEnable, PortEnable: make(map[uint32]bool)}
	for port, u := range c.portUnit {
		if u == unit {
			lc.PortEnable[port] = d.Port(port).Enable
		}
	}
	return lc
}

func (c *Coordinator) send(unit uint32, msg *Message) error {
	if unit == c.stack.LocalUnit() {
		c.mu.Lock()
		c.merge(msg)
		c.mu.Unlock()
		return nil
	}
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	if err := c.stack.SendConfig(unit, payload); err != nil {
		return fmt.Errorf("send to unit %d: %w", unit, err)
	}
	return nil
}

// SyncSwitch sends unit the mirror of every application.
func (c *Coordinator) SyncSwitch(unit uint32) error {
	var err error
	for id := config.Application(0); id < config.ApplMax; id++ {
		c.mu.Lock()
		lc := c.localConf(id, unit)
		session := c.session
		c.mu.Unlock()
		msg := &Message{
			Type:         MsgLocalConfSet,
			Session:      session,
			Unit:         unit,
			Appl:         id,
			GlobalEnable: lc.GlobalEnable,
			PortEnable:   lc.PortEnable,
		}
		err = multierr.Append(err, c.send(unit, msg))
	}
	return err
}

// SyncPort sends the owner of port the enable state of that port only.
func (c *Coordinator) SyncPort(unit, port uint32) error {
	c.mu.Lock()
	owner, ok := c.portUnit[port]
	c.mu.Unlock()
	if !ok || owner != unit {
		return &config.ConfigError{Op: "sync port", Reason: fmt.Sprintf("port %d is not on unit %d", port, unit)}
	}
	var err error
	for id := config.Application(0); id < config.ApplMax; id++ {
		c.mu.Lock()
		d := &c.desired[id]
		msg := &Message{
			Type:         MsgLocalConfSet,
			Session:      c.session,
			Unit:         unit,
			Appl:         id,
			GlobalEnable: d.GlobalEnable,
			PortEnable:   map[uint32]bool{port: d.Port(port).Enable},
		}
		c.mu.Unlock()
		err = multierr.Append(err, c.send(unit, msg))
	}
	return err
}

// DistributeConfig pushes the mirror of id to every unit of the stack.
// A failing unit does not stop the others.
func (c *Coordinator) DistributeConfig(id config.Application) error {
	units := append([]uint32(nil), c.stack.Units()...)
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	var err error
	for _, unit := range units {
		c.mu.Lock()
		lc := c.localConf(id, unit)
		session := c.session
		c.mu.Unlock()
		msg := &Message{
			Type:         MsgLocalConfSet,
			Session:      session,
			Unit:         unit,
			Appl:         id,
			GlobalEnable: lc.GlobalEnable,
			PortEnable:   lc.PortEnable,
		}
		err = multierr.Append(err, c.send(unit, msg))
	}
	if err != nil {
		debug.Logger.Warn("config distribution incomplete", zap.Stringer("appl", id), zap.Error(err))
	}
	return err
}

// ApplyMirror applies a LOCAL_CONF_SET received from the primary. A message
// from a new primary term discards the mirror of the previous one.
func (c *Coordinator) ApplyMirror(payload []byte) error {
	msg, err := UnmarshalMessage(payload)
	if err != nil {
		return err
	}
	if msg.Type != MsgLocalConfSet {
		return fmt.Errorf("stack: unexpected %s message", msg.Type)
	}
	if local := c.stack.LocalUnit(); msg.Unit != local {
		return fmt.Errorf("stack: message for unit %d received on unit %d", msg.Unit, local)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primary {
		return fmt.Errorf("stack: primary does not take mirror updates")
	}
	if msg.Session != c.session {
		debug.Logger.Info("new primary session", zap.Stringer("session", msg.Session))
		c.session = msg.Session
		for i := range c.mirror {
			c.mirror[i] = config.LocalConf{PortEnable: make(map[uint32]bool)}
		}
	}
	c.merge(msg)
	return nil
}

func (c *Coordinator) merge(msg *Message) {
	m := &c.mirror[msg.Appl]
	m.GlobalEnable = msg.GlobalEnable
	if m.PortEnable == nil {
		m.PortEnable = make(map[uint32]bool)
	}
	for port, en := range msg.PortEnable {
		m.PortEnable[port] = en
	}
	debug.Logger.Debug("mirror updated", zap.Stringer("appl", msg.Appl),
		zap.Bool("global", msg.GlobalEnable), zap.Int("ports", len(msg.PortEnable)))
}

func (c *Coordinator) Mirror(id config.Application) config.LocalConf {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.mirror[id]
	out := config.LocalConf{GlobalEnable: m.GlobalEnable, PortEnable: make(map[uint32]bool, len(m.PortEnable))}
	for p, en := range m.PortEnable {
		out.PortEnable[p] = en
	}
	return out
}

// AdmitFrame decides the fate of a frame received on a local port: it is
// queued on the primary, forwarded to it from a secondary, or dropped.
func (c *Coordinator) AdmitFrame(port uint32, frame []byte) bool {
	id, ok := packet.Classify(frame)
	if !ok || packet.Tagged(frame) {
		return false
	}
	c.mu.Lock()
	admit := c.mirror[id].PortEnabled(port)
	primary := c.primary
	c.mu.Unlock()
	if !admit {
		debug.Logger.Debug("frame not admitted", zap.Stringer("appl", id), zap.Uint32("port", port))
		return false
	}
	if primary {
		return c.enqueue(port, frame)
	}
	if err := c.stack.ForwardToPrimary(port, frame); err != nil {
		debug.Logger.Debug("forward to primary failed", zap.Uint32("port", port), zap.Error(err))
		return false
	}
	return true
}

// ForwardedFrame takes a frame a secondary forwarded. Port enable is
// checked again by the engine since the secondary's mirror may be stale.
func (c *Coordinator) ForwardedFrame(port uint32, frame []byte) bool {
	c.mu.Lock()
	primary := c.primary
	c.mu.Unlock()
	if !primary {
		debug.Logger.Warn("forwarded frame received on a secondary", zap.Uint32("port", port))
		return false
	}
	return c.enqueue(port, frame)
}

// Reconcile brings the engine in line with the desired configuration after
// an election and then refreshes every mirror. Applications are disabled
// before any is enabled so exclusivity never trips over a stale state.
func (c *Coordinator) Reconcile() error {
	c.mu.Lock()
	var desired [config.ApplMax]config.ApplConf
	for i := range c.desired {
		desired[i] = c.desired[i].Clone()
	}
	ports := make([]uint32, 0, len(c.portUnit))
	for p := range c.portUnit {
		ports = append(ports, p)
	}
	c.mu.Unlock()
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	var err error
	for id := config.Application(0); id < config.ApplMax; id++ {
		if !desired[id].GlobalEnable && c.engine.GlobalEnabled(id) {
			err = multierr.Append(err, c.engine.Disable(id))
		}
	}
	for id := config.Application(0); id < config.ApplMax; id++ {
		d := &desired[id]
		if !d.GlobalEnable {
			continue
		}
		if !c.engine.GlobalEnabled(id) {
			err = multierr.Append(err, c.engine.Enable(id, *d))
			continue
		}
		err = multierr.Append(err, c.reconcileAppl(id, d, ports))
	}
	for id := config.Application(0); id < config.ApplMax; id++ {
		err = multierr.Append(err, c.DistributeConfig(id))
	}
	if err != nil {
		debug.Logger.Warn("reconcile incomplete", zap.Error(err))
	}
	return err
}

func (c *Coordinator) reconcileAppl(id config.Application, d *config.ApplConf, ports []uint32) error {
	var err error
	if managed, e := c.engine.ManagedVlans(id); e == nil && managed != d.ManagedVlans {
		err = multierr.Append(err, c.engine.SetManagedVlans(id, d.ManagedVlans))
	}
	for _, p := range ports {
		pc := d.Port(p)
		if t, e := c.engine.Timers(id, p); e == nil && t != pc.Timers {
			err = multierr.Append(err, c.engine.SetTimers(id, p, pc.Timers))
		}
		if en, e := c.engine.PortEnabled(id, p); e == nil && en != pc.Enable {
			err = multierr.Append(err, c.engine.SetPortEnabled(id, p, pc.Enable))
		}
		if per, e := c.engine.Periodic(id, p); e == nil && per != pc.Periodic {
			err = multierr.Append(err, c.engine.SetPeriodic(id, p, pc.Periodic))
		}
	}
	return err
}
