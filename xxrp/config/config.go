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

package config

import (
	"fmt"
	"net"
	"strings"
)

type Application uint8

const (
	ApplMVRP Application = iota
	ApplGVRP
	ApplMax
)

var ApplicationStrMap = map[Application]string{
	ApplMVRP: "MVRP",
	ApplGVRP: "GVRP",
}

func (a Application) String() string {
	if s, ok := ApplicationStrMap[a]; ok {
		return s
	}
	return fmt.Sprintf("Application(%d)", uint8(a))
}

func ParseApplication(s string) (Application, error) {
	for a, name := range ApplicationStrMap {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return a, nil
		}
	}
	return ApplMax, fmt.Errorf("unknown application %q", s)
}

func (a Application) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Application) UnmarshalText(text []byte) error {
	v, err := ParseApplication(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// RegistrarAdmin is the static override reported by the VLAN module for a
// (port, vid) pair.
type RegistrarAdmin uint8

const (
	AdminNormal RegistrarAdmin = iota
	AdminFixed
	AdminForbidden
)

var RegistrarAdminStrMap = map[RegistrarAdmin]string{
	AdminNormal:    "normal",
	AdminFixed:     "fixed",
	AdminForbidden: "forbidden",
}

func (r RegistrarAdmin) String() string {
	if s, ok := RegistrarAdminStrMap[r]; ok {
		return s
	}
	return fmt.Sprintf("RegistrarAdmin(%d)", uint8(r))
}

func (r RegistrarAdmin) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RegistrarAdmin) UnmarshalText(text []byte) error {
	for k, v := range RegistrarAdminStrMap {
		if strings.EqualFold(v, strings.TrimSpace(string(text))) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown registrar admin %q", string(text))
}

// PortRole is the spanning tree role of a port in one instance.
type PortRole uint8

const (
	PortRoleDisabled PortRole = iota
	PortRoleRoot
	PortRoleAlternate
	PortRoleDesignated
	PortRoleBackup
)

var PortRoleStrMap = map[PortRole]string{
	PortRoleDisabled:   "Disabled",
	PortRoleRoot:       "Root",
	PortRoleAlternate:  "Alternate",
	PortRoleDesignated: "Designated",
	PortRoleBackup:     "Backup",
}

func (r PortRole) String() string {
	if s, ok := PortRoleStrMap[r]; ok {
		return s
	}
	return fmt.Sprintf("PortRole(%d)", uint8(r))
}

const (
	// CIST plus seven MSTIs
	MstiMax = 8
)

type PortInfo struct {
	Port    uint32
	Unit    uint32
	IfIndex int32
	Name    string
	MacAddr net.HardwareAddr

	// set for links that are not point-to-point
	SharedMedia bool
}

type PortConf struct {
	Enable   bool
	Periodic bool
	Timers   Timers
}

// ApplConf is the desired configuration of one application.
type ApplConf struct {
	GlobalEnable bool
	ManagedVlans VlanList
	Timers       Timers
	Ports        map[uint32]*PortConf
}

func DefaultApplConf() ApplConf {
	return ApplConf{
		Timers: DefaultTimers(),
		Ports:  make(map[uint32]*PortConf),
	}
}

// Port returns the port configuration, a disabled port carrying the default
// timers when nothing was configured.
func (c *ApplConf) Port(port uint32) PortConf {
	if pc, ok := c.Ports[port]; ok && pc != nil {
		return *pc
	}
	t := c.Timers
	if t == (Timers{}) {
		t = DefaultTimers()
	}
	return PortConf{Timers: t}
}

func (c *ApplConf) SetPort(port uint32, pc PortConf) {
	if c.Ports == nil {
		c.Ports = make(map[uint32]*PortConf)
	}
	v := pc
	c.Ports[port] = &v
}

func (c *ApplConf) Clone() ApplConf {
	out := *c
	out.Ports = make(map[uint32]*PortConf, len(c.Ports))
	for p, pc := range c.Ports {
		if pc == nil {
			continue
		}
		v := *pc
		out.Ports[p] = &v
	}
	return out
}

func (c *ApplConf) Validate() error {
	if err := c.ManagedVlans.Validate(); err != nil {
		return err
	}
	if err := c.Timers.Validate(); err != nil {
		return err
	}
	for p, pc := range c.Ports {
		if pc == nil {
			continue
		}
		if err := pc.Timers.Validate(); err != nil {
			return &ConfigError{Op: fmt.Sprintf("port %d timers", p), Reason: err.(*ConfigError).Reason}
		}
	}
	return nil
}

// LocalConf is the reduced copy of the configuration every unit keeps to
// decide frame admission.
type LocalConf struct {
	GlobalEnable bool            `json:"global_enable"`
	PortEnable   map[uint32]bool `json:"port_enable"`
}

func (l *LocalConf) PortEnabled(port uint32) bool {
	return l.GlobalEnable && l.PortEnable[port]
}

// ConfigError is returned for any configuration rejected before it touches
// protocol state.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Op, e.Reason)
}
