package plugin

import (
	"net"

	"l2/xxrp/config"
)

// AsicIntf reports every port of the stack together with its owning unit.
type AsicIntf interface {
	GetPortsInfo() []*config.PortInfo
	Start()
}

// VlanIntf is the VLAN module. Membership is only changed through
// AddMembership and RemoveMembership.
type VlanIntf interface {
	AddMembership(port uint32, vid uint16) error
	RemoveMembership(port uint32, vid uint16) error
	RegistrarAdmin(port uint32, vid uint16) config.RegistrarAdmin
}

// StpIntf is the spanning tree module, observed only.
type StpIntf interface {
	PortForwarding(port uint32, msti uint8) bool
	MstiOf(vid uint16) uint8
}

// TransportIntf transmits frames. Transmit must not block on the network.
type TransportIntf interface {
	PortMac(port uint32) net.HardwareAddr
	Transmit(port uint32, frame []byte) error
}

// StackIntf is the inter-unit messaging. Delivery is reliable and ordered.
type StackIntf interface {
	LocalUnit() uint32
	Units() []uint32
	SendConfig(unit uint32, payload []byte) error
	ForwardToPrimary(port uint32, frame []byte) error
}
