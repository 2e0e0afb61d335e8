package platform

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"l2/xxrp/config"
)

func device(index int, name string, flags net.Flags) netlink.Link {
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{
		Index:        index,
		Name:         name,
		Flags:        flags,
		HardwareAddr: net.HardwareAddr{0, 1, 2, 3, 4, byte(index)},
	}}
}

func testLinks() []netlink.Link {
	return []netlink.Link{
		device(1, "lo", net.FlagLoopback),
		device(4, "eth2", 0),
		device(2, "eth0", 0),
		&netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Index: 3, Name: "br0"}},
		&netlink.Veth{LinkAttrs: netlink.LinkAttrs{Index: 7, Name: "veth0"}, PeerName: "veth1"},
	}
}

func TestPortsFromLinksDefault(t *testing.T) {
	ports := portsFromLinks(testLinks(), nil, 3)
	require.Len(t, ports, 3)
	assert.Equal(t, "eth0", ports[0].Name)
	assert.Equal(t, "eth2", ports[1].Name)
	assert.Equal(t, "veth0", ports[2].Name)
	for i, p := range ports {
		assert.Equal(t, uint32(i), p.Port)
		assert.Equal(t, uint32(3), p.Unit)
	}
	assert.Equal(t, int32(2), ports[0].IfIndex)
	assert.Equal(t, net.HardwareAddr{0, 1, 2, 3, 4, 2}, ports[0].MacAddr)
}

func TestPortsFromLinksNamed(t *testing.T) {
	ports := portsFromLinks(testLinks(), []string{"eth2", "missing", "eth0"}, 1)
	require.Len(t, ports, 2)
	assert.Equal(t, "eth2", ports[0].Name)
	assert.Equal(t, uint32(0), ports[0].Port)
	assert.Equal(t, "eth0", ports[1].Name)
	assert.Equal(t, uint32(1), ports[1].Port)
}

func TestMarkSharedMedia(t *testing.T) {
	ports := portsFromLinks(testLinks(), []string{"eth2", "eth0"}, 1)
	MarkSharedMedia(ports, []string{"eth0", "missing"})
	assert.False(t, ports[0].SharedMedia)
	assert.True(t, ports[1].SharedMedia)
}

func TestDiscoverPortsError(t *testing.T) {
	saved := linkList
	defer func() { linkList = saved }()
	linkList = func() ([]netlink.Link, error) { return nil, errors.New("netlink unavailable") }
	_, err := DiscoverPorts(nil, 1)
	assert.Error(t, err)
}

type bridgeCall struct {
	name string
	vid  uint16
}

func TestNetlinkVlan(t *testing.T) {
	ports := []*config.PortInfo{{Port: 0, IfIndex: 2, Name: "eth0"}, {Port: 1, IfIndex: 4, Name: "eth2"}}
	statics := []config.StaticVlan{
		{Port: 1, Vlans: config.NewVlanList(10, 11), Admin: config.AdminFixed},
		{Port: 0, Vlans: config.NewVlanList(20), Admin: config.AdminForbidden},
	}
	v := NewNetlinkVlan(ports, statics)
	var added, deleted []bridgeCall
	v.add = func(l netlink.Link, vid uint16, pvid, untagged, self, master bool) error {
		assert.True(t, master)
		added = append(added, bridgeCall{l.Attrs().Name, vid})
		return nil
	}
	v.del = func(l netlink.Link, vid uint16, pvid, untagged, self, master bool) error {
		if vid == 99 {
			return errors.New("no such vlan")
		}
		deleted = append(deleted, bridgeCall{l.Attrs().Name, vid})
		return nil
	}

	require.NoError(t, v.AddMembership(1, 30))
	require.NoError(t, v.RemoveMembership(0, 30))
	assert.Equal(t, []bridgeCall{{"eth2", 30}}, added)
	assert.Equal(t, []bridgeCall{{"eth0", 30}}, deleted)
	assert.Error(t, v.RemoveMembership(0, 99))

	var cfgErr *config.ConfigError
	assert.ErrorAs(t, v.AddMembership(5, 30), &cfgErr)

	assert.Equal(t, config.AdminFixed, v.RegistrarAdmin(1, 11))
	assert.Equal(t, config.AdminForbidden, v.RegistrarAdmin(0, 20))
	assert.Equal(t, config.AdminNormal, v.RegistrarAdmin(0, 10))
}

func TestStaticStp(t *testing.T) {
	var s StaticStp
	assert.True(t, s.PortForwarding(3, 0))
	assert.False(t, s.PortForwarding(3, 2))
	assert.Equal(t, uint8(0), s.MstiOf(100))
}

func TestStandalone(t *testing.T) {
	var got []uint32
	s := NewStandalone(2, func(port uint32, frame []byte) bool {
		got = append(got, port)
		return port != 9
	})
	assert.Equal(t, uint32(2), s.LocalUnit())
	assert.Equal(t, []uint32{2}, s.Units())
	assert.Error(t, s.SendConfig(3, []byte("{}")))
	assert.NoError(t, s.ForwardToPrimary(1, []byte{1}))
	assert.Error(t, s.ForwardToPrimary(9, []byte{1}))
	assert.Equal(t, []uint32{1, 9}, got)
}

func TestTransmitWithoutHandle(t *testing.T) {
	tr := NewPcapTransport([]*config.PortInfo{{Port: 0, Name: "eth0", MacAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5}}}, nil)
	assert.ErrorIs(t, tr.Transmit(0, []byte{1}), ErrNoHandle)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, tr.Transmit(1, []byte{1}), &cfgErr)
	assert.Equal(t, net.HardwareAddr{0, 1, 2, 3, 4, 5}, tr.PortMac(0))
	assert.Nil(t, tr.PortMac(1))
	tr.Close()
}
