package platform

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/utils"
)

type vlanKey struct {
	port uint32
	vid  uint16
}

type bridgeVlanFunc func(link netlink.Link, vid uint16, pvid, untagged, self, master bool) error

// NetlinkVlan programs dynamic VLAN membership on the bridge ports through
// netlink. Static overrides come from the configuration file.
type NetlinkVlan struct {
	links  map[uint32]netlink.Link
	static map[vlanKey]config.RegistrarAdmin

	add bridgeVlanFunc
	del bridgeVlanFunc
}

func NewNetlinkVlan(ports []*config.PortInfo, statics []config.StaticVlan) *NetlinkVlan {
	v := &NetlinkVlan{
		links:  make(map[uint32]netlink.Link, len(ports)),
		static: make(map[vlanKey]config.RegistrarAdmin),
		add:    netlink.BridgeVlanAdd,
		del:    netlink.BridgeVlanDel,
	}
	for _, p := range ports {
		v.links[p.Port] = &netlink.Device{LinkAttrs: netlink.LinkAttrs{Index: int(p.IfIndex), Name: p.Name}}
	}
	for _, s := range statics {
		for _, vid := range s.Vlans.Vids() {
			v.static[vlanKey{s.Port, vid}] = s.Admin
		}
	}
	return v
}

func (v *NetlinkVlan) link(port uint32) (netlink.Link, error) {
	l, ok := v.links[port]
	if !ok {
		return nil, &config.ConfigError{Op: "vlan", Reason: fmt.Sprintf("port %d does not exist", port)}
	}
	return l, nil
}

func (v *NetlinkVlan) AddMembership(port uint32, vid uint16) error {
	l, err := v.link(port)
	if err != nil {
		return err
	}
	if err := v.add(l, vid, false, false, false, true); err != nil {
		return fmt.Errorf("bridge vlan add %s vid %d: %w", l.Attrs().Name, vid, err)
	}
	debug.Logger.Debug("vlan member added", zap.String("port", l.Attrs().Name), zap.Uint16("vid", vid))
	return nil
}

func (v *NetlinkVlan) RemoveMembership(port uint32, vid uint16) error {
	l, err := v.link(port)
	if err != nil {
		return err
	}
	if err := v.del(l, vid, false, false, false, true); err != nil {
		return fmt.Errorf("bridge vlan del %s vid %d: %w", l.Attrs().Name, vid, err)
	}
	debug.Logger.Debug("vlan member removed", zap.String("port", l.Attrs().Name), zap.Uint16("vid", vid))
	return nil
}

func (v *NetlinkVlan) RegistrarAdmin(port uint32, vid uint16) config.RegistrarAdmin {
	return v.static[vlanKey{port, vid}]
}
