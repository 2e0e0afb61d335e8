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

package platform

import (
	"net"
	"sort"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/utils"
)

// linkList is replaced in tests.
var linkList = netlink.LinkList

/*  Build the port table from the kernel links. When names is empty every
 *  ethernet-like, non loopback link is used in ifindex order, otherwise the
 *  links named are used in the order given. Port numbers are 0-based.
 */
func portsFromLinks(links []netlink.Link, names []string, unit uint32) []*config.PortInfo {
	byName := make(map[string]netlink.Link, len(links))
	var candidates []netlink.Link
	for _, l := range links {
		attrs := l.Attrs()
		byName[attrs.Name] = l
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		switch l.Type() {
		case "device", "veth":
			candidates = append(candidates, l)
		}
	}
	var chosen []netlink.Link
	if len(names) == 0 {
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Attrs().Index < candidates[j].Attrs().Index
		})
		chosen = candidates
	} else {
		for _, n := range names {
			l, ok := byName[n]
			if !ok {
				debug.Logger.Warn("interface not found", zap.String("name", n))
				continue
			}
			chosen = append(chosen, l)
		}
	}
	ports := make([]*config.PortInfo, 0, len(chosen))
	for i, l := range chosen {
		attrs := l.Attrs()
		ports = append(ports, &config.PortInfo{
			Port:    uint32(i),
			Unit:    unit,
			IfIndex: int32(attrs.Index),
			Name:    attrs.Name,
			MacAddr: append(net.HardwareAddr(nil), attrs.HardwareAddr...),
		})
	}
	return ports
}

// DiscoverPorts reads the kernel links through netlink.
func DiscoverPorts(names []string, unit uint32) ([]*config.PortInfo, error) {
	links, err := linkList()
	if err != nil {
		return nil, err
	}
	ports := portsFromLinks(links, names, unit)
	debug.Logger.Info("ports discovered", zap.Int("count", len(ports)))
	return ports, nil
}

// MarkSharedMedia flags the ports whose interface is listed as shared
// media. Every other port is taken as a point-to-point link.
func MarkSharedMedia(ports []*config.PortInfo, names []string) {
	shared := make(map[string]bool, len(names))
	for _, n := range names {
		shared[n] = true
	}
	for _, p := range ports {
		p.SharedMedia = shared[p.Name]
	}
}

// AsicPlugin serves the discovered port table and starts frame reception.
type AsicPlugin struct {
	ports     []*config.PortInfo
	transport *PcapTransport
}

func NewAsicPlugin(ports []*config.PortInfo, transport *PcapTransport) *AsicPlugin {
	return &AsicPlugin{ports: ports, transport: transport}
}

func (p *AsicPlugin) GetPortsInfo() []*config.PortInfo {
	return p.ports
}

func (p *AsicPlugin) Start() {
	if p.transport == nil {
		return
	}
	if err := p.transport.Start(); err != nil {
		debug.Logger.Error("transport start incomplete", zap.Error(err))
	}
}
