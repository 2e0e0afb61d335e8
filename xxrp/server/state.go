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

package server

import (
	"l2/xxrp/config"
	"l2/xxrp/utils"
)

func (svr *XXRPServer) populatePortState(id config.Application, port uint32, entry *config.PortState) {
	d := svr.coord.Desired(id)
	pc := d.Port(port)
	entry.Port = port
	entry.Appl = id
	entry.Enable = pc.Enable
	entry.Periodic = pc.Periodic
	entry.Timers = pc.Timers
	if info, ok := svr.portsInfo[port]; ok {
		entry.Name = info.Name
	}
	entry.PointToPoint, _ = svr.engine.PointToPoint(port)
	stats, err := svr.engine.PortStats(id, port)
	if err != nil {
		// application not running here, only the configuration is known
		return
	}
	entry.PktsRx = stats.PktsRx
	entry.PktsTx = stats.PktsTx
	entry.PktsDroppedRx = stats.PktsDroppedRx
	entry.ParseErrors = stats.ParseErrors
	entry.FailedRegistrations = stats.FailedRegistrations
	if stats.PeerMac != nil {
		entry.PeerMac = stats.PeerMac.String()
	}
	if regs, err := svr.engine.Registrations(id, port); err == nil {
		entry.Registrations = len(regs)
	}
}

/*  Server get bulk for per port state of one application
 */
func (svr *XXRPServer) GetPortStates(id config.Application, idx, cnt int) (int, int, []config.PortState) {
	var nextIdx int
	var count int

	if svr.checkAppl(id) != nil || len(svr.portOrder) == 0 || idx < 0 || cnt <= 0 {
		debug.Logger.Debug("no port state to report")
		return 0, 0, nil
	}
	length := len(svr.portOrder)
	result := make([]config.PortState, cnt)
	var i, j int
	for i, j = 0, idx; i < cnt && j < length; j++ {
		svr.populatePortState(id, svr.portOrder[j], &result[i])
		i++
	}
	if j == length {
		nextIdx = 0
	} else {
		nextIdx = j
	}
	count = i
	return nextIdx, count, result[:count]
}

/*  Server get bulk for the registrations of one port. Only VLANs that are
 *  registered (IN or LV) are reported.
 */
func (svr *XXRPServer) GetRegistrations(id config.Application, port uint32, idx, cnt int) (int, int, []config.Registration) {
	var nextIdx int
	var count int

	vids, err := svr.engine.Registrations(id, port)
	if err != nil || len(vids) == 0 || idx < 0 || cnt <= 0 {
		return 0, 0, nil
	}
	length := len(vids)
	result := make([]config.Registration, 0, cnt)
	var j int
	for j = idx; len(result) < cnt && j < length; j++ {
		reg, err := svr.GetMad(id, port, vids[j])
		if err != nil {
			continue
		}
		result = append(result, reg)
	}
	if j == length {
		nextIdx = 0
	} else {
		nextIdx = j
	}
	count = len(result)
	return nextIdx, count, result
}
