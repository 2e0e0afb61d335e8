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

package api

import (
	"sync"

	"l2/xxrp/config"
	"l2/xxrp/protocol"
	"l2/xxrp/server"
)

type ApiLayer struct {
	server *server.XXRPServer
}

var xxrpapi *ApiLayer = nil
var once sync.Once

/*  Singleton instance should be accesible only within api
 */
func getInstance() *ApiLayer {
	once.Do(func() {
		xxrpapi = &ApiLayer{}
	})
	return xxrpapi
}

func Init(svr *server.XXRPServer) {
	xxrpapi = getInstance()
	xxrpapi.server = svr
}

// Plugin callbacks. They may be called from any goroutine.

func RxFrame(port uint32, frame []byte) bool {
	return xxrpapi.server.RxFrame(port, frame)
}

func ForwardedFrame(port uint32, frame []byte) bool {
	return xxrpapi.server.ForwardedFrame(port, frame)
}

func ConfigMessage(payload []byte) error {
	return xxrpapi.server.ConfigMessage(payload)
}

func PortStateChange(port uint32, msti uint8, forwarding bool) {
	xxrpapi.server.PortStateChange(port, msti, forwarding)
}

func PortRoleChange(port uint32, msti uint8, role config.PortRole) {
	xxrpapi.server.PortRoleChange(port, msti, role)
}

func MstiMapChange() {
	xxrpapi.server.MstiMapChange()
}

func VlanMembershipChange(port uint32, vid uint16, admin config.RegistrarAdmin) {
	xxrpapi.server.VlanAdminChange(port, vid, admin)
}

func PortMediaChange(port uint32, pointToPoint bool) error {
	return xxrpapi.server.PointToPointChange(port, pointToPoint)
}

func BecomePrimary() error {
	return xxrpapi.server.BecomePrimary()
}

func BecomeSecondary() error {
	return xxrpapi.server.BecomeSecondary()
}

// Local declarations requested by the VLAN module.

func Join(id config.Application, port uint32, vid uint16) error {
	return xxrpapi.server.Join(id, port, vid)
}

func Leave(id config.Application, port uint32, vid uint16) error {
	return xxrpapi.server.Leave(id, port, vid)
}

// Management.

func SetGlobalEnable(id config.Application, enable bool) error {
	return xxrpapi.server.SetGlobalEnable(id, enable)
}

func GetGlobalEnable(id config.Application) (bool, error) {
	return xxrpapi.server.GlobalEnable(id)
}

func SetPortEnable(id config.Application, port uint32, enable bool) error {
	return xxrpapi.server.SetPortEnable(id, port, enable)
}

func GetPortEnable(id config.Application, port uint32) (bool, error) {
	return xxrpapi.server.PortEnable(id, port)
}

func SetTimers(id config.Application, port uint32, t config.Timers) error {
	return xxrpapi.server.SetTimers(id, port, t)
}

func GetTimers(id config.Application, port uint32) (config.Timers, error) {
	return xxrpapi.server.Timers(id, port)
}

func SetPeriodic(id config.Application, port uint32, enable bool) error {
	return xxrpapi.server.SetPeriodic(id, port, enable)
}

func GetPeriodic(id config.Application, port uint32) (bool, error) {
	return xxrpapi.server.Periodic(id, port)
}

func SetManagedVlans(id config.Application, vlans string) error {
	return xxrpapi.server.SetManagedVlansText(id, vlans)
}

func GetManagedVlans(id config.Application) (string, error) {
	vlans, err := xxrpapi.server.ManagedVlans(id)
	if err != nil {
		return "", err
	}
	return vlans.String(), nil
}

func GetPortStats(id config.Application, port uint32) (protocol.PortStats, error) {
	return xxrpapi.server.PortStats(id, port)
}

func ClearPortStats(id config.Application, port uint32) error {
	return xxrpapi.server.ClearPortStats(id, port)
}

func GetMad(id config.Application, port uint32, vid uint16) (config.Registration, error) {
	return xxrpapi.server.GetMad(id, port, vid)
}

func GetRing(id config.Application, msti uint8) ([]uint32, error) {
	return xxrpapi.server.GetRing(id, msti)
}

func GetPortStates(id config.Application, idx int, cnt int) (int, int, []config.PortState) {
	n, c, result := xxrpapi.server.GetPortStates(id, idx, cnt)
	return n, c, result
}

func GetRegistrations(id config.Application, port uint32, idx int, cnt int) (int, int, []config.Registration) {
	n, c, result := xxrpapi.server.GetRegistrations(id, port, idx, cnt)
	return n, c, result
}
