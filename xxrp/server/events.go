package server

import (
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/utils"
)

// RxFrame is called by the transport for every frame received on port.
// Admission is decided against the local mirror; on the primary the frame is
// queued, on a secondary it is forwarded.
func (svr *XXRPServer) RxFrame(port uint32, frame []byte) bool {
	return svr.coord.AdmitFrame(port, frame)
}

// ForwardedFrame is a frame another unit received and forwarded here.
func (svr *XXRPServer) ForwardedFrame(port uint32, frame []byte) bool {
	return svr.coord.ForwardedFrame(port, frame)
}

// ConfigMessage applies a configuration message sent by the primary.
func (svr *XXRPServer) ConfigMessage(payload []byte) error {
	err := svr.coord.ApplyMirror(payload)
	if err != nil {
		debug.Logger.Warn("config message rejected", zap.Error(err))
	}
	return err
}

// Topology callbacks arrive from other modules, possibly while they hold
// their own locks, so they are only queued here. A secondary ignores them:
// the next BecomePrimary reads the current topology from the collaborators.
func (svr *XXRPServer) pushTopology(ev TopologyEvent) {
	if !svr.coord.IsPrimary() {
		return
	}
	svr.queue.pushEvent(ev)
}

func (svr *XXRPServer) PortStateChange(port uint32, msti uint8, forwarding bool) {
	svr.pushTopology(TopologyEvent{Kind: TopoPortState, Port: port, Msti: msti, Forwarding: forwarding})
}

func (svr *XXRPServer) PortRoleChange(port uint32, msti uint8, role config.PortRole) {
	svr.pushTopology(TopologyEvent{Kind: TopoPortRole, Port: port, Msti: msti, Role: role})
}

func (svr *XXRPServer) MstiMapChange() {
	svr.pushTopology(TopologyEvent{Kind: TopoMstiMap})
}

func (svr *XXRPServer) VlanAdminChange(port uint32, vid uint16, admin config.RegistrarAdmin) {
	svr.pushTopology(TopologyEvent{Kind: TopoVlanAdmin, Port: port, Vid: vid, Admin: admin})
}

// PointToPointChange is the link callback for a change of the port's media.
// It only touches engine state, so it is applied at once and survives a
// change of role.
func (svr *XXRPServer) PointToPointChange(port uint32, p2p bool) error {
	return svr.engine.SetPointToPoint(port, p2p)
}

// RxQueueDropped is the number of frames dropped because the rx queue was
// full.
func (svr *XXRPServer) RxQueueDropped() uint64 {
	return svr.queue.Dropped()
}
