package server

import (
	"fmt"

	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/protocol"
	"l2/xxrp/utils"
)

func (svr *XXRPServer) checkAppl(id config.Application) error {
	if id >= config.ApplMax {
		return &config.ConfigError{Op: "application", Reason: fmt.Sprintf("unknown application %d", id)}
	}
	return nil
}

func (svr *XXRPServer) checkPort(id config.Application, port uint32) error {
	if err := svr.checkAppl(id); err != nil {
		return err
	}
	if _, ok := svr.portsInfo[port]; !ok {
		return &config.ConfigError{Op: "port", Reason: fmt.Sprintf("port %d does not exist", port)}
	}
	return nil
}

// running reports whether changes to id must also reach the engine.
func (svr *XXRPServer) running(id config.Application) bool {
	return svr.coord.IsPrimary() && svr.engine.GlobalEnabled(id)
}

// commit records the new desired configuration. Distribution to the other
// units is best effort and only logged.
func (svr *XXRPServer) commit(id config.Application, d config.ApplConf) {
	if err := svr.coord.SetDesired(id, d); err != nil {
		debug.Logger.Warn("configuration distribution incomplete", zap.Stringer("appl", id), zap.Error(err))
	}
}

func (svr *XXRPServer) SetGlobalEnable(id config.Application, enable bool) error {
	if err := svr.checkAppl(id); err != nil {
		return err
	}
	d := svr.coord.Desired(id)
	if d.GlobalEnable == enable {
		return nil
	}
	if enable {
		for other := config.Application(0); other < config.ApplMax; other++ {
			if other != id && svr.coord.Desired(other).GlobalEnable {
				return &protocol.ExclusivityError{Requested: id, Active: other}
			}
		}
	}
	d.GlobalEnable = enable
	if svr.coord.IsPrimary() {
		var err error
		if enable {
			err = svr.engine.Enable(id, d)
		} else {
			err = svr.engine.Disable(id)
		}
		if err != nil {
			return err
		}
	}
	svr.commit(id, d)
	debug.Logger.Info("global enable", zap.Stringer("appl", id), zap.Bool("enable", enable))
	return nil
}

func (svr *XXRPServer) GlobalEnable(id config.Application) (bool, error) {
	if err := svr.checkAppl(id); err != nil {
		return false, err
	}
	return svr.coord.Desired(id).GlobalEnable, nil
}

func (svr *XXRPServer) SetPortEnable(id config.Application, port uint32, enable bool) error {
	if err := svr.checkPort(id, port); err != nil {
		return err
	}
	d := svr.coord.Desired(id)
	pc := d.Port(port)
	if pc.Enable == enable {
		return nil
	}
	if svr.running(id) {
		if err := svr.engine.SetPortEnabled(id, port, enable); err != nil {
			return err
		}
	}
	pc.Enable = enable
	d.SetPort(port, pc)
	svr.commit(id, d)
	return nil
}

func (svr *XXRPServer) PortEnable(id config.Application, port uint32) (bool, error) {
	if err := svr.checkPort(id, port); err != nil {
		return false, err
	}
	d := svr.coord.Desired(id)
	return d.Port(port).Enable, nil
}

func (svr *XXRPServer) SetTimers(id config.Application, port uint32, t config.Timers) error {
	if err := svr.checkPort(id, port); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if svr.running(id) {
		if err := svr.engine.SetTimers(id, port, t); err != nil {
			return err
		}
	}
	d := svr.coord.Desired(id)
	pc := d.Port(port)
	pc.Timers = t
	d.SetPort(port, pc)
	svr.commit(id, d)
	return nil
}

func (svr *XXRPServer) Timers(id config.Application, port uint32) (config.Timers, error) {
	if err := svr.checkPort(id, port); err != nil {
		return config.Timers{}, err
	}
	d := svr.coord.Desired(id)
	return d.Port(port).Timers, nil
}

func (svr *XXRPServer) SetPeriodic(id config.Application, port uint32, enable bool) error {
	if err := svr.checkPort(id, port); err != nil {
		return err
	}
	if svr.running(id) {
		if err := svr.engine.SetPeriodic(id, port, enable); err != nil {
			return err
		}
	}
	d := svr.coord.Desired(id)
	pc := d.Port(port)
	pc.Periodic = enable
	d.SetPort(port, pc)
	svr.commit(id, d)
	return nil
}

func (svr *XXRPServer) Periodic(id config.Application, port uint32) (bool, error) {
	if err := svr.checkPort(id, port); err != nil {
		return false, err
	}
	d := svr.coord.Desired(id)
	return d.Port(port).Periodic, nil
}

func (svr *XXRPServer) SetManagedVlans(id config.Application, vlans config.VlanList) error {
	if err := svr.checkAppl(id); err != nil {
		return err
	}
	if err := vlans.Validate(); err != nil {
		return err
	}
	if svr.running(id) {
		if err := svr.engine.SetManagedVlans(id, vlans); err != nil {
			return err
		}
	}
	d := svr.coord.Desired(id)
	d.ManagedVlans = vlans
	svr.commit(id, d)
	return nil
}

// SetManagedVlansText accepts the "1,5-10" notation.
func (svr *XXRPServer) SetManagedVlansText(id config.Application, text string) error {
	vlans, err := config.ParseVlanList(text, config.VlanIdMin, config.VlanIdMax)
	if err != nil {
		return err
	}
	return svr.SetManagedVlans(id, vlans)
}

func (svr *XXRPServer) ManagedVlans(id config.Application) (config.VlanList, error) {
	if err := svr.checkAppl(id); err != nil {
		return config.VlanList{}, err
	}
	return svr.coord.Desired(id).ManagedVlans, nil
}

// Join and Leave are the local declaration requests of the VLAN module.
func (svr *XXRPServer) Join(id config.Application, port uint32, vid uint16) error {
	return svr.engine.Join(id, port, vid)
}

func (svr *XXRPServer) Leave(id config.Application, port uint32, vid uint16) error {
	return svr.engine.Leave(id, port, vid)
}

func (svr *XXRPServer) PortStats(id config.Application, port uint32) (protocol.PortStats, error) {
	if err := svr.checkPort(id, port); err != nil {
		return protocol.PortStats{}, err
	}
	return svr.engine.PortStats(id, port)
}

func (svr *XXRPServer) ClearPortStats(id config.Application, port uint32) error {
	if err := svr.checkPort(id, port); err != nil {
		return err
	}
	return svr.engine.ClearPortStats(id, port)
}

func (svr *XXRPServer) GetMad(id config.Application, port uint32, vid uint16) (config.Registration, error) {
	if err := svr.checkPort(id, port); err != nil {
		return config.Registration{}, err
	}
	e, err := svr.engine.MadGet(id, port, vid)
	if err != nil {
		return config.Registration{}, err
	}
	return config.Registration{
		Vid:       vid,
		Applicant: e.Applicant.String(),
		Registrar: e.Registrar.String(),
		Admin:     e.Admin,
	}, nil
}

func (svr *XXRPServer) GetRing(id config.Application, msti uint8) ([]uint32, error) {
	if err := svr.checkAppl(id); err != nil {
		return nil, err
	}
	return svr.engine.Ring(id, msti)
}
