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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"l2/xxrp/config"
	"l2/xxrp/plugin"
	"l2/xxrp/protocol"
	"l2/xxrp/stack"
	"l2/xxrp/utils"
)

type ServerConfig struct {
	Asic      plugin.AsicIntf
	Vlan      plugin.VlanIntf
	Stp       plugin.StpIntf
	Transport plugin.TransportIntf
	Stack     plugin.StackIntf

	Clock        clock.Clock
	Registerer   prometheus.Registerer
	RxQueueDepth int
	MaxMads      int
}

// XXRPServer glues the protocol engine to the outside world. The engine only
// runs while this unit is the stack primary; the timer and rx tasks are
// spawned by BecomePrimary and cancelled by BecomeSecondary.
type XXRPServer struct {
	asicPlugin  plugin.AsicIntf
	stackPlugin plugin.StackIntf

	clk    clock.Clock
	engine *protocol.Engine
	coord  *stack.Coordinator
	queue  *rxQueue
	kick   chan struct{}

	portsInfo map[uint32]*config.PortInfo
	portOrder []uint32

	roleMu sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	xxrpExit chan bool
}

func NewXXRPServer(cfg ServerConfig) *XXRPServer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	svr := &XXRPServer{
		asicPlugin:  cfg.Asic,
		stackPlugin: cfg.Stack,
		clk:         clk,
		queue:       newRxQueue(cfg.RxQueueDepth, reg),
		kick:        make(chan struct{}, 1),
		portsInfo:   make(map[uint32]*config.PortInfo),
		xxrpExit:    make(chan bool, 1),
	}
	portsInfo := cfg.Asic.GetPortsInfo()
	var shared []uint32
	for _, p := range portsInfo {
		svr.portsInfo[p.Port] = p
		svr.portOrder = append(svr.portOrder, p.Port)
		if p.SharedMedia {
			shared = append(shared, p.Port)
		}
	}
	sort.Slice(svr.portOrder, func(i, j int) bool { return svr.portOrder[i] < svr.portOrder[j] })

	// the primary drives every port of the stack
	svr.engine = protocol.NewEngine(protocol.EngineConfig{
		Ports:       svr.portOrder,
		Vlan:        cfg.Vlan,
		Stp:         cfg.Stp,
		Transport:   cfg.Transport,
		Clock:       clk,
		Registerer:  reg,
		MaxMads:     cfg.MaxMads,
		SharedMedia: shared,
	})
	svr.engine.SetKick(svr.wakeTimerTask)
	svr.coord = stack.NewCoordinator(cfg.Stack, svr.engine, svr.queue.pushFrame)
	svr.coord.SetPorts(portsInfo)
	return svr
}

func (svr *XXRPServer) wakeTimerTask() {
	select {
	case svr.kick <- struct{}{}:
	default:
	}
}

func (svr *XXRPServer) Engine() *protocol.Engine {
	return svr.engine
}

func (svr *XXRPServer) Coordinator() *stack.Coordinator {
	return svr.coord
}

/*  xxrp server: 1) Load the desired configuration
 *		 2) Install the signal handler
 *		 3) Start the asic plugin so frames start flowing
 *  The protocol itself starts on BecomePrimary.
 */
func (svr *XXRPServer) XXRPStartServer(confs [config.ApplMax]config.ApplConf) error {
	var enabled []config.Application
	for id := range confs {
		if confs[id].GlobalEnable {
			enabled = append(enabled, config.Application(id))
		}
	}
	if len(enabled) > 1 {
		return &protocol.ExclusivityError{Requested: enabled[1], Active: enabled[0]}
	}
	for id := range confs {
		if err := confs[id].Validate(); err != nil {
			return err
		}
		if err := svr.coord.SetDesired(config.Application(id), confs[id]); err != nil {
			return err
		}
	}
	svr.OSSignalHandle()
	svr.asicPlugin.Start()
	debug.Logger.Info("xxrp server started", zap.Int("ports", len(svr.portOrder)),
		zap.Uint32("unit", svr.stackPlugin.LocalUnit()))
	return nil
}

/*  Create os signal handler channel and initiate go routine for that
 */
func (svr *XXRPServer) OSSignalHandle() {
	sigChannel := make(chan os.Signal, 1)
	signalList := []os.Signal{syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT}
	signal.Notify(sigChannel, signalList...)
	go svr.SignalHandler(sigChannel)
}

/* OS signal handler.
 *      Any of the handled signals stops the protocol tasks, withdraws every
 *      application and then releases whoever waits on Done.
 */
func (svr *XXRPServer) SignalHandler(sigChannel <-chan os.Signal) {
	sig := <-sigChannel
	debug.Logger.Warn("received signal", zap.String("signal", sig.String()))
	svr.Stop()
}

func (svr *XXRPServer) Stop() {
	if err := svr.BecomeSecondary(); err != nil {
		debug.Logger.Error("stop", zap.Error(err))
	}
	select {
	case svr.xxrpExit <- true:
	default:
	}
	debug.Logger.Info("xxrp server stopped")
}

// Done delivers once the server has stopped.
func (svr *XXRPServer) Done() <-chan bool {
	return svr.xxrpExit
}

func (svr *XXRPServer) IsPrimary() bool {
	svr.roleMu.Lock()
	defer svr.roleMu.Unlock()
	return svr.cancel != nil
}

// BecomePrimary reconciles the engine with the desired configuration and
// starts the timer and rx tasks. Reconciliation errors are returned but the
// tasks run regardless.
func (svr *XXRPServer) BecomePrimary() error {
	svr.roleMu.Lock()
	defer svr.roleMu.Unlock()
	if svr.cancel != nil {
		return nil
	}
	session := svr.coord.BecomePrimary()
	svr.queue.clear()
	err := svr.coord.Reconcile()
	if err != nil {
		debug.Logger.Error("reconcile on becoming primary", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svr.timerTask(gctx) })
	g.Go(func() error { return svr.rxTask(gctx) })
	svr.cancel = cancel
	svr.group = g
	debug.Logger.Info("protocol tasks started", zap.Stringer("session", session))
	return err
}

// BecomeSecondary stops the tasks, drops whatever was queued and releases
// every application so nothing of the old role survives.
func (svr *XXRPServer) BecomeSecondary() error {
	svr.roleMu.Lock()
	defer svr.roleMu.Unlock()
	if svr.cancel == nil {
		svr.coord.BecomeSecondary()
		return nil
	}
	svr.cancel()
	err := svr.group.Wait()
	svr.cancel = nil
	svr.group = nil
	svr.queue.clear()
	for id := config.Application(0); id < config.ApplMax; id++ {
		if svr.engine.GlobalEnabled(id) {
			err = multierr.Append(err, svr.engine.Disable(id))
		}
	}
	svr.coord.BecomeSecondary()
	debug.Logger.Info("protocol tasks stopped", zap.Int("armedTimers", svr.engine.ArmedTimers()))
	return err
}

// timerTask fires expired timers and then sleeps until the next deadline or
// until the engine reports an earlier one.
func (svr *XXRPServer) timerTask(ctx context.Context) error {
	for {
		next, ok := svr.engine.TimerTick()
		var fire <-chan time.Time
		var t *clock.Timer
		if ok {
			t = svr.clk.Timer(next)
			fire = t.C
		}
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return nil
		case <-svr.kick:
		case <-fire:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// rxTask dispatches queued frames and topology events in arrival order.
func (svr *XXRPServer) rxTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svr.queue.notify:
		}
		for _, item := range svr.queue.drain() {
			if ctx.Err() != nil {
				return nil
			}
			svr.dispatch(item)
		}
	}
}

func (svr *XXRPServer) dispatch(item rxItem) {
	defer func() {
		if r := recover(); r != nil {
			debug.Logger.Error("rx dispatch panic", zap.Uint32("port", item.port),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if item.event == nil {
		if err := svr.engine.ReceiveFrame(item.port, item.frame); err != nil {
			debug.Logger.Debug("frame not processed", zap.Uint32("port", item.port), zap.Error(err))
		}
		return
	}
	ev := item.event
	switch ev.Kind {
	case TopoPortState:
		svr.engine.PortStateChange(ev.Port, ev.Msti, ev.Forwarding)
	case TopoPortRole:
		svr.engine.PortRoleChange(ev.Port, ev.Msti, ev.Role)
	case TopoMstiMap:
		svr.engine.MstiMapChange()
	case TopoVlanAdmin:
		svr.engine.SetRegistrarAdmin(ev.Port, ev.Vid, ev.Admin)
	default:
		debug.Logger.Warn("unknown topology event", zap.Stringer("kind", ev.Kind))
	}
}
