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

package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"l2/xxrp/api"
	"l2/xxrp/config"
	"l2/xxrp/platform"
	"l2/xxrp/server"
	"l2/xxrp/utils"
)

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.Logger.Error("metrics listener", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}

func main() {
	fmt.Println("Starting xxrp daemon")
	paramsDir := flag.String("params", "./params", "Params directory")
	configFile := flag.String("config", "", "Configuration file (default <params>/"+config.DefaultConfigFile+")")
	logLevel := flag.String("log-level", "", "Log level, overrides the configuration file")
	flag.Parse()

	fileName := *configFile
	if fileName == "" {
		fileName = filepath.Join(*paramsDir, config.DefaultConfigFile)
	}
	conf, err := config.LoadFile(fileName)
	if err != nil {
		fmt.Println("Failed to load configuration:", err)
		os.Exit(1)
	}
	confs, err := conf.ApplConfs()
	if err != nil {
		fmt.Println("Invalid configuration:", err)
		os.Exit(1)
	}

	fmt.Println("Start logger")
	level := conf.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger, err := debug.NewLogger("xxrpd", level, conf.Development)
	if err != nil {
		fmt.Println("Failed to start the logger. Nothing will be logged...", err)
	} else {
		debug.SetLogger(logger)
		defer logger.Sync()
	}
	debug.Logger.Info("Started the logger successfully.", zap.String("config", fileName))

	ports, err := platform.DiscoverPorts(conf.Interfaces, conf.UnitId)
	if err != nil {
		debug.Logger.Error("port discovery failed", zap.Error(err))
		os.Exit(1)
	}
	platform.MarkSharedMedia(ports, conf.SharedMedia)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	transport := platform.NewPcapTransport(ports, api.RxFrame)
	xxrpSvr := server.NewXXRPServer(server.ServerConfig{
		Asic:         platform.NewAsicPlugin(ports, transport),
		Vlan:         platform.NewNetlinkVlan(ports, conf.StaticVlan),
		Stp:          platform.StaticStp{},
		Transport:    transport,
		Stack:        platform.NewStandalone(conf.UnitId, api.ForwardedFrame),
		Registerer:   reg,
		RxQueueDepth: conf.RxQueueDepth,
		MaxMads:      conf.MaxMads,
	})
	// Start Api Layer
	api.Init(xxrpSvr)

	debug.Logger.Info("Starting XXRP server....")
	if err := xxrpSvr.XXRPStartServer(confs); err != nil {
		debug.Logger.Error("Cannot start xxrp server", zap.Error(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(conf.MetricsAddr, reg)

	// a standalone unit is its own primary
	if err := api.BecomePrimary(); err != nil {
		debug.Logger.Warn("configuration not fully applied", zap.Error(err))
	}

	<-xxrpSvr.Done()
	metricsSrv.Close()
	transport.Close()
	debug.Logger.Info("Exiting!!!!!")
}
