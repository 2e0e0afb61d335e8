package platform

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/utils"
)

const (
	XXRP_SNAPSHOT_LEN = 1600
	XXRP_PROMISCUOUS  = true
	// read timeout so a closed handle is noticed by the receive loop
	XXRP_PCAP_TIMEOUT = time.Second
)

var ErrNoHandle = errors.New("no capture handle")

// RxFunc receives every captured frame. It must not block.
type RxFunc func(port uint32, frame []byte) bool

type pcapPort struct {
	info   *config.PortInfo
	mu     sync.RWMutex
	handle *pcap.Handle
}

// PcapTransport sends and receives frames on the port interfaces with one
// pcap handle per port, filtered on the group address.
type PcapTransport struct {
	ports map[uint32]*pcapPort
	rx    RxFunc
	wg    sync.WaitGroup
}

func NewPcapTransport(ports []*config.PortInfo, rx RxFunc) *PcapTransport {
	t := &PcapTransport{ports: make(map[uint32]*pcapPort, len(ports)), rx: rx}
	for _, p := range ports {
		t.ports[p.Port] = &pcapPort{info: p}
	}
	return t
}

/*  Create pcap handlers for all ports and start one receive go routine per
 *  port. A port whose handle cannot be opened is skipped.
 */
func (t *PcapTransport) Start() error {
	var err error
	for port, pp := range t.ports {
		h, e := pcap.OpenLive(pp.info.Name, XXRP_SNAPSHOT_LEN, XXRP_PROMISCUOUS, XXRP_PCAP_TIMEOUT)
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("open %s: %w", pp.info.Name, e))
			continue
		}
		if e := h.SetBPFFilter(packet.XXRP_BPF_FILTER); e != nil {
			h.Close()
			err = multierr.Append(err, fmt.Errorf("filter %s: %w", pp.info.Name, e))
			continue
		}
		pp.mu.Lock()
		pp.handle = h
		pp.mu.Unlock()
		t.wg.Add(1)
		go t.receiveFrames(port, h)
	}
	return err
}

func (t *PcapTransport) receiveFrames(port uint32, h *pcap.Handle) {
	defer t.wg.Done()
	pktSrc := gopacket.NewPacketSource(h, h.LinkType())
	for pkt := range pktSrc.Packets() {
		if !t.rx(port, pkt.Data()) {
			debug.Logger.Debug("frame not admitted", zap.Uint32("port", port))
		}
	}
	debug.Logger.Info("capture closed", zap.Uint32("port", port))
}

func (t *PcapTransport) PortMac(port uint32) net.HardwareAddr {
	if pp, ok := t.ports[port]; ok {
		return pp.info.MacAddr
	}
	return nil
}

func (t *PcapTransport) Transmit(port uint32, frame []byte) error {
	pp, ok := t.ports[port]
	if !ok {
		return &config.ConfigError{Op: "transmit", Reason: fmt.Sprintf("port %d does not exist", port)}
	}
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	if pp.handle == nil {
		return ErrNoHandle
	}
	return pp.handle.WritePacketData(frame)
}

// Close releases every handle and waits for the receive go routines.
func (t *PcapTransport) Close() {
	for _, pp := range t.ports {
		pp.mu.Lock()
		if pp.handle != nil {
			pp.handle.Close()
			pp.handle = nil
		}
		pp.mu.Unlock()
	}
	t.wg.Wait()
}
