package protocol

import (
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"l2/xxrp/config"
	"l2/xxrp/packet"
)

type membership struct {
	port uint32
	vid  uint16
}

type fakeVlan struct {
	members map[membership]bool
	adds    []membership
	removes []membership
	admin   map[membership]config.RegistrarAdmin
	fail    bool
}

func newFakeVlan() *fakeVlan {
	return &fakeVlan{
		members: make(map[membership]bool),
		admin:   make(map[membership]config.RegistrarAdmin),
	}
}

func (v *fakeVlan) AddMembership(port uint32, vid uint16) error {
	if v.fail {
		return errors.New("vlan table full")
	}
	k := membership{port, vid}
	v.adds = append(v.adds, k)
	v.members[k] = true
	return nil
}

func (v *fakeVlan) RemoveMembership(port uint32, vid uint16) error {
	k := membership{port, vid}
	v.removes = append(v.removes, k)
	delete(v.members, k)
	return nil
}

func (v *fakeVlan) RegistrarAdmin(port uint32, vid uint16) config.RegistrarAdmin {
	return v.admin[membership{port, vid}]
}

type stpKey struct {
	port uint32
	msti uint8
}

type fakeStp struct {
	blocked map[stpKey]bool
	msti    map[uint16]uint8
}

func newFakeStp() *fakeStp {
	return &fakeStp{blocked: make(map[stpKey]bool), msti: make(map[uint16]uint8)}
}

func (s *fakeStp) PortForwarding(port uint32, msti uint8) bool {
	return !s.blocked[stpKey{port, msti}]
}

func (s *fakeStp) MstiOf(vid uint16) uint8 {
	return s.msti[vid]
}

type sentFrame struct {
	port  uint32
	frame []byte
}

type fakeTransport struct {
	unit byte
	sent []sentFrame
}

func (t *fakeTransport) PortMac(port uint32) net.HardwareAddr {
	return net.HardwareAddr{0x00, 0x11, 0x22, t.unit, 0x00, byte(port)}
}

func (t *fakeTransport) Transmit(port uint32, frame []byte) error {
	t.sent = append(t.sent, sentFrame{port: port, frame: append([]byte(nil), frame...)})
	return nil
}

func (t *fakeTransport) take() []sentFrame {
	out := t.sent
	t.sent = nil
	return out
}

// decoded returns the PDUs sent on port.
func (t *fakeTransport) decoded(tb testing.TB, port uint32) []*packet.PDU {
	var out []*packet.PDU
	for _, f := range t.sent {
		if f.port != port {
			continue
		}
		pdu, err := packet.Decode(f.frame)
		require.NoError(tb, err)
		out = append(out, pdu)
	}
	return out
}

type testBed struct {
	eng  *Engine
	clk  *clock.Mock
	vlan *fakeVlan
	stp  *fakeStp
	tx   *fakeTransport
}

func newTestBed(ports ...uint32) *testBed {
	return newTestBedMax(0, ports...)
}

func newTestBedMax(maxMads int, ports ...uint32) *testBed {
	tb := &testBed{
		clk:  clock.NewMock(),
		vlan: newFakeVlan(),
		stp:  newFakeStp(),
		tx:   &fakeTransport{},
	}
	tb.eng = NewEngine(EngineConfig{
		Ports:      ports,
		Vlan:       tb.vlan,
		Stp:        tb.stp,
		Transport:  tb.tx,
		Clock:      tb.clk,
		Rand:       rand.New(rand.NewSource(1)),
		Registerer: prometheus.NewRegistry(),
		MaxMads:    maxMads,
	})
	return tb
}

func mvrpConf(vids string, ports ...uint32) config.ApplConf {
	conf := config.DefaultApplConf()
	conf.ManagedVlans, _ = config.ParseVlanList(vids, config.VlanIdMin, config.VlanIdMax)
	for _, p := range ports {
		pc := conf.Port(p)
		pc.Enable = true
		conf.SetPort(p, pc)
	}
	return conf
}

// advance moves the mock clock forward by d, firing timers on the way.
func (tb *testBed) advance(d time.Duration) {
	end := tb.clk.Now().Add(d)
	for {
		next, ok := tb.eng.TimerTick()
		if !ok || tb.clk.Now().Add(next).After(end) {
			tb.clk.Set(end)
			tb.eng.TimerTick()
			return
		}
		tb.clk.Add(next)
	}
}

func (tb *testBed) entry(t *testing.T, port uint32, vid uint16) MadEntry {
	e, err := tb.eng.MadGet(config.ApplMVRP, port, vid)
	require.NoError(t, err)
	return e
}

func (tb *testBed) receive(t *testing.T, port uint32, leaveAll bool, decls ...packet.Declaration) {
	var vec packet.EventVector
	for _, d := range decls {
		vec.Set(d.Vid, d.Event)
	}
	peer := net.HardwareAddr{0x00, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	frame, err := packet.Encode(config.ApplMVRP, peer, &vec, leaveAll)
	require.NoError(t, err)
	require.NoError(t, tb.eng.ReceiveFrame(port, frame))
}

// events collects what the PDUs carried for vid, in order.
func events(pdus []*packet.PDU, vid uint16) []packet.Event {
	var out []packet.Event
	for _, pdu := range pdus {
		for _, d := range pdu.Declarations() {
			if d.Vid == vid {
				out = append(out, d.Event)
			}
		}
	}
	return out
}
