package stack

import (
	"errors"
	"math/rand"
	"net"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l2/xxrp/config"
	"l2/xxrp/packet"
	"l2/xxrp/protocol"
)

type sentConfig struct {
	unit    uint32
	payload []byte
}

type forwarded struct {
	port  uint32
	frame []byte
}

type fakeStack struct {
	local     uint32
	units     []uint32
	configs   []sentConfig
	forwarded []forwarded
	down      map[uint32]bool
	// hand out the backing slice instead of a copy
	shared bool
}

func (s *fakeStack) LocalUnit() uint32 { return s.local }

func (s *fakeStack) Units() []uint32 {
	if s.shared {
		return s.units
	}
	return append([]uint32(nil), s.units...)
}

func (s *fakeStack) SendConfig(unit uint32, payload []byte) error {
	if s.down[unit] {
		return errors.New("unit unreachable")
	}
	s.configs = append(s.configs, sentConfig{unit, payload})
	return nil
}

func (s *fakeStack) ForwardToPrimary(port uint32, frame []byte) error {
	s.forwarded = append(s.forwarded, forwarded{port, frame})
	return nil
}

type nopVlan struct{}

func (nopVlan) AddMembership(port uint32, vid uint16) error    { return nil }
func (nopVlan) RemoveMembership(port uint32, vid uint16) error { return nil }
func (nopVlan) RegistrarAdmin(port uint32, vid uint16) config.RegistrarAdmin {
	return config.AdminNormal
}

type allForwarding struct{}

func (allForwarding) PortForwarding(port uint32, msti uint8) bool { return true }
func (allForwarding) MstiOf(vid uint16) uint8                     { return 0 }

type nopTransport struct{}

func (nopTransport) PortMac(port uint32) net.HardwareAddr {
	return net.HardwareAddr{0, 1, 2, 3, 4, byte(port)}
}
func (nopTransport) Transmit(port uint32, frame []byte) error { return nil }

func newEngine(ports ...uint32) *protocol.Engine {
	return protocol.NewEngine(protocol.EngineConfig{
		Ports:      ports,
		Vlan:       nopVlan{},
		Stp:        allForwarding{},
		Transport:  nopTransport{},
		Clock:      clock.NewMock(),
		Rand:       rand.New(rand.NewSource(1)),
		Registerer: prometheus.NewRegistry(),
	})
}

// ports 1-2 are on unit 1, 5-6 on unit 2
var stackPorts = []*config.PortInfo{
	{Port: 1, Unit: 1}, {Port: 2, Unit: 1},
	{Port: 5, Unit: 2}, {Port: 6, Unit: 2},
}

type queue struct {
	frames []forwarded
}

func (q *queue) enqueue(port uint32, frame []byte) bool {
	q.frames = append(q.frames, forwarded{port, frame})
	return true
}

func mvrpFrame(t *testing.T) []byte {
	var vec packet.EventVector
	vec.Set(10, packet.EventJoinIn)
	frame, err := packet.Encode(config.ApplMVRP, net.HardwareAddr{0, 0xaa, 0, 0, 0, 1}, &vec, false)
	require.NoError(t, err)
	return frame
}

func mvrpDesired(ports ...uint32) config.ApplConf {
	conf := config.DefaultApplConf()
	conf.GlobalEnable = true
	conf.ManagedVlans.Set(10)
	for _, p := range ports {
		pc := conf.Port(p)
		pc.Enable = true
		conf.SetPort(p, pc)
	}
	return conf
}

// deliver hands the configs the primary sent to unit over to c.
func deliver(t *testing.T, from *fakeStack, unit uint32, c *Coordinator) {
	for _, m := range from.configs {
		if m.unit == unit {
			require.NoError(t, c.ApplyMirror(m.payload))
		}
	}
	from.configs = nil
}

func TestSecondaryForwardsOnlyEnabledPorts(t *testing.T) {
	pStack := &fakeStack{local: 1, units: []uint32{1, 2}}
	sStack := &fakeStack{local: 2, units: []uint32{1, 2}}
	pq := &queue{}
	primary := NewCoordinator(pStack, newEngine(1, 2, 5, 6), pq.enqueue)
	secondary := NewCoordinator(sStack, nil, nil)
	primary.SetPorts(stackPorts)
	secondary.SetPorts(stackPorts)

	primary.BecomePrimary()
	require.NoError(t, primary.SetDesired(config.ApplMVRP, mvrpDesired(1, 6)))
	deliver(t, pStack, 2, secondary)

	frame := mvrpFrame(t)
	assert.False(t, secondary.AdmitFrame(5, frame))
	assert.Empty(t, sStack.forwarded)
	assert.True(t, secondary.AdmitFrame(6, frame))
	require.Len(t, sStack.forwarded, 1)
	assert.EqualValues(t, 6, sStack.forwarded[0].port)

	require.NoError(t, primary.SetDesired(config.ApplMVRP, mvrpDesired(1, 5, 6)))
	deliver(t, pStack, 2, secondary)
	assert.True(t, secondary.AdmitFrame(5, frame))
	assert.Len(t, sStack.forwarded, 2)

	assert.True(t, primary.ForwardedFrame(5, frame))
	assert.False(t, secondary.ForwardedFrame(5, frame))
	assert.Len(t, pq.frames, 1)

	// the primary mirrors its own ports without messaging itself
	assert.True(t, primary.AdmitFrame(1, frame))
	assert.False(t, primary.AdmitFrame(2, frame))
	assert.Len(t, pq.frames, 2)
	for _, m := range pStack.configs {
		assert.NotEqual(t, uint32(1), m.unit)
	}
}

func TestAdmissionRejects(t *testing.T) {
	sStack := &fakeStack{local: 2, units: []uint32{1, 2}}
	c := NewCoordinator(sStack, nil, nil)
	c.SetPorts(stackPorts)
	payload, err := (&Message{
		Type: MsgLocalConfSet, Session: uuid.New(), Unit: 2, Appl: config.ApplMVRP,
		GlobalEnable: true, PortEnable: map[uint32]bool{5: true},
	}).Marshal()
	require.NoError(t, err)
	require.NoError(t, c.ApplyMirror(payload))

	frame := mvrpFrame(t)
	tagged := append([]byte(nil), frame[:12]...)
	tagged = append(tagged, 0x81, 0x00, 0x00, 0x0a)
	tagged = append(tagged, frame[12:]...)
	assert.False(t, c.AdmitFrame(5, tagged))
	assert.False(t, c.AdmitFrame(5, []byte{1, 2, 3}))
	assert.True(t, c.AdmitFrame(5, frame))

	var gvrp packet.EventVector
	gvrp.Set(10, packet.EventJoinIn)
	gframe, err := packet.Encode(config.ApplGVRP, net.HardwareAddr{0, 0xaa, 0, 0, 0, 1}, &gvrp, false)
	require.NoError(t, err)
	assert.False(t, c.AdmitFrame(5, gframe), "GVRP is not enabled in the mirror")
}

func TestNewSessionResetsMirror(t *testing.T) {
	sStack := &fakeStack{local: 2, units: []uint32{1, 2}}
	c := NewCoordinator(sStack, nil, nil)
	send := func(session uuid.UUID, ports map[uint32]bool) {
		payload, err := (&Message{
			Type: MsgLocalConfSet, Session: session, Unit: 2, Appl: config.ApplMVRP,
			GlobalEnable: true, PortEnable: ports,
		}).Marshal()
		require.NoError(t, err)
		require.NoError(t, c.ApplyMirror(payload))
	}
	first := uuid.New()
	send(first, map[uint32]bool{5: true})
	send(first, map[uint32]bool{6: true})
	m := c.Mirror(config.ApplMVRP)
	assert.True(t, m.PortEnabled(5))
	assert.True(t, m.PortEnabled(6))

	send(uuid.New(), map[uint32]bool{6: true})
	m = c.Mirror(config.ApplMVRP)
	assert.False(t, m.PortEnabled(5))
	assert.True(t, m.PortEnabled(6))
}

func TestApplyMirrorRejects(t *testing.T) {
	sStack := &fakeStack{local: 2, units: []uint32{1, 2}}
	c := NewCoordinator(sStack, nil, nil)

	assert.Error(t, c.ApplyMirror([]byte("{")))
	assert.Error(t, c.ApplyMirror([]byte(`{"type":"BOGUS"}`)))

	other, err := (&Message{Type: MsgLocalConfSet, Unit: 3, Appl: config.ApplMVRP}).Marshal()
	require.NoError(t, err)
	assert.Error(t, c.ApplyMirror(other))

	bad, err := (&Message{Type: MsgLocalConfSet, Unit: 2, Appl: config.ApplMax}).Marshal()
	require.NoError(t, err)
	assert.Error(t, c.ApplyMirror(bad))
}

func TestReconcile(t *testing.T) {
	pStack := &fakeStack{local: 1, units: []uint32{1, 2}}
	eng := newEngine(1, 2, 5, 6)
	c := NewCoordinator(pStack, eng, (&queue{}).enqueue)
	c.SetPorts(stackPorts)

	// state left behind by an earlier term: GVRP running on port 2
	gvrp := mvrpDesired(2)
	require.NoError(t, eng.Enable(config.ApplGVRP, gvrp))

	desired := mvrpDesired(1, 5)
	desired.Timers.Join = 10
	require.NoError(t, c.SetDesired(config.ApplMVRP, desired))
	assert.Empty(t, pStack.configs, "nothing is sent before the election")

	c.BecomePrimary()
	require.NoError(t, c.Reconcile())
	assert.False(t, eng.GlobalEnabled(config.ApplGVRP))
	assert.True(t, eng.GlobalEnabled(config.ApplMVRP))
	for port, want := range map[uint32]bool{1: true, 2: false, 5: true, 6: false} {
		en, err := eng.PortEnabled(config.ApplMVRP, port)
		require.NoError(t, err)
		assert.Equal(t, want, en, "port %d", port)
	}

	// drift introduced behind the coordinator's back is corrected
	require.NoError(t, eng.SetPortEnabled(config.ApplMVRP, 6, true))
	require.NoError(t, eng.SetPeriodic(config.ApplMVRP, 1, true))
	require.NoError(t, c.Reconcile())
	en, err := eng.PortEnabled(config.ApplMVRP, 6)
	require.NoError(t, err)
	assert.False(t, en)
	per, err := eng.Periodic(config.ApplMVRP, 1)
	require.NoError(t, err)
	assert.False(t, per)

	// unit 2 got one message per application per distribution
	n := 0
	for _, m := range pStack.configs {
		if m.unit == 2 {
			n++
		}
	}
	assert.Equal(t, 2*int(config.ApplMax), n)
}

func TestDistributeSurvivesUnreachableUnit(t *testing.T) {
	pStack := &fakeStack{local: 1, units: []uint32{3, 1, 2}, down: map[uint32]bool{2: true}}
	c := NewCoordinator(pStack, newEngine(1), (&queue{}).enqueue)
	c.SetPorts(stackPorts)
	c.BecomePrimary()

	err := c.DistributeConfig(config.ApplMVRP)
	assert.Error(t, err)
	require.Len(t, pStack.configs, 1)
	assert.EqualValues(t, 3, pStack.configs[0].unit)

	var cerr *config.ConfigError
	assert.ErrorAs(t, c.SyncPort(1, 5), &cerr, "port 5 lives on unit 2")
	assert.Error(t, c.SyncPort(2, 5))
	assert.NoError(t, c.SyncPort(1, 1))
	assert.NoError(t, c.SyncSwitch(3))
}

func TestDistributeLeavesUnitListAlone(t *testing.T) {
	pStack := &fakeStack{local: 1, units: []uint32{3, 1, 2}, shared: true}
	c := NewCoordinator(pStack, newEngine(1), (&queue{}).enqueue)
	c.SetPorts(stackPorts)
	c.BecomePrimary()

	require.NoError(t, c.DistributeConfig(config.ApplMVRP))
	assert.Equal(t, []uint32{3, 1, 2}, pStack.units)
	require.Len(t, pStack.configs, 2)
	assert.EqualValues(t, 2, pStack.configs[0].unit)
	assert.EqualValues(t, 3, pStack.configs[1].unit)
}
