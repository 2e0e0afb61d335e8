package packet

import (
	"errors"
	"net"
	"sort"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l2/xxrp/config"
)

var testSrc = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

func sortDecl(d []Declaration) []Declaration {
	sort.Slice(d, func(i, j int) bool { return d[i].Vid < d[j].Vid })
	return d
}

func TestMVRPEncodeDecode(t *testing.T) {
	var vec EventVector
	vec.Set(10, EventNew)
	vec.Set(11, EventJoinIn)
	vec.Set(12, EventIn)
	vec.Set(13, EventJoinMt)
	vec.Set(20, EventMt)
	vec.Set(4094, EventLv)
	want := vec.Declarations()

	frame, err := Encode(config.ApplMVRP, testSrc, &vec, true)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 0, vec.Pending(), "all events must be consumed")

	appl, ok := Classify(frame)
	require.True(t, ok)
	assert.Equal(t, config.ApplMVRP, appl)

	pdu, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, testSrc, pdu.SrcMAC)
	assert.Equal(t, want, sortDecl(pdu.Declarations()))
	require.Len(t, pdu.Attributes, 3)
	assert.True(t, pdu.Attributes[0].LeaveAll)
	assert.False(t, pdu.Attributes[1].LeaveAll)
	assert.False(t, pdu.Attributes[2].LeaveAll)
	assert.Equal(t, uint16(10), pdu.Attributes[0].FirstValue)
	assert.Len(t, pdu.Attributes[0].Events, 4)
}

func TestMVRPPackedVector(t *testing.T) {
	var vec EventVector
	vec.Set(10, EventNew)
	vec.Set(11, EventJoinIn)
	vec.Set(12, EventIn)
	vec.Set(13, EventJoinMt)
	frame, err := Encode(config.ApplMVRP, testSrc, &vec, false)
	require.NoError(t, err)

	body := frame[14:]
	assert.Equal(t, byte(MVRPProtocolVersion), body[0])
	assert.Equal(t, byte(MVRPAttrTypeVid), body[1])
	assert.Equal(t, byte(MVRPAttrLenVid), body[2])
	// no leave-all, four values
	assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x0a}, body[3:7])
	// ((New*6)+JoinIn)*6+In and ((JoinMt*6)+pad)*6+pad
	assert.Equal(t, []byte{8, 108}, body[7:9])
	assert.Equal(t, []byte{0, 0, 0, 0}, body[9:13])
}

func TestMVRPLeaveAllOnly(t *testing.T) {
	var vec EventVector
	frame, err := Encode(config.ApplMVRP, testSrc, &vec, true)
	require.NoError(t, err)
	require.NotNil(t, frame)

	pdu, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, pdu.LeaveAll())
	assert.Empty(t, pdu.Declarations())
}

func TestEncodeNothingPending(t *testing.T) {
	var vec EventVector
	for _, appl := range []config.Application{config.ApplMVRP, config.ApplGVRP} {
		frame, err := Encode(appl, testSrc, &vec, false)
		assert.NoError(t, err)
		assert.Nil(t, frame)
	}
}

func TestMVRPSplitAcrossFrames(t *testing.T) {
	var vec EventVector
	for vid := uint16(1); vid <= config.VlanIdMax; vid += 2 {
		vec.Set(vid, EventJoinIn)
	}
	want := vec.Declarations()

	var got []Declaration
	frames := 0
	for vec.Pending() > 0 {
		frame, err := Encode(config.ApplMVRP, testSrc, &vec, false)
		require.NoError(t, err)
		require.NotNil(t, frame)
		assert.LessOrEqual(t, len(frame), 14+MVRPMaxPDUSize)
		pdu, err := Decode(frame)
		require.NoError(t, err)
		got = append(got, pdu.Declarations()...)
		frames++
		require.Less(t, frames, 10)
	}
	assert.Greater(t, frames, 1)
	assert.Equal(t, want, sortDecl(got))
}

func TestMVRPGopacketDissection(t *testing.T) {
	var vec EventVector
	vec.Set(100, EventJoinIn)
	frame, err := Encode(config.ApplMVRP, testSrc, &vec, false)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	l := pkt.Layer(LayerTypeMVRP)
	require.NotNil(t, l)
	m := l.(*MVRPDU)
	require.Len(t, m.Messages, 1)
	assert.Equal(t, uint16(100), m.Messages[0].VectorAttributes[0].FirstValue)
}

func TestGVRPEncodeDecode(t *testing.T) {
	var vec EventVector
	vec.Set(5, EventJoinIn)
	vec.Set(6, EventNew)
	vec.Set(7, EventIn)
	vec.Set(8, EventMt)
	vec.Set(9, EventLv)
	vec.Set(10, EventJoinMt)

	frame, err := Encode(config.ApplGVRP, testSrc, &vec, true)
	require.NoError(t, err)
	assert.Equal(t, 0, vec.Pending())

	appl, ok := Classify(frame)
	require.True(t, ok)
	assert.Equal(t, config.ApplGVRP, appl)

	pdu, err := Decode(frame)
	require.NoError(t, err)
	assert.True(t, pdu.LeaveAll())
	assert.Equal(t, []Declaration{
		{Vid: 5, Event: EventJoinIn},
		{Vid: 6, Event: EventJoinMt},
		{Vid: 8, Event: EventMt},
		{Vid: 9, Event: EventLv},
		{Vid: 10, Event: EventJoinMt},
	}, sortDecl(pdu.Declarations()))
}

func TestGVRPSplitAcrossFrames(t *testing.T) {
	var vec EventVector
	for vid := uint16(1); vid <= 1000; vid++ {
		vec.Set(vid, EventJoinIn)
	}
	total := 0
	for i := 0; vec.Pending() > 0; i++ {
		require.Less(t, i, 10)
		frame, err := Encode(config.ApplGVRP, testSrc, &vec, false)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(frame), 14+GVRPMaxPDUSize)
		pdu, err := Decode(frame)
		require.NoError(t, err)
		total += len(pdu.Declarations())
	}
	assert.Equal(t, 1000, total)
}

func mvrpFrame(body ...byte) []byte {
	f := append([]byte{}, Variants[config.ApplMVRP].DstMAC...)
	f = append(f, testSrc...)
	f = append(f, 0x88, 0xf5)
	f = append(f, body...)
	for len(f) < 60 {
		f = append(f, 0)
	}
	return f
}

func TestMVRPDecodeErrors(t *testing.T) {
	cases := map[string][]byte{
		"bad version":        mvrpFrame(1, 1, 2, 0x00, 0x01, 0x00, 0x0a, 0x00),
		"bad attribute type": mvrpFrame(0, 2, 2, 0x00, 0x01, 0x00, 0x0a, 0x00),
		"bad attribute len":  mvrpFrame(0, 1, 4, 0x00, 0x01, 0x00, 0x0a, 0x00),
		"vid zero":           mvrpFrame(0, 1, 2, 0x00, 0x01, 0x00, 0x00, 0x00),
		"vid beyond range":   mvrpFrame(0, 1, 2, 0x00, 0x03, 0x0f, 0xfe, 0x00),
		"bad packed byte":    mvrpFrame(0, 1, 2, 0x00, 0x01, 0x00, 0x0a, 216),
	}
	for name, frame := range cases {
		_, err := Decode(frame)
		var perr *ParseError
		assert.True(t, errors.As(err, &perr), "%s: %v", name, err)
	}

	truncated := mvrpFrame(0, 1, 2, 0x1f, 0xff, 0x00, 0x01)
	_, err := Decode(truncated)
	var perr *ParseError
	assert.True(t, errors.As(err, &perr), "truncated vector")

	_, err = Decode(mvrpFrame()[:20])
	assert.True(t, errors.As(err, &perr), "short frame")
}

func TestMVRPRequiresEndMarks(t *testing.T) {
	unpadded := func(body ...byte) []byte {
		f := append([]byte{}, Variants[config.ApplMVRP].DstMAC...)
		f = append(f, testSrc...)
		f = append(f, 0x88, 0xf5)
		return append(f, body...)
	}
	attrs := []byte{
		0x00, 0x01, 0x00, 10, 36,
		0x00, 0x01, 0x00, 20, 36,
		0x00, 0x01, 0x00, 30, 36,
	}
	hdr := []byte{MVRPProtocolVersion, MVRPAttrTypeVid, MVRPAttrLenVid}

	var perr *ParseError
	noMarks := unpadded(append(append([]byte{}, hdr...), attrs...)...)
	_, err := Decode(noMarks)
	assert.True(t, errors.As(err, &perr), "no end marks: %v", err)

	noPduMark := unpadded(append(append(append([]byte{}, hdr...), attrs...), 0, 0)...)
	_, err = Decode(noPduMark)
	assert.True(t, errors.As(err, &perr), "no pdu end mark: %v", err)

	complete := unpadded(append(append(append([]byte{}, hdr...), attrs...), 0, 0, 0, 0)...)
	pdu, err := Decode(complete)
	require.NoError(t, err)
	assert.Len(t, pdu.Declarations(), 3)
}

func TestGVRPDecodeErrors(t *testing.T) {
	gvrp := func(body ...byte) []byte {
		f := append([]byte{}, Variants[config.ApplGVRP].DstMAC...)
		f = append(f, testSrc...)
		f = append(f, 0, byte(3+len(body)), GARPSap, GARPSap, GARPControl)
		f = append(f, body...)
		for len(f) < 60 {
			f = append(f, 0)
		}
		return f
	}
	cases := map[string][]byte{
		"bad protocol id": gvrp(0x00, 0x02, 1, 4, 2, 0, 10, 0, 0),
		"bad event":       gvrp(0x00, 0x01, 1, 4, 9, 0, 10, 0, 0),
		"bad vid":         gvrp(0x00, 0x01, 1, 4, 2, 0x0f, 0xff, 0, 0),
		"bad la length":   gvrp(0x00, 0x01, 1, 4, 0, 0, 10, 0, 0),
		"unterminated":    gvrp(0x00, 0x01, 1, 4, 2, 0, 10),
		"no pdu end mark": gvrp(0x00, 0x01, 1, 4, 2, 0, 10, 0),
	}
	for name, frame := range cases {
		_, err := Decode(frame)
		var perr *ParseError
		assert.True(t, errors.As(err, &perr), "%s: %v", name, err)
	}

	pdu, err := Decode(gvrp(0x00, 0x01, 1, 4, 2, 0, 10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []Declaration{{Vid: 10, Event: EventJoinIn}}, pdu.Declarations())
}

func TestClassify(t *testing.T) {
	_, ok := Classify([]byte{1, 2, 3})
	assert.False(t, ok)

	f := mvrpFrame(0)
	f[12], f[13] = 0x81, 0x00
	assert.True(t, Tagged(f))
	_, ok = Classify(f)
	assert.False(t, ok)

	f = mvrpFrame(0)
	f[0] = 0x02
	_, ok = Classify(f)
	assert.False(t, ok)
}

func TestEventVectorMerge(t *testing.T) {
	var carry, fresh EventVector
	carry.Set(1, EventJoinIn)
	carry.Set(2, EventJoinIn)
	fresh.Set(2, EventLv)
	fresh.Set(3, EventNew)
	carry.Merge(&fresh)
	assert.Equal(t, []Declaration{
		{Vid: 1, Event: EventJoinIn},
		{Vid: 2, Event: EventLv},
		{Vid: 3, Event: EventNew},
	}, carry.Declarations())
}
