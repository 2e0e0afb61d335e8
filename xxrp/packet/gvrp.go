package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"l2/xxrp/config"
)

const (
	GARPProtocolID  = 0x0001
	GVRPAttrTypeVid = 1
	GARPSap         = 0x42
	GARPControl     = 0x03

	GVRPMaxPDUSize = 1500
	gvrpAttrLenVid = 4
	gvrpAttrLenLA  = 2
)

// GVRPEvent is the GARP attribute event.
type GVRPEvent uint8

const (
	GVRPLeaveAll GVRPEvent = iota
	GVRPJoinEmpty
	GVRPJoinIn
	GVRPLeaveEmpty
	GVRPLeaveIn
	GVRPEmpty
)

var GVRPEventStrMap = map[GVRPEvent]string{
	GVRPLeaveAll:   "LeaveAll",
	GVRPJoinEmpty:  "JoinEmpty",
	GVRPJoinIn:     "JoinIn",
	GVRPLeaveEmpty: "LeaveEmpty",
	GVRPLeaveIn:    "LeaveIn",
	GVRPEmpty:      "Empty",
}

func (e GVRPEvent) String() string {
	if s, ok := GVRPEventStrMap[e]; ok {
		return s
	}
	return fmt.Sprintf("GVRPEvent(%d)", uint8(e))
}

// toEvent maps a GARP event onto the attribute event the MAD consumes.
func (e GVRPEvent) toEvent() Event {
	switch e {
	case GVRPJoinIn:
		return EventJoinIn
	case GVRPJoinEmpty:
		return EventJoinMt
	case GVRPLeaveEmpty, GVRPLeaveIn:
		return EventLv
	case GVRPEmpty:
		return EventMt
	}
	return EventNone
}

// gvrpEvent returns false for events GARP has no encoding for.
func gvrpEvent(e Event) (GVRPEvent, bool) {
	switch e {
	case EventNew, EventJoinMt:
		return GVRPJoinEmpty, true
	case EventJoinIn:
		return GVRPJoinIn, true
	case EventMt:
		return GVRPEmpty, true
	case EventLv:
		return GVRPLeaveEmpty, true
	}
	return 0, false
}

var LayerTypeGVRP = gopacket.RegisterLayerType(2089, gopacket.LayerTypeMetadata{
	Name:    "GVRP",
	Decoder: gopacket.DecodeFunc(decodeGVRP),
})

type GVRPAttribute struct {
	Event GVRPEvent
	Value uint16
}

type GVRPMessage struct {
	AttributeType uint8
	Attributes    []GVRPAttribute
}

// GVRPDU is the GARP PDU carried after an 802.2 LLC header.
type GVRPDU struct {
	layers.BaseLayer
	ProtocolID uint16
	Messages   []GVRPMessage
}

func (g *GVRPDU) LayerType() gopacket.LayerType     { return LayerTypeGVRP }
func (g *GVRPDU) CanDecode() gopacket.LayerClass    { return LayerTypeGVRP }
func (g *GVRPDU) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func decodeGVRP(data []byte, p gopacket.PacketBuilder) error {
	g := &GVRPDU{}
	if err := g.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(g)
	return nil
}

func (g *GVRPDU) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 3 {
		return parseErr(0, "pdu too short (%d bytes)", len(data))
	}
	g.ProtocolID = binary.BigEndian.Uint16(data)
	if g.ProtocolID != GARPProtocolID {
		return parseErr(0, "bad protocol id 0x%04x", g.ProtocolID)
	}
	g.Messages = g.Messages[:0]
	off := 2
	for {
		if off >= len(data) {
			return parseErr(off, "pdu end mark missing")
		}
		if data[off] == 0 {
			off++
			break
		}
		msg := GVRPMessage{AttributeType: data[off]}
		if msg.AttributeType != GVRPAttrTypeVid {
			return parseErr(off, "unknown attribute type %d", msg.AttributeType)
		}
		off++
		for {
			if off >= len(data) {
				return parseErr(off, "attribute list not terminated")
			}
			alen := int(data[off])
			if alen == 0 {
				off++
				break
			}
			if alen < gvrpAttrLenLA || off+alen > len(data) {
				return parseErr(off, "attribute length %d truncated", alen)
			}
			ev := GVRPEvent(data[off+1])
			switch {
			case ev == GVRPLeaveAll:
				if alen != gvrpAttrLenLA {
					return parseErr(off, "leave-all length %d", alen)
				}
				msg.Attributes = append(msg.Attributes, GVRPAttribute{Event: ev})
			case ev <= GVRPEmpty:
				if alen != gvrpAttrLenVid {
					return parseErr(off, "attribute length %d", alen)
				}
				vid := binary.BigEndian.Uint16(data[off+2:])
				if !config.ValidVid(vid) {
					return parseErr(off+2, "vlan %d out of range", vid)
				}
				msg.Attributes = append(msg.Attributes, GVRPAttribute{Event: ev, Value: vid})
			default:
				return parseErr(off+1, "bad event %d", ev)
			}
			off += alen
		}
		g.Messages = append(g.Messages, msg)
	}
	g.BaseLayer = layers.BaseLayer{Contents: data[:off]}
	return nil
}

func (g *GVRPDU) size() int {
	n := 2 + 1
	for _, msg := range g.Messages {
		n += 1 + 1
		for _, a := range msg.Attributes {
			if a.Event == GVRPLeaveAll {
				n += gvrpAttrLenLA
			} else {
				n += gvrpAttrLenVid
			}
		}
	}
	return n
}

func (g *GVRPDU) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(g.size())
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(bytes, g.ProtocolID)
	off := 2
	for _, msg := range g.Messages {
		bytes[off] = msg.AttributeType
		off++
		for _, a := range msg.Attributes {
			if a.Event == GVRPLeaveAll {
				bytes[off], bytes[off+1] = gvrpAttrLenLA, byte(a.Event)
				off += gvrpAttrLenLA
				continue
			}
			bytes[off], bytes[off+1] = gvrpAttrLenVid, byte(a.Event)
			binary.BigEndian.PutUint16(bytes[off+2:], a.Value)
			off += gvrpAttrLenVid
		}
		bytes[off] = 0
		off++
	}
	bytes[off] = 0
	return nil
}

// buildGVRP is the GARP counterpart of buildMVRP. GARP carries one attribute
// per value. In has no GARP encoding and is consumed without being sent.
func buildGVRP(vec *EventVector, leaveAll bool, budget int) *GVRPDU {
	msg := GVRPMessage{AttributeType: GVRPAttrTypeVid}
	// LLC, protocol id, attribute type, two end marks
	used := 3 + 2 + 1 + 1 + 1
	if leaveAll {
		msg.Attributes = append(msg.Attributes, GVRPAttribute{Event: GVRPLeaveAll})
		used += gvrpAttrLenLA
	}
	for vid := config.VlanIdMin; vid <= config.VlanIdMax; vid++ {
		e := vec[vid]
		if e == EventNone {
			continue
		}
		ge, ok := gvrpEvent(e)
		if !ok {
			vec[vid] = EventNone
			continue
		}
		if used+gvrpAttrLenVid > budget {
			break
		}
		msg.Attributes = append(msg.Attributes, GVRPAttribute{Event: ge, Value: uint16(vid)})
		vec[vid] = EventNone
		used += gvrpAttrLenVid
	}
	if len(msg.Attributes) == 0 {
		return nil
	}
	return &GVRPDU{ProtocolID: GARPProtocolID, Messages: []GVRPMessage{msg}}
}
