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

package packet

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"l2/xxrp/config"
)

const (
	EthernetTypeMVRP layers.EthernetType = 0x88F5

	MVRPProtocolVersion = 0
	MVRPAttrTypeVid     = 1
	MVRPAttrLenVid      = 2

	// sizes below include the 14 byte ethernet header where noted
	MVRPMinPDUSize     = 25
	MVRPMinMsgSize     = 6
	MVRPVecAttrHdrSize = 4
	MVRPMaxPDUSize     = 1500

	mvrpLeaveAllBit  = 0x2000
	mvrpNumValueMask = 0x1FFF
	mvrpMaxPacked    = numWireEvents*numWireEvents*numWireEvents - 1
)

var LayerTypeMVRP = gopacket.RegisterLayerType(2088, gopacket.LayerTypeMetadata{
	Name:    "MVRP",
	Decoder: gopacket.DecodeFunc(decodeMVRP),
})

func init() {
	layers.EthernetTypeMetadata[EthernetTypeMVRP] = layers.EnumMetadata{
		DecodeWith: LayerTypeMVRP,
		Name:       "MVRP",
		LayerType:  LayerTypeMVRP,
	}
}

// VectorAttribute is a run of events on consecutive attribute values
// starting at FirstValue. A LeaveAll applies to the whole attribute type and
// is handled before the events of the same vector attribute.
type VectorAttribute struct {
	LeaveAll   bool
	FirstValue uint16
	Events     []Event
}

type MVRPMessage struct {
	AttributeType    uint8
	AttributeLength  uint8
	VectorAttributes []VectorAttribute
}

// MVRPDU is the MRP data unit of the VLAN registration application.
type MVRPDU struct {
	layers.BaseLayer
	ProtocolVersion uint8
	Messages        []MVRPMessage
}

func (m *MVRPDU) LayerType() gopacket.LayerType     { return LayerTypeMVRP }
func (m *MVRPDU) CanDecode() gopacket.LayerClass    { return LayerTypeMVRP }
func (m *MVRPDU) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func decodeMVRP(data []byte, p gopacket.PacketBuilder) error {
	m := &MVRPDU{}
	if err := m.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(m)
	return nil
}

func endMark(data []byte, off int) bool {
	return off+2 <= len(data) && data[off] == 0 && data[off+1] == 0
}

// DecodeFromBytes validates the whole PDU. Every message and the PDU itself
// must close with an end mark; trailing bytes after the PDU end mark are
// ethernet padding.
func (m *MVRPDU) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < MVRPMinPDUSize-14 {
		return parseErr(0, "pdu too short (%d bytes)", len(data))
	}
	m.ProtocolVersion = data[0]
	if m.ProtocolVersion != MVRPProtocolVersion {
		return parseErr(0, "unsupported protocol version %d", m.ProtocolVersion)
	}
	m.Messages = m.Messages[:0]
	off := 1
	for {
		if off >= len(data) {
			return parseErr(off, "pdu end mark missing")
		}
		if endMark(data, off) {
			off += 2
			break
		}
		if len(data)-off < MVRPMinMsgSize {
			return parseErr(off, "message truncated")
		}
		msg := MVRPMessage{AttributeType: data[off], AttributeLength: data[off+1]}
		if msg.AttributeType != MVRPAttrTypeVid {
			return parseErr(off, "unknown attribute type %d", msg.AttributeType)
		}
		if msg.AttributeLength != MVRPAttrLenVid {
			return parseErr(off+1, "bad attribute length %d", msg.AttributeLength)
		}
		off += 2
		for {
			if off >= len(data) {
				return parseErr(off, "message end mark missing")
			}
			if endMark(data, off) {
				off += 2
				break
			}
			va, n, err := decodeVectorAttribute(data, off)
			if err != nil {
				return err
			}
			msg.VectorAttributes = append(msg.VectorAttributes, va)
			off += n
		}
		m.Messages = append(m.Messages, msg)
	}
	m.BaseLayer = layers.BaseLayer{Contents: data[:off]}
	return nil
}

func decodeVectorAttribute(data []byte, off int) (VectorAttribute, int, error) {
	var va VectorAttribute
	if len(data)-off < MVRPVecAttrHdrSize {
		return va, 0, parseErr(off, "vector attribute header truncated")
	}
	hdr := binary.BigEndian.Uint16(data[off:])
	va.LeaveAll = hdr&mvrpLeaveAllBit != 0
	num := int(hdr & mvrpNumValueMask)
	va.FirstValue = binary.BigEndian.Uint16(data[off+2:])
	vecs := (num + 2) / 3
	if len(data)-off < MVRPVecAttrHdrSize+vecs {
		return va, 0, parseErr(off, "vector of %d values truncated", num)
	}
	if num > 0 {
		if !config.ValidVid(va.FirstValue) || int(va.FirstValue)+num-1 > config.VlanIdMax {
			return va, 0, parseErr(off+2, "vlan range %d+%d out of range", va.FirstValue, num)
		}
	}
	va.Events = make([]Event, 0, num)
	for i := 0; i < vecs; i++ {
		b := data[off+MVRPVecAttrHdrSize+i]
		if b > mvrpMaxPacked {
			return va, 0, parseErr(off+MVRPVecAttrHdrSize+i, "bad packed events 0x%02x", b)
		}
		packed := [3]uint8{b / 36, (b / 6) % 6, b % 6}
		for j := 0; j < 3 && len(va.Events) < num; j++ {
			va.Events = append(va.Events, eventFromWire(packed[j]))
		}
	}
	return va, MVRPVecAttrHdrSize + vecs, nil
}

func (m *MVRPDU) size() int {
	n := 1 + 2
	for _, msg := range m.Messages {
		n += 2 + 2
		for _, va := range msg.VectorAttributes {
			n += MVRPVecAttrHdrSize + (len(va.Events)+2)/3
		}
	}
	return n
}

func (m *MVRPDU) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(m.size())
	if err != nil {
		return err
	}
	bytes[0] = m.ProtocolVersion
	off := 1
	for _, msg := range m.Messages {
		bytes[off] = msg.AttributeType
		bytes[off+1] = msg.AttributeLength
		off += 2
		for _, va := range msg.VectorAttributes {
			hdr := uint16(len(va.Events)) & mvrpNumValueMask
			if va.LeaveAll {
				hdr |= mvrpLeaveAllBit
			}
			binary.BigEndian.PutUint16(bytes[off:], hdr)
			binary.BigEndian.PutUint16(bytes[off+2:], va.FirstValue)
			off += MVRPVecAttrHdrSize
			for i := 0; i < len(va.Events); i += 3 {
				var packed [3]uint8
				for j := 0; j < 3 && i+j < len(va.Events); j++ {
					packed[j] = va.Events[i+j].wire()
				}
				bytes[off] = (packed[0]*6+packed[1])*6 + packed[2]
				off++
			}
		}
		bytes[off], bytes[off+1] = 0, 0
		off += 2
	}
	bytes[off], bytes[off+1] = 0, 0
	return nil
}

// buildMVRP takes pending events from vec in ascending attribute order and
// packs as many as fit in one PDU. Every encoded event is removed from vec.
// Consecutive attributes form one vector attribute; LeaveAll goes on the
// first one only.
func buildMVRP(vec *EventVector, leaveAll bool, budget int) *MVRPDU {
	msg := MVRPMessage{AttributeType: MVRPAttrTypeVid, AttributeLength: MVRPAttrLenVid}
	// version, message header, two end marks
	used := 1 + 2 + 2 + 2
	vid := config.VlanIdMin
	for vid <= config.VlanIdMax {
		if vec[vid] == EventNone {
			vid++
			continue
		}
		avail := (budget - used - MVRPVecAttrHdrSize) * 3
		if avail <= 0 {
			break
		}
		va := VectorAttribute{FirstValue: uint16(vid)}
		for vid <= config.VlanIdMax && vec[vid] != EventNone && len(va.Events) < avail && len(va.Events) < mvrpNumValueMask {
			va.Events = append(va.Events, vec[vid])
			vec[vid] = EventNone
			vid++
		}
		used += MVRPVecAttrHdrSize + (len(va.Events)+2)/3
		msg.VectorAttributes = append(msg.VectorAttributes, va)
	}
	if leaveAll {
		if len(msg.VectorAttributes) == 0 {
			msg.VectorAttributes = append(msg.VectorAttributes, VectorAttribute{})
		}
		msg.VectorAttributes[0].LeaveAll = true
	}
	if len(msg.VectorAttributes) == 0 {
		return nil
	}
	return &MVRPDU{ProtocolVersion: MVRPProtocolVersion, Messages: []MVRPMessage{msg}}
}
