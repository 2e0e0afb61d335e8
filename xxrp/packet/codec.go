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
	"bytes"
	"encoding/binary"
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"l2/xxrp/config"
)

const (
	XXRP_PROTO_DST_MAC = "01:80:c2:00:00:21"
	XXRP_BPF_FILTER    = "ether dst 01:80:c2:00:00:21"
)

// Variant describes how one application is carried on the wire.
type Variant struct {
	Appl          config.Application
	DstMAC        net.HardwareAddr
	EtherType     layers.EthernetType
	AttributeType uint8
	MaxPDUSize    int
}

var Variants [config.ApplMax]Variant

func init() {
	dst, _ := net.ParseMAC(XXRP_PROTO_DST_MAC)
	Variants[config.ApplMVRP] = Variant{
		Appl:          config.ApplMVRP,
		DstMAC:        dst,
		EtherType:     EthernetTypeMVRP,
		AttributeType: MVRPAttrTypeVid,
		MaxPDUSize:    MVRPMaxPDUSize,
	}
	Variants[config.ApplGVRP] = Variant{
		Appl:          config.ApplGVRP,
		DstMAC:        dst,
		EtherType:     layers.EthernetTypeLLC,
		AttributeType: GVRPAttrTypeVid,
		MaxPDUSize:    GVRPMaxPDUSize,
	}
}

// PDU is a decoded frame in the form the MAD consumes.
type PDU struct {
	Appl       config.Application
	SrcMAC     net.HardwareAddr
	Attributes []VectorAttribute
}

// Declarations flattens the PDU, dropping LeaveAll markers.
func (p *PDU) Declarations() []Declaration {
	var out []Declaration
	for _, va := range p.Attributes {
		for i, e := range va.Events {
			out = append(out, Declaration{Vid: va.FirstValue + uint16(i), Event: e})
		}
	}
	return out
}

func (p *PDU) LeaveAll() bool {
	for _, va := range p.Attributes {
		if va.LeaveAll {
			return true
		}
	}
	return false
}

// Classify tells which application a frame belongs to from its destination
// address and type/length field. Tagged frames are not classified.
func Classify(data []byte) (config.Application, bool) {
	if len(data) < 17 {
		return config.ApplMax, false
	}
	if !bytes.Equal(data[:6], Variants[config.ApplMVRP].DstMAC) {
		return config.ApplMax, false
	}
	et := binary.BigEndian.Uint16(data[12:])
	switch {
	case layers.EthernetType(et) == EthernetTypeMVRP:
		return config.ApplMVRP, true
	case et < 0x0600 && data[14] == GARPSap && data[15] == GARPSap && data[16] == GARPControl:
		return config.ApplGVRP, true
	}
	return config.ApplMax, false
}

// Tagged reports an 802.1Q or 802.1ad tag after the source address.
func Tagged(data []byte) bool {
	if len(data) < 14 {
		return false
	}
	et := layers.EthernetType(binary.BigEndian.Uint16(data[12:]))
	return et == layers.EthernetTypeDot1Q || et == layers.EthernetTypeQinQ
}

// Encode builds at most one frame of the application from the pending
// events in vec. Encoded events are removed from vec; what remains did not
// fit and is left for the next transmit opportunity. A nil frame means there
// was nothing to send.
func Encode(appl config.Application, src net.HardwareAddr, vec *EventVector, leaveAll bool) ([]byte, error) {
	if appl >= config.ApplMax {
		return nil, errors.New("unknown application")
	}
	v := &Variants[appl]
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       v.DstMAC,
		EthernetType: v.EtherType,
	}
	var pdu []gopacket.SerializableLayer
	switch appl {
	case config.ApplMVRP:
		m := buildMVRP(vec, leaveAll, v.MaxPDUSize)
		if m == nil {
			return nil, nil
		}
		pdu = []gopacket.SerializableLayer{eth, m}
	case config.ApplGVRP:
		g := buildGVRP(vec, leaveAll, v.MaxPDUSize)
		if g == nil {
			return nil, nil
		}
		llc := &layers.LLC{DSAP: GARPSap, SSAP: GARPSap, Control: GARPControl}
		pdu = []gopacket.SerializableLayer{eth, llc, g}
	}
	buffer := gopacket.NewSerializeBuffer()
	options := gopacket.SerializeOptions{
		FixLengths: true,
	}
	if err := gopacket.SerializeLayers(buffer, options, pdu...); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Decode validates and decodes a received frame. Any malformation rejects
// the whole frame with a *ParseError.
func Decode(data []byte) (*PDU, error) {
	appl, ok := Classify(data)
	if !ok {
		return nil, parseErr(0, "not an MRP/GARP VLAN registration frame")
	}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{NoCopy: true})
	ethernetLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethernetLayer == nil {
		return nil, parseErr(0, "invalid ethernet header")
	}
	eth := ethernetLayer.(*layers.Ethernet)
	pdu := &PDU{Appl: appl, SrcMAC: append(net.HardwareAddr(nil), eth.SrcMAC...)}

	switch appl {
	case config.ApplMVRP:
		if len(data) < MVRPMinPDUSize {
			return nil, parseErr(0, "frame too short (%d bytes)", len(data))
		}
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			var perr *ParseError
			if errors.As(errLayer.Error(), &perr) {
				return nil, perr
			}
			return nil, parseErr(14, "%v", errLayer.Error())
		}
		mvrpLayer := pkt.Layer(LayerTypeMVRP)
		if mvrpLayer == nil {
			return nil, parseErr(14, "missing MVRPDU")
		}
		for _, msg := range mvrpLayer.(*MVRPDU).Messages {
			pdu.Attributes = append(pdu.Attributes, msg.VectorAttributes...)
		}
	case config.ApplGVRP:
		llcLayer := pkt.Layer(layers.LayerTypeLLC)
		if llcLayer == nil {
			return nil, parseErr(14, "missing LLC header")
		}
		g := &GVRPDU{}
		if err := g.DecodeFromBytes(llcLayer.(*layers.LLC).Payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		for _, msg := range g.Messages {
			for _, a := range msg.Attributes {
				if a.Event == GVRPLeaveAll {
					pdu.Attributes = append(pdu.Attributes, VectorAttribute{LeaveAll: true})
					continue
				}
				pdu.Attributes = append(pdu.Attributes, VectorAttribute{
					FirstValue: a.Value,
					Events:     []Event{a.Event.toEvent()},
				})
			}
		}
	}
	return pdu, nil
}
