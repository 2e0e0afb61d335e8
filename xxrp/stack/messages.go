package stack

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"l2/xxrp/config"
)

type MsgType string

const (
	// MsgLocalConfSet carries the admission mirror of one application for
	// the ports of one unit.
	MsgLocalConfSet MsgType = "LOCAL_CONF_SET"
)

// Message is the inter unit payload. Session identifies the primary term
// that produced it.
type Message struct {
	Type    MsgType            `json:"type"`
	Session uuid.UUID          `json:"session"`
	Unit    uint32             `json:"unit"`
	Appl    config.Application `json:"appl"`

	GlobalEnable bool            `json:"global_enable,omitempty"`
	PortEnable   map[uint32]bool `json:"port_enable,omitempty"`
}

func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalMessage(payload []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(payload, m); err != nil {
		return nil, fmt.Errorf("stack: bad message: %w", err)
	}
	switch m.Type {
	case MsgLocalConfSet:
		if m.Appl >= config.ApplMax {
			return nil, fmt.Errorf("stack: bad application %d", m.Appl)
		}
	default:
		return nil, fmt.Errorf("stack: unknown message type %q", m.Type)
	}
	return m, nil
}
