package packet

import (
	"fmt"

	"l2/xxrp/config"
)

// Event is an attribute event as carried in a PDU. EventNone marks an
// attribute with nothing to send; the remaining values map onto the MRP
// three-packed encoding with an offset of one.
type Event uint8

const (
	EventNone Event = iota
	EventNew
	EventJoinIn
	EventIn
	EventJoinMt
	EventMt
	EventLv
)

const numWireEvents = 6

var EventStrMap = map[Event]string{
	EventNone:   "None",
	EventNew:    "New",
	EventJoinIn: "JoinIn",
	EventIn:     "In",
	EventJoinMt: "JoinMt",
	EventMt:     "Mt",
	EventLv:     "Lv",
}

func (e Event) String() string {
	if s, ok := EventStrMap[e]; ok {
		return s
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

func (e Event) wire() uint8 {
	return uint8(e) - 1
}

func eventFromWire(v uint8) Event {
	return Event(v + 1)
}

// Declaration is a single (attribute, event) pair.
type Declaration struct {
	Vid   uint16
	Event Event
}

// EventVector holds the pending event of every attribute of one port. The
// zero value has nothing pending.
type EventVector [config.VlanIdCount]Event

func (v *EventVector) Set(vid uint16, e Event) {
	if vid < config.VlanIdCount {
		v[vid] = e
	}
}

func (v *EventVector) Get(vid uint16) Event {
	if vid >= config.VlanIdCount {
		return EventNone
	}
	return v[vid]
}

func (v *EventVector) Reset() {
	*v = EventVector{}
}

func (v *EventVector) Pending() int {
	n := 0
	for _, e := range v {
		if e != EventNone {
			n++
		}
	}
	return n
}

// Merge overlays every pending event of o on v. A newer event for the same
// attribute replaces the older one.
func (v *EventVector) Merge(o *EventVector) {
	for vid, e := range o {
		if e != EventNone {
			v[vid] = e
		}
	}
}

func (v *EventVector) Declarations() []Declaration {
	var out []Declaration
	for vid, e := range v {
		if e != EventNone {
			out = append(out, Declaration{Vid: uint16(vid), Event: e})
		}
	}
	return out
}
