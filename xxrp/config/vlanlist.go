package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	VlanIdMin   = 1
	VlanIdMax   = 4094
	VlanIdCount = 4096
)

// VlanList is a set of VLAN ids stored as a bitmap.
type VlanList [VlanIdCount / 8]byte

func ValidVid(vid uint16) bool {
	return vid >= VlanIdMin && vid <= VlanIdMax
}

func (l *VlanList) Set(vid uint16) {
	if vid < VlanIdCount {
		l[vid/8] |= 1 << (vid % 8)
	}
}

func (l *VlanList) Clear(vid uint16) {
	if vid < VlanIdCount {
		l[vid/8] &^= 1 << (vid % 8)
	}
}

func (l *VlanList) Get(vid uint16) bool {
	if vid >= VlanIdCount {
		return false
	}
	return l[vid/8]&(1<<(vid%8)) != 0
}

func (l *VlanList) Count() int {
	n := 0
	for vid := uint16(0); vid < VlanIdCount; vid++ {
		if l.Get(vid) {
			n++
		}
	}
	return n
}

// Vids returns the members in ascending order.
func (l *VlanList) Vids() []uint16 {
	var vids []uint16
	for vid := uint16(0); vid < VlanIdCount; vid++ {
		if l.Get(vid) {
			vids = append(vids, vid)
		}
	}
	return vids
}

// Validate rejects a set holding ids outside VlanIdMin..VlanIdMax.
func (l *VlanList) Validate() error {
	for _, vid := range []uint16{0, VlanIdMax + 1} {
		if l.Get(vid) {
			return &ConfigError{Op: "vlan list", Reason: fmt.Sprintf("vlan id %d outside %d..%d", vid, VlanIdMin, VlanIdMax)}
		}
	}
	return nil
}

func NewVlanList(vids ...uint16) VlanList {
	var l VlanList
	for _, v := range vids {
		l.Set(v)
	}
	return l
}

// String renders the list the way it is entered, e.g. "1,5-10,20".
func (l VlanList) String() string {
	var b strings.Builder
	vid := 0
	for vid < VlanIdCount {
		if !l.Get(uint16(vid)) {
			vid++
			continue
		}
		start := vid
		for vid+1 < VlanIdCount && l.Get(uint16(vid+1)) {
			vid++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == vid {
			fmt.Fprintf(&b, "%d", start)
		} else {
			fmt.Fprintf(&b, "%d-%d", start, vid)
		}
		vid++
	}
	return b.String()
}

// ParseVlanList parses a comma separated list of ids and ranges. Spaces are
// ignored. On error the returned list is empty.
func ParseVlanList(text string, min, max uint16) (VlanList, error) {
	var l VlanList
	text = strings.ReplaceAll(text, " ", "")
	if text == "" {
		return l, nil
	}
	for _, item := range strings.Split(text, ",") {
		if item == "" {
			return VlanList{}, &ConfigError{Op: "vlan list", Reason: fmt.Sprintf("empty element in %q", text)}
		}
		lo, hi := item, item
		if i := strings.IndexByte(item, '-'); i >= 0 {
			lo, hi = item[:i], item[i+1:]
		}
		first, err := parseVid(lo, min, max)
		if err != nil {
			return VlanList{}, err
		}
		last, err := parseVid(hi, min, max)
		if err != nil {
			return VlanList{}, err
		}
		if last < first {
			return VlanList{}, &ConfigError{Op: "vlan list", Reason: fmt.Sprintf("reversed range %q", item)}
		}
		for v := int(first); v <= int(last); v++ {
			l.Set(uint16(v))
		}
	}
	return l, nil
}

func parseVid(s string, min, max uint16) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &ConfigError{Op: "vlan list", Reason: fmt.Sprintf("bad vlan id %q", s)}
	}
	if uint16(v) < min || uint16(v) > max {
		return 0, &ConfigError{Op: "vlan list", Reason: fmt.Sprintf("vlan id %d outside %d..%d", v, min, max)}
	}
	return uint16(v), nil
}

func (l VlanList) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *VlanList) UnmarshalText(text []byte) error {
	v, err := ParseVlanList(string(text), VlanIdMin, VlanIdMax)
	if err != nil {
		return err
	}
	*l = v
	return nil
}
