package platform

import (
	"fmt"
)

// Standalone is the messenger of a single unit system. The unit is always
// the primary so nothing ever leaves the process.
type Standalone struct {
	unit    uint32
	forward RxFunc
}

func NewStandalone(unit uint32, forward RxFunc) *Standalone {
	return &Standalone{unit: unit, forward: forward}
}

func (s *Standalone) LocalUnit() uint32 { return s.unit }
func (s *Standalone) Units() []uint32   { return []uint32{s.unit} }

func (s *Standalone) SendConfig(unit uint32, payload []byte) error {
	return fmt.Errorf("unit %d is not reachable from a standalone unit", unit)
}

func (s *Standalone) ForwardToPrimary(port uint32, frame []byte) error {
	if s.forward == nil || !s.forward(port, frame) {
		return fmt.Errorf("frame on port %d not accepted", port)
	}
	return nil
}
