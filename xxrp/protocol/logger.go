package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"l2/xxrp/utils"
)

// MachineLogger logs a state transition at debug level.
func MachineLogger(m *Mad, machine string, vid uint16, ev fmt.Stringer, from, to fmt.Stringer) {
	if ce := debug.Logger.Check(zap.DebugLevel, "state transition"); ce != nil {
		ce.Write(
			zap.Stringer("appl", m.appl.id),
			zap.String("machine", machine),
			zap.Uint32("port", m.port),
			zap.Uint16("vid", vid),
			zap.Stringer("event", ev),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
}
