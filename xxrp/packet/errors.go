package packet

import "fmt"

// ParseError reports a malformed frame. The whole frame is discarded.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed PDU at offset %d: %s", e.Offset, e.Reason)
}

func parseErr(off int, format string, args ...interface{}) error {
	return &ParseError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}
