package protocol

import (
	"errors"
	"fmt"

	"l2/xxrp/config"
)

var (
	ErrAlreadyExclusive = errors.New("a mutually exclusive application is already enabled")
	ErrNotEnabled       = errors.New("application not enabled")
	ErrPortDisabled     = errors.New("port not enabled")
)

type ExclusivityError struct {
	Requested config.Application
	Active    config.Application
}

func (e *ExclusivityError) Error() string {
	return fmt.Sprintf("cannot enable %v while %v is enabled", e.Requested, e.Active)
}

func (e *ExclusivityError) Unwrap() error {
	return ErrAlreadyExclusive
}

// ResourceError is returned when the per-port structures of an enable
// cannot be allocated. Nothing allocated by the failed call is left behind.
type ResourceError struct {
	Port   uint32
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("port %d: %s", e.Port, e.Reason)
}

func configErr(op string, format string, args ...interface{}) error {
	return &config.ConfigError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
