package config

import (
	"fmt"
	"time"
)

// Timer values are in centiseconds.
const (
	JoinTimerMin     = 1
	JoinTimerMax     = 20
	JoinTimerDef     = 20
	LeaveTimerMin    = 60
	LeaveTimerMax    = 300
	LeaveTimerDef    = 60
	LeaveAllTimerMin = 1000
	LeaveAllTimerMax = 5000
	LeaveAllTimerDef = 1000

	PeriodicTimer = time.Second
)

type Timers struct {
	Join     uint32 `toml:"join" json:"join"`
	Leave    uint32 `toml:"leave" json:"leave"`
	LeaveAll uint32 `toml:"leave_all" json:"leave_all"`
}

func DefaultTimers() Timers {
	return Timers{
		Join:     JoinTimerDef,
		Leave:    LeaveTimerDef,
		LeaveAll: LeaveAllTimerDef,
	}
}

func checkRange(name string, v, min, max uint32) error {
	if v < min || v > max {
		return &ConfigError{
			Op:     name + " timer",
			Reason: fmt.Sprintf("%d cs outside %d..%d", v, min, max),
		}
	}
	return nil
}

func (t Timers) Validate() error {
	if err := checkRange("join", t.Join, JoinTimerMin, JoinTimerMax); err != nil {
		return err
	}
	if err := checkRange("leave", t.Leave, LeaveTimerMin, LeaveTimerMax); err != nil {
		return err
	}
	return checkRange("leave-all", t.LeaveAll, LeaveAllTimerMin, LeaveAllTimerMax)
}

func centiseconds(v uint32) time.Duration {
	return time.Duration(v) * 10 * time.Millisecond
}

func (t Timers) JoinDuration() time.Duration     { return centiseconds(t.Join) }
func (t Timers) LeaveDuration() time.Duration    { return centiseconds(t.Leave) }
func (t Timers) LeaveAllDuration() time.Duration { return centiseconds(t.LeaveAll) }
