package protocol

import "fmt"

type LeaveAllState uint8

const (
	LeaveAllPassive LeaveAllState = iota
	LeaveAllActive
	leaveAllStateCount
)

var LeaveAllStateStrMap = map[LeaveAllState]string{
	LeaveAllPassive: "Passive",
	LeaveAllActive:  "Active",
}

func (s LeaveAllState) String() string {
	if str, ok := LeaveAllStateStrMap[s]; ok {
		return str
	}
	return fmt.Sprintf("LeaveAllState(%d)", uint8(s))
}

type LeaveAllEvent uint8

const (
	LeaveAllEventBegin LeaveAllEvent = iota
	LeaveAllEventTx
	LeaveAllEventRx
	LeaveAllEventTimer
	leaveAllEventCount
)

type leaveAllAction uint8

const (
	laActNone leaveAllAction = iota
	laActStartTimer
	laActSendLA
)

type laTransition struct {
	next   LeaveAllState
	action leaveAllAction
	keep   bool
}

type laRow [leaveAllEventCount]laTransition

func larow(begin, tx, rx, timer laTransition) laRow {
	return laRow{begin, tx, rx, timer}
}

var leaveAllTable = [...]laRow{
	larow(laTransition{next: LeaveAllPassive, action: laActStartTimer}, laTransition{keep: true},
		laTransition{next: LeaveAllPassive, action: laActStartTimer}, laTransition{next: LeaveAllActive, action: laActStartTimer}), // Passive
	larow(laTransition{next: LeaveAllPassive, action: laActStartTimer}, laTransition{next: LeaveAllPassive, action: laActSendLA},
		laTransition{next: LeaveAllPassive, action: laActStartTimer}, laTransition{next: LeaveAllActive, action: laActStartTimer}), // Active
}

var _ = [1]struct{}{}[len(leaveAllTable)-int(leaveAllStateCount)]

func (s LeaveAllState) next(ev LeaveAllEvent) (LeaveAllState, leaveAllAction) {
	tr := leaveAllTable[s][ev]
	if tr.keep {
		return s, tr.action
	}
	return tr.next, tr.action
}

type PeriodicState uint8

const (
	PeriodicPassive PeriodicState = iota
	PeriodicActive
	periodicStateCount
)

var PeriodicStateStrMap = map[PeriodicState]string{
	PeriodicPassive: "Passive",
	PeriodicActive:  "Active",
}

func (s PeriodicState) String() string {
	if str, ok := PeriodicStateStrMap[s]; ok {
		return str
	}
	return fmt.Sprintf("PeriodicState(%d)", uint8(s))
}

type PeriodicEvent uint8

const (
	PeriodicEventBegin PeriodicEvent = iota
	PeriodicEventEnabled
	PeriodicEventDisabled
	PeriodicEventTimer
	periodicEventCount
)

type periodicAction uint8

const (
	perActNone periodicAction = iota
	perActStartTimer
	perActStopTimer
	perActPeriodic
)

type perTransition struct {
	next   PeriodicState
	action periodicAction
	keep   bool
}

type perRow [periodicEventCount]perTransition

func prow(begin, enabled, disabled, timer perTransition) perRow {
	return perRow{begin, enabled, disabled, timer}
}

var periodicTable = [...]perRow{
	prow(perTransition{next: PeriodicActive, action: perActStartTimer}, perTransition{next: PeriodicActive, action: perActStartTimer},
		perTransition{keep: true}, perTransition{keep: true}), // Passive
	prow(perTransition{next: PeriodicActive, action: perActStartTimer}, perTransition{keep: true},
		perTransition{next: PeriodicPassive, action: perActStopTimer}, perTransition{next: PeriodicActive, action: perActPeriodic}), // Active
}

var _ = [1]struct{}{}[len(periodicTable)-int(periodicStateCount)]

func (s PeriodicState) next(ev PeriodicEvent) (PeriodicState, periodicAction) {
	tr := periodicTable[s][ev]
	if tr.keep {
		return s, tr.action
	}
	return tr.next, tr.action
}
