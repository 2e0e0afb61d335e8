package protocol

import "fmt"

// RegistrarState; the zero value is MT so a fresh entry registers nothing.
type RegistrarState uint8

const (
	RegistrarMT RegistrarState = iota
	RegistrarIN
	RegistrarLV
	registrarStateCount
)

var RegistrarStateStrMap = map[RegistrarState]string{
	RegistrarMT: "MT",
	RegistrarIN: "IN",
	RegistrarLV: "LV",
}

func (s RegistrarState) String() string {
	if str, ok := RegistrarStateStrMap[s]; ok {
		return str
	}
	return fmt.Sprintf("RegistrarState(%d)", uint8(s))
}

type RegistrarEvent uint8

const (
	RegEventBegin RegistrarEvent = iota
	RegEventRNew
	RegEventRJoinIn
	RegEventRJoinMt
	RegEventRLv
	RegEventRLA
	RegEventTxLA
	RegEventRedeclare
	RegEventFlush
	RegEventLeaveTimer
	regEventCount
)

var RegistrarEventStrMap = map[RegistrarEvent]string{
	RegEventBegin:      "Begin!",
	RegEventRNew:       "rNew!",
	RegEventRJoinIn:    "rJoinIn!",
	RegEventRJoinMt:    "rJoinMt!",
	RegEventRLv:        "rLv!",
	RegEventRLA:        "rLA!",
	RegEventTxLA:       "txLA!",
	RegEventRedeclare:  "Re-declare!",
	RegEventFlush:      "Flush!",
	RegEventLeaveTimer: "leavetimer!",
}

func (e RegistrarEvent) String() string {
	if str, ok := RegistrarEventStrMap[e]; ok {
		return str
	}
	return fmt.Sprintf("RegistrarEvent(%d)", uint8(e))
}

type RegistrarAction uint8

const (
	regActNone RegistrarAction = iota
	regActNew
	regActJoin
	regActLeave
	regActStartTimer
	regActStopTimer
	regActStopTimerNew
)

type regTransition struct {
	next   RegistrarState
	action RegistrarAction
	keep   bool
}

var regStay = regTransition{keep: true}

func reg(s RegistrarState, a RegistrarAction) regTransition {
	return regTransition{next: s, action: a}
}

type regRow [regEventCount]regTransition

func rrow(begin, rNew, rJoinIn, rJoinMt, rLv, rLA, txLA, redeclare, flush, leaveTimer regTransition) regRow {
	return regRow{begin, rNew, rJoinIn, rJoinMt, rLv, rLA, txLA, redeclare, flush, leaveTimer}
}

// Rows are in RegistrarState order. Flush from IN withdraws the membership
// the same way a leave timer expiry does.
var registrarTable = [...]regRow{
	rrow(reg(RegistrarMT, regActNone), reg(RegistrarIN, regActNew), reg(RegistrarIN, regActJoin), reg(RegistrarIN, regActJoin),
		regStay, regStay, regStay, regStay, reg(RegistrarMT, regActNone), reg(RegistrarMT, regActNone)), // MT
	rrow(reg(RegistrarMT, regActNone), reg(RegistrarIN, regActNew), regStay, regStay,
		reg(RegistrarLV, regActStartTimer), reg(RegistrarLV, regActStartTimer), reg(RegistrarLV, regActStartTimer),
		reg(RegistrarLV, regActStartTimer), reg(RegistrarMT, regActLeave), regStay), // IN
	rrow(reg(RegistrarMT, regActNone), reg(RegistrarIN, regActStopTimerNew), reg(RegistrarIN, regActStopTimer), reg(RegistrarIN, regActStopTimer),
		regStay, regStay, regStay, regStay, reg(RegistrarMT, regActLeave), reg(RegistrarMT, regActLeave)), // LV
}

var _ = [1]struct{}{}[len(registrarTable)-int(registrarStateCount)]

func (s RegistrarState) next(ev RegistrarEvent) (RegistrarState, RegistrarAction) {
	tr := registrarTable[s][ev]
	if tr.keep {
		return s, tr.action
	}
	return tr.next, tr.action
}
