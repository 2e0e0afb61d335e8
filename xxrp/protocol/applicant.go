package protocol

import "fmt"

// ApplicantState is one of the twelve applicant states.
type ApplicantState uint8

const (
	ApplicantVO ApplicantState = iota // very anxious observer
	ApplicantVP                       // very anxious passive
	ApplicantVN                       // very anxious new
	ApplicantAN                       // anxious new
	ApplicantAA                       // anxious active
	ApplicantQA                       // quiet active
	ApplicantLA                       // leaving active
	ApplicantAO                       // anxious observer
	ApplicantQO                       // quiet observer
	ApplicantAP                       // anxious passive
	ApplicantQP                       // quiet passive
	ApplicantLO                       // leaving observer
	applicantStateCount
)

var ApplicantStateStrMap = map[ApplicantState]string{
	ApplicantVO: "VO",
	ApplicantVP: "VP",
	ApplicantVN: "VN",
	ApplicantAN: "AN",
	ApplicantAA: "AA",
	ApplicantQA: "QA",
	ApplicantLA: "LA",
	ApplicantAO: "AO",
	ApplicantQO: "QO",
	ApplicantAP: "AP",
	ApplicantQP: "QP",
	ApplicantLO: "LO",
}

func (s ApplicantState) String() string {
	if str, ok := ApplicantStateStrMap[s]; ok {
		return str
	}
	return fmt.Sprintf("ApplicantState(%d)", uint8(s))
}

// RequiresTx reports states that need a transmit opportunity.
func (s ApplicantState) RequiresTx() bool {
	switch s {
	case ApplicantVP, ApplicantVN, ApplicantAN, ApplicantAA, ApplicantLA, ApplicantAP, ApplicantLO:
		return true
	}
	return false
}

func (s ApplicantState) NotDeclaring() bool {
	switch s {
	case ApplicantVO, ApplicantAO, ApplicantQO, ApplicantLO:
		return true
	}
	return false
}

// Declaring is true for states that keep announcing the attribute. LA is
// on its way out and is not counted.
func (s ApplicantState) Declaring() bool {
	return !s.NotDeclaring() && s != ApplicantLA
}

type ApplicantEvent uint8

const (
	AppEventBegin ApplicantEvent = iota
	AppEventNew
	AppEventJoin
	AppEventLv
	AppEventRNew
	AppEventRJoinIn
	AppEventRIn
	AppEventRJoinMt
	AppEventRMt
	AppEventRLv
	AppEventRLA
	AppEventRedeclare
	AppEventPeriodic
	AppEventTx
	AppEventTxLA
	AppEventTxLAF
	appEventCount
)

var ApplicantEventStrMap = map[ApplicantEvent]string{
	AppEventBegin:     "Begin!",
	AppEventNew:       "New!",
	AppEventJoin:      "Join!",
	AppEventLv:        "Lv!",
	AppEventRNew:      "rNew!",
	AppEventRJoinIn:   "rJoinIn!",
	AppEventRIn:       "rIn!",
	AppEventRJoinMt:   "rJoinMt!",
	AppEventRMt:       "rMt!",
	AppEventRLv:       "rLv!",
	AppEventRLA:       "rLA!",
	AppEventRedeclare: "Re-declare!",
	AppEventPeriodic:  "periodic!",
	AppEventTx:        "tx!",
	AppEventTxLA:      "txLA!",
	AppEventTxLAF:     "txLAF!",
}

func (e ApplicantEvent) String() string {
	if str, ok := ApplicantEventStrMap[e]; ok {
		return str
	}
	return fmt.Sprintf("ApplicantEvent(%d)", uint8(e))
}

// ApplicantAction is what a transition asks the transmit path to encode.
type ApplicantAction uint8

const (
	appActNone ApplicantAction = iota
	appActSendNew
	appActSendJoin
	appActSend
	appActSendLeave
	appActSendInvalid
)

type appTransition struct {
	next   ApplicantState
	action ApplicantAction
	keep   bool
}

var stay = appTransition{keep: true}

func to(s ApplicantState) appTransition { return appTransition{next: s} }

func toSend(s ApplicantState, a ApplicantAction) appTransition {
	return appTransition{next: s, action: a}
}

func staySend(a ApplicantAction) appTransition {
	return appTransition{keep: true, action: a}
}

type appRow [appEventCount]appTransition

// arow takes one argument per event so that a row with a missing column
// does not compile.
func arow(begin, newEv, join, lv, rNew, rJoinIn, rIn, rJoinMt, rMt, rLv, rLA,
	redeclare, periodic, tx, txLA, txLAF appTransition) appRow {
	return appRow{begin, newEv, join, lv, rNew, rJoinIn, rIn, rJoinMt, rMt, rLv, rLA,
		redeclare, periodic, tx, txLA, txLAF}
}

const (
	sNew  = appActSendNew
	sJoin = appActSendJoin
	sAny  = appActSend
	sLv   = appActSendLeave
	sInv  = appActSendInvalid
)

// Rows are in ApplicantState order.
var applicantTable = [...]appRow{
	// VO
	arow(stay, to(ApplicantVN), to(ApplicantVP), stay, stay, to(ApplicantAO), stay, stay, stay, to(ApplicantLO), to(ApplicantLO), to(ApplicantLO), stay, staySend(sInv), toSend(ApplicantLO, sInv), to(ApplicantLO)),
	// VP
	arow(to(ApplicantVO), to(ApplicantVN), stay, to(ApplicantVO), stay, to(ApplicantAP), stay, stay, stay, stay, stay, stay, stay, toSend(ApplicantAA, sJoin), toSend(ApplicantAA, sAny), to(ApplicantVP)),
	// VN
	arow(to(ApplicantVO), stay, stay, to(ApplicantLA), stay, stay, stay, stay, stay, stay, stay, stay, stay, toSend(ApplicantAN, sNew), toSend(ApplicantAN, sNew), to(ApplicantVN)),
	// AN
	arow(to(ApplicantVO), stay, stay, to(ApplicantLA), stay, stay, stay, stay, stay, to(ApplicantVN), to(ApplicantVN), to(ApplicantVN), stay, toSend(ApplicantQA, sNew), toSend(ApplicantQA, sNew), to(ApplicantVN)),
	// AA
	arow(to(ApplicantVO), to(ApplicantVN), stay, to(ApplicantLA), stay, to(ApplicantQA), to(ApplicantQA), stay, stay, to(ApplicantVP), to(ApplicantVP), to(ApplicantVP), stay, toSend(ApplicantQA, sJoin), toSend(ApplicantQA, sJoin), to(ApplicantVP)),
	// QA
	arow(to(ApplicantVO), to(ApplicantVN), stay, to(ApplicantLA), stay, stay, stay, to(ApplicantAA), to(ApplicantAA), to(ApplicantVP), to(ApplicantVP), to(ApplicantVP), to(ApplicantAA), staySend(sInv), staySend(sJoin), to(ApplicantVP)),
	// LA
	arow(to(ApplicantVO), to(ApplicantVN), to(ApplicantAA), stay, stay, stay, stay, stay, stay, stay, stay, stay, stay, toSend(ApplicantVO, sLv), toSend(ApplicantLO, sInv), to(ApplicantLO)),
	// AO
	arow(to(ApplicantVO), to(ApplicantVN), to(ApplicantAP), stay, stay, to(ApplicantQO), stay, stay, stay, to(ApplicantLO), to(ApplicantLO), to(ApplicantLO), stay, staySend(sInv), toSend(ApplicantLO, sInv), to(ApplicantLO)),
	// QO
	arow(to(ApplicantVO), to(ApplicantVN), to(ApplicantQP), stay, stay, stay, stay, to(ApplicantAO), to(ApplicantAO), to(ApplicantLO), to(ApplicantLO), to(ApplicantLO), stay, staySend(sInv), toSend(ApplicantLO, sInv), to(ApplicantLO)),
	// AP
	arow(to(ApplicantVO), to(ApplicantVN), stay, to(ApplicantAO), stay, to(ApplicantQP), stay, stay, stay, to(ApplicantVP), to(ApplicantVP), to(ApplicantVP), stay, toSend(ApplicantQA, sJoin), toSend(ApplicantQA, sJoin), to(ApplicantVP)),
	// QP
	arow(to(ApplicantVO), to(ApplicantVN), stay, to(ApplicantQO), stay, stay, stay, to(ApplicantAP), to(ApplicantAP), to(ApplicantVP), to(ApplicantVP), to(ApplicantVP), to(ApplicantAP), staySend(sInv), toSend(ApplicantQA, sJoin), to(ApplicantVP)),
	// LO
	arow(to(ApplicantVO), to(ApplicantVN), to(ApplicantVP), stay, stay, stay, stay, to(ApplicantVO), to(ApplicantVO), stay, stay, stay, stay, toSend(ApplicantVO, sAny), staySend(sInv), stay),
}

// fails to compile unless there is exactly one row per state
var _ = [1]struct{}{}[len(applicantTable)-int(applicantStateCount)]

// step is next with the operPointToPointMAC exceptions. On a point-to-point
// link rJoinIn! leaves VO and VP alone, the only peer cannot be an observer
// target. On shared media rIn! leaves AA alone, another peer may still need
// the join.
func (s ApplicantState) step(ev ApplicantEvent, pointToPoint bool) (ApplicantState, ApplicantAction) {
	switch {
	case pointToPoint && ev == AppEventRJoinIn && (s == ApplicantVO || s == ApplicantVP):
		return s, appActNone
	case !pointToPoint && ev == AppEventRIn && s == ApplicantAA:
		return s, appActNone
	}
	return s.next(ev)
}

func (s ApplicantState) next(ev ApplicantEvent) (ApplicantState, ApplicantAction) {
	tr := applicantTable[s][ev]
	if tr.keep {
		return s, tr.action
	}
	return tr.next, tr.action
}
