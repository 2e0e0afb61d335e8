package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplicantTransitions(t *testing.T) {
	tests := []struct {
		from   ApplicantState
		ev     ApplicantEvent
		to     ApplicantState
		action ApplicantAction
	}{
		{ApplicantVO, AppEventJoin, ApplicantVP, appActNone},
		{ApplicantVO, AppEventNew, ApplicantVN, appActNone},
		{ApplicantVP, AppEventTx, ApplicantAA, appActSendJoin},
		{ApplicantAA, AppEventTx, ApplicantQA, appActSendJoin},
		{ApplicantQA, AppEventTx, ApplicantQA, appActSendInvalid},
		{ApplicantQA, AppEventJoin, ApplicantQA, appActNone},
		{ApplicantQA, AppEventLv, ApplicantLA, appActNone},
		{ApplicantQA, AppEventRJoinMt, ApplicantAA, appActNone},
		{ApplicantQA, AppEventPeriodic, ApplicantAA, appActNone},
		{ApplicantQA, AppEventRedeclare, ApplicantVP, appActNone},
		{ApplicantLA, AppEventTx, ApplicantVO, appActSendLeave},
		{ApplicantLA, AppEventJoin, ApplicantAA, appActNone},
		{ApplicantVN, AppEventTx, ApplicantAN, appActSendNew},
		{ApplicantAN, AppEventTx, ApplicantQA, appActSendNew},
		{ApplicantVO, AppEventRJoinIn, ApplicantAO, appActNone},
		{ApplicantAO, AppEventRLv, ApplicantLO, appActNone},
		{ApplicantLO, AppEventTx, ApplicantVO, appActSend},
		{ApplicantVP, AppEventLv, ApplicantVO, appActNone},
		{ApplicantAP, AppEventTx, ApplicantQA, appActSendJoin},
	}
	for _, tt := range tests {
		to, action := tt.from.next(tt.ev)
		assert.Equal(t, tt.to, to, "%s on %s", tt.ev, tt.from)
		assert.Equal(t, tt.action, action, "%s on %s", tt.ev, tt.from)
	}
}

func TestApplicantPointToPoint(t *testing.T) {
	tests := []struct {
		from ApplicantState
		ev   ApplicantEvent
		p2p  bool
		to   ApplicantState
	}{
		{ApplicantVO, AppEventRJoinIn, true, ApplicantVO},
		{ApplicantVO, AppEventRJoinIn, false, ApplicantAO},
		{ApplicantVP, AppEventRJoinIn, true, ApplicantVP},
		{ApplicantVP, AppEventRJoinIn, false, ApplicantAP},
		{ApplicantAA, AppEventRIn, true, ApplicantQA},
		{ApplicantAA, AppEventRIn, false, ApplicantAA},
		{ApplicantAA, AppEventRJoinIn, false, ApplicantQA},
	}
	for _, tt := range tests {
		to, _ := tt.from.step(tt.ev, tt.p2p)
		assert.Equal(t, tt.to, to, "%s on %s, p2p %v", tt.ev, tt.from, tt.p2p)
	}
}

func TestApplicantDeclaring(t *testing.T) {
	for _, s := range []ApplicantState{ApplicantVP, ApplicantVN, ApplicantAN, ApplicantAA, ApplicantQA, ApplicantAP, ApplicantQP} {
		assert.True(t, s.Declaring(), s.String())
	}
	for _, s := range []ApplicantState{ApplicantVO, ApplicantAO, ApplicantQO, ApplicantLO, ApplicantLA} {
		assert.False(t, s.Declaring(), s.String())
	}
	assert.True(t, ApplicantLA.RequiresTx())
	assert.False(t, ApplicantQA.RequiresTx())
}

func TestRegistrarTransitions(t *testing.T) {
	tests := []struct {
		from   RegistrarState
		ev     RegistrarEvent
		to     RegistrarState
		action RegistrarAction
	}{
		{RegistrarMT, RegEventRNew, RegistrarIN, regActNew},
		{RegistrarMT, RegEventRJoinIn, RegistrarIN, regActJoin},
		{RegistrarMT, RegEventRJoinMt, RegistrarIN, regActJoin},
		{RegistrarMT, RegEventRLv, RegistrarMT, regActNone},
		{RegistrarIN, RegEventRJoinIn, RegistrarIN, regActNone},
		{RegistrarIN, RegEventRLv, RegistrarLV, regActStartTimer},
		{RegistrarIN, RegEventRLA, RegistrarLV, regActStartTimer},
		{RegistrarIN, RegEventTxLA, RegistrarLV, regActStartTimer},
		{RegistrarIN, RegEventFlush, RegistrarMT, regActLeave},
		{RegistrarIN, RegEventRNew, RegistrarIN, regActNew},
		{RegistrarLV, RegEventRJoinIn, RegistrarIN, regActStopTimer},
		{RegistrarLV, RegEventRNew, RegistrarIN, regActStopTimerNew},
		{RegistrarLV, RegEventLeaveTimer, RegistrarMT, regActLeave},
		{RegistrarLV, RegEventFlush, RegistrarMT, regActLeave},
		{RegistrarMT, RegEventLeaveTimer, RegistrarMT, regActNone},
	}
	for _, tt := range tests {
		to, action := tt.from.next(tt.ev)
		assert.Equal(t, tt.to, to, "%s on %s", tt.ev, tt.from)
		assert.Equal(t, tt.action, action, "%s on %s", tt.ev, tt.from)
	}
}

func TestLeaveAllAndPeriodicTransitions(t *testing.T) {
	s, a := LeaveAllPassive.next(LeaveAllEventBegin)
	assert.Equal(t, LeaveAllPassive, s)
	assert.Equal(t, laActStartTimer, a)
	s, a = LeaveAllPassive.next(LeaveAllEventTimer)
	assert.Equal(t, LeaveAllActive, s)
	assert.Equal(t, laActStartTimer, a)
	s, a = LeaveAllActive.next(LeaveAllEventTx)
	assert.Equal(t, LeaveAllPassive, s)
	assert.Equal(t, laActSendLA, a)
	s, a = LeaveAllActive.next(LeaveAllEventRx)
	assert.Equal(t, LeaveAllPassive, s)
	assert.Equal(t, laActStartTimer, a)
	s, a = LeaveAllPassive.next(LeaveAllEventTx)
	assert.Equal(t, LeaveAllPassive, s)
	assert.Equal(t, laActNone, a)

	p, pa := PeriodicPassive.next(PeriodicEventEnabled)
	assert.Equal(t, PeriodicActive, p)
	assert.Equal(t, perActStartTimer, pa)
	p, pa = PeriodicActive.next(PeriodicEventTimer)
	assert.Equal(t, PeriodicActive, p)
	assert.Equal(t, perActPeriodic, pa)
	p, pa = PeriodicActive.next(PeriodicEventDisabled)
	assert.Equal(t, PeriodicPassive, p)
	assert.Equal(t, perActStopTimer, pa)
	p, pa = PeriodicPassive.next(PeriodicEventTimer)
	assert.Equal(t, PeriodicPassive, p)
	assert.Equal(t, perActNone, pa)
}
