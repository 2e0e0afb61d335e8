//
//Copyright [2016] [SnapRoute Inc]
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//	 Unless required by applicable law or agreed to in writing, software
//	 distributed under the License is distributed on an "AS IS" BASIS,
//	 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//	 See the License for the specific language governing permissions and
//	 limitations under the License.
//
// _______  __       __________   ___      _______.____    __    ____  __  .___________.  ______  __    __
// |   ____||  |     |   ____\  \ /  /     /       |\   \  /  \  /   / |  | |           | /      ||  |  |  |
// |  |__   |  |     |  |__   \  V  /     |   (----` \   \/    \/   /  |  | `---|  |----`|  ,----'|  |__|  |
// |   __|  |  |     |   __|   >   <       \   \      \            /   |  |     |  |     |  |     |   __   |
// |  |     |  `----.|  |____ /  .  \  .----)   |      \    /\    /    |  |     |  |     |  `----.|  |  |  |
// |__|     |_______||_______/__/ \__\ |_______/        \__/  \__/     |__|     |__|      \______||__|  |__|
//

package protocol

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

type TimerType uint8

const (
	TimerTypeJoin TimerType = iota
	TimerTypeLeave
	TimerTypeLeaveAll
	TimerTypePeriodic
)

var TimerTypeStrMap = map[TimerType]string{
	TimerTypeJoin:     "Join Timer",
	TimerTypeLeave:    "Leave Timer",
	TimerTypeLeaveAll: "LeaveAll Timer",
	TimerTypePeriodic: "Periodic Timer",
}

func (t TimerType) String() string {
	if s, ok := TimerTypeStrMap[t]; ok {
		return s
	}
	return fmt.Sprintf("TimerType(%d)", uint8(t))
}

// minTimerDuration keeps a timer that re-arms itself from firing twice in
// the same tick.
const minTimerDuration = time.Millisecond

// Timer is owned by the MAD it belongs to. The callback runs with the engine
// lock held.
type Timer struct {
	Type     TimerType
	Port     uint32
	Vid      uint16
	deadline time.Time
	index    int
	fire     func(h *held)
}

func newTimer(typ TimerType, port uint32, vid uint16, fire func(h *held)) *Timer {
	return &Timer{Type: typ, Port: port, Vid: vid, index: -1, fire: fire}
}

func (t *Timer) Running() bool {
	return t.index >= 0
}

type timerHeap []*Timer

func (th timerHeap) Len() int           { return len(th) }
func (th timerHeap) Less(i, j int) bool { return th[i].deadline.Before(th[j].deadline) }
func (th timerHeap) Swap(i, j int) {
	th[i], th[j] = th[j], th[i]
	th[i].index = i
	th[j].index = j
}

func (th *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*th)
	*th = append(*th, t)
}

func (th *timerHeap) Pop() interface{} {
	old := *th
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*th = old[:n-1]
	return t
}

// TimerEngine keeps every armed timer ordered by deadline. It is driven by
// Tick and wakes its driver through the kick hook whenever the earliest
// deadline moves closer.
type TimerEngine struct {
	clk    clock.Clock
	timers timerHeap
	kick   func()
}

func NewTimerEngine(clk clock.Clock) *TimerEngine {
	if clk == nil {
		clk = clock.New()
	}
	return &TimerEngine{clk: clk}
}

func (te *TimerEngine) Now() time.Time {
	return te.clk.Now()
}

// Arm (re)starts t to expire after d.
func (te *TimerEngine) Arm(t *Timer, d time.Duration) {
	if d < minTimerDuration {
		d = minTimerDuration
	}
	t.deadline = te.clk.Now().Add(d)
	if t.Running() {
		heap.Fix(&te.timers, t.index)
	} else {
		heap.Push(&te.timers, t)
	}
	if te.timers[0] == t && te.kick != nil {
		te.kick()
	}
}

func (te *TimerEngine) Disarm(t *Timer) {
	if t == nil || !t.Running() {
		return
	}
	heap.Remove(&te.timers, t.index)
}

func (te *TimerEngine) Armed() int {
	return len(te.timers)
}

// Next returns the time left until the earliest deadline.
func (te *TimerEngine) Next() (time.Duration, bool) {
	if len(te.timers) == 0 {
		return 0, false
	}
	d := te.timers[0].deadline.Sub(te.clk.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Tick fires every expired timer in deadline order and returns the wait
// until the next one.
func (te *TimerEngine) Tick(h *held) (time.Duration, bool) {
	now := te.clk.Now()
	for len(te.timers) > 0 && !te.timers[0].deadline.After(now) {
		t := heap.Pop(&te.timers).(*Timer)
		t.fire(h)
	}
	return te.Next()
}
