// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package metricsagg

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/hhorai/gnbdu/adt/spsc"
	"github.com/hhorai/gnbdu/exec"
	"github.com/hhorai/gnbdu/slotclock"
)

// MaxNofCells bounds the number of simultaneously tracked cells, mirroring
// slotclock.MaxNofDUCells.
const MaxNofCells = slotclock.MaxNofDUCells

// AggregationTimeout is the coalescing window spec.md §4.2/§5 fixes at
// 8ms: the control executor wakes at most once per this duration to drain
// whatever reports have accumulated.
const AggregationTimeout exec.TickDuration = 8

type cellState struct {
	active  bool
	channel *cellChannel
}

// Aggregator is the control-executor side of the metric aggregator
// (spec.md §4.2): it owns the single aggregation timer, the
// next-window-start cursor, and the round-robin consumption loop. All of
// its state is only ever touched from the control executor; cross-cell
// production only ever touches the shared reportCount atomic and each
// cell's own SPSC ring.
type Aggregator struct {
	cells [MaxNofCells]cellState

	reportCount    atomic.Int64
	nextWindowSet  bool
	nextWindowSF   int64
	periodSubframes int64

	controlExecutor exec.Executor
	timers          exec.TimerManager
	timer           exec.Timer
	sink            MACMetricsNotifier

	outMAC   []CellMetricReportMAC
	outSched []CellMetricReportScheduler
}

// NewAggregator wires an Aggregator to the control executor that drains
// reports, the timer facility that coalesces wakeups, the downstream
// sink, and the aggregation period expressed in subframes (spec.md's
// "period_slots", made SCS-independent the same way slotclock's tick
// arbitration is: see slotclock.ExtendedSlotPoint.SubframeIndex).
func NewAggregator(controlExecutor exec.Executor, timers exec.TimerManager, sink MACMetricsNotifier, periodSubframes int64) *Aggregator {
	a := &Aggregator{
		controlExecutor: controlExecutor,
		timers:          timers,
		sink:            sink,
		periodSubframes: periodSubframes,
	}
	a.timer = timers.NewTimer(AggregationTimeout, a.onTimerFire)
	return a
}

// AddCell registers cellIndex and returns the producer-side sinks the
// cell's scheduler and MAC-DL layers push reports through, plus the
// aggregation period. now is the clock reading at activation time, used
// for the cell-activation alignment rule of spec.md §4.2.
func (a *Aggregator) AddCell(cellIndex int, now slotclock.ExtendedSlotPoint) (period int64, sched SchedNotifier, mac MACNotifier, err error) {
	if cellIndex < 0 || cellIndex >= MaxNofCells {
		return 0, nil, nil, fmt.Errorf("metricsagg: cell index %d out of range [0,%d)", cellIndex, MaxNofCells)
	}
	if a.cells[cellIndex].active {
		return 0, nil, nil, fmt.Errorf("metricsagg: cell %d already active", cellIndex)
	}

	nowSF := now.SubframeIndex()
	firstExpected := nowSF + a.periodSubframes - (nowSF % a.periodSubframes)
	if !a.nextWindowSet {
		a.nextWindowSF = firstExpected - a.periodSubframes
		a.nextWindowSet = true
	}

	ch := newCellChannel(a, cellIndex, firstExpected)
	a.cells[cellIndex] = cellState{active: true, channel: ch}
	return a.periodSubframes, ch, ch, nil
}

// RemCell unregisters a cell outright (used when the cell index itself is
// being torn down, distinct from a MAC-reported deactivation which still
// wants to flush a final report first).
func (a *Aggregator) RemCell(cellIndex int) {
	if cellIndex < 0 || cellIndex >= MaxNofCells {
		return
	}
	a.cells[cellIndex].active = false
}

func (a *Aggregator) armTimer() {
	a.timer.Run()
}

func (a *Aggregator) onTimerFire() {
	a.controlExecutor.Execute(a.consumeWindow)
}

// consumeWindow is the control-executor consumption protocol of
// spec.md §4.2: round-robin over every cell that has a channel (active or
// not, so a deactivated cell's queue still drains), popping any report whose
// start falls in the current window, leaving ahead-of-window reports
// queued, and discarding behind-of-window ones as stale.
func (a *Aggregator) consumeWindow() {
	if !a.nextWindowSet {
		return
	}
	windowStart := a.nextWindowSF
	windowEnd := windowStart + a.periodSubframes

	for {
		if a.reportCount.Load() == 0 {
			break
		}
		popped := a.roundRobinPass(windowStart, windowEnd)
		if popped > 0 {
			a.reportCount.Add(-int64(popped))
		}
		if popped == 0 {
			break
		}
	}

	if len(a.outMAC) == 0 {
		return
	}

	a.sink.OnNewMetricsReport(AggregatedMetricReport{
		WindowStart: windowStart,
		Period:      a.periodSubframes,
		MACCells:    append([]CellMetricReportMAC(nil), a.outMAC...),
		SchedCells:  append([]CellMetricReportScheduler(nil), a.outSched...),
	})
	a.nextWindowSF += a.periodSubframes
	a.outMAC = a.outMAC[:0]
	a.outSched = a.outSched[:0]
}

func (a *Aggregator) roundRobinPass(windowStart, windowEnd int64) int {
	popped := 0
	for i := range a.cells {
		cs := &a.cells[i]
		if cs.channel == nil {
			continue
		}
		slotPtr, err := cs.channel.ring.Peek()
		if err == spsc.ErrEmpty {
			continue
		}
		head := *slotPtr
		startSF := head.sched.Slot.SubframeIndex()

		switch {
		case startSF >= windowStart && startSF < windowEnd:
			a.outMAC = append(a.outMAC, head.mac)
			a.outSched = append(a.outSched, head.sched)
			_ = cs.channel.ring.Pop()
			popped++
		case startSF < windowStart:
			log.Printf("metricsagg: cell %d: discarding stale report (start=%d, window=[%d,%d))",
				i, startSF, windowStart, windowEnd)
			_ = cs.channel.ring.Pop()
			popped++
		default:
			// ahead of this window: leave it queued for the next pass.
		}
	}
	return popped
}

// deactivateCell implements spec.md §4.2's deactivation protocol: push the
// cell's last (possibly partial) report if it belongs to the current
// window, mark the cell inactive, and if it was the last active cell stop
// the timer, drain once, emit a final aggregate, and clear the window
// cursor.
func (a *Aggregator) deactivateCell(cellIndex int, final CellMetricReportMAC) {
	cs := &a.cells[cellIndex]
	if cs.channel == nil {
		return
	}

	if a.nextWindowSet {
		windowStart := a.nextWindowSF
		windowEnd := windowStart + a.periodSubframes
		sf := final.StartSlot.SubframeIndex()
		if sf >= windowStart && sf < windowEnd {
			if slotPtr, err := cs.channel.ring.Peek(); err == nil {
				head := *slotPtr
				head.mac = final
				a.outMAC = append(a.outMAC, head.mac)
				a.outSched = append(a.outSched, head.sched)
				_ = cs.channel.ring.Pop()
				a.reportCount.Add(-1)
			} else {
				a.outMAC = append(a.outMAC, final)
			}
		}
	}

	cs.active = false

	if a.anyActiveCell() {
		return
	}

	a.timer.Stop()
	a.roundRobinPass(a.nextWindowSF, a.nextWindowSF+a.periodSubframes)
	if len(a.outMAC) > 0 {
		a.sink.OnNewMetricsReport(AggregatedMetricReport{
			WindowStart: a.nextWindowSF,
			Period:      a.periodSubframes,
			MACCells:    append([]CellMetricReportMAC(nil), a.outMAC...),
			SchedCells:  append([]CellMetricReportScheduler(nil), a.outSched...),
		})
		a.outMAC = a.outMAC[:0]
		a.outSched = a.outSched[:0]
	}
	a.nextWindowSet = false
	a.reportCount.Store(0)
}

func (a *Aggregator) anyActiveCell() bool {
	for i := range a.cells {
		if a.cells[i].active {
			return true
		}
	}
	return false
}
