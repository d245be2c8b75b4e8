// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package slotclock

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/hhorai/gnbdu/exec"
)

// MaxNofDUCells bounds the number of simultaneously active cells a single
// Controller can track, matching the fixed-size cell-slot array of
// spec.md §4.1.
const MaxNofDUCells = 16

// MaxSkipped is the clock-glitch threshold: if a single subframe-boundary
// observation would need to dispatch this many or more ticks at once, the
// controller treats it as a glitch, logs it, and suppresses the ticks
// rather than risk an unbounded catch-up storm.
const MaxSkipped = 128

// masterUninitialized is the sentinel stored in Controller.masterCount
// before the first cell has activated.
const masterUninitialized = -1

type cellSlot struct {
	active       bool
	lastExtended ExtendedSlotPoint
}

// Controller merges independent per-cell slot streams into one monotonic
// extended time base and dispatches tick() into an external TimerManager
// exactly once per subframe boundary. Every data structure it touches is
// either private to one cell's executor or one of the three shared
// atomics below; there are no locks (spec.md §5).
type Controller struct {
	cells [MaxNofDUCells]cellSlot

	masterCount    atomic.Int64  // -1 == uninitialized; else extended subframe index
	missedSlots    atomic.Uint64 // accumulated skipped ticks a failed defer owes
	nofActiveCells atomic.Int32

	tickExecutor exec.Executor
	timers       exec.TimerManager
}

// NewController wires a Controller to the executor that runs deferred
// tick dispatch and the timer facility that receives the ticks.
func NewController(tickExecutor exec.Executor, timers exec.TimerManager) *Controller {
	c := &Controller{tickExecutor: tickExecutor, timers: timers}
	c.masterCount.Store(masterUninitialized)
	return c
}

// CellHandle is the RAII-flavored handle returned by AddCell: its Close
// plays the role of the destructor-triggered on_cell_deactivation, since
// Go has no destructors. Callers must invoke every method from the same
// goroutine ("that cell's executor").
type CellHandle struct {
	ctrl   *Controller
	index  int
	closed bool
}

// AddCell registers cellIndex (0 <= cellIndex < MaxNofDUCells) and
// returns its handle. Adding an index that is already active is a caller
// error.
func (c *Controller) AddCell(cellIndex int) (*CellHandle, error) {
	if cellIndex < 0 || cellIndex >= MaxNofDUCells {
		return nil, fmt.Errorf("slotclock: cell index %d out of range [0,%d)", cellIndex, MaxNofDUCells)
	}
	if c.cells[cellIndex].active {
		return nil, fmt.Errorf("slotclock: cell %d is already active", cellIndex)
	}
	return &CellHandle{ctrl: c, index: cellIndex}, nil
}

// NofActiveCells returns the current count of active cells.
func (c *Controller) NofActiveCells() int32 { return c.nofActiveCells.Load() }

// alignClosestHalfHFN picks the HyperSFN for sl that places its
// SubframeIndex() as close as possible to masterSubframeIdx, implementing
// the "closest-by-half-HFN" rule of spec.md §4.1: a naive HyperSFN=0
// guess is nudged by whole hyper-frame periods until the signed distance
// to the master is within half a period.
func alignClosestHalfHFN(sl SlotPoint, masterSubframeIdx int64) ExtendedSlotPoint {
	naive := ExtendedSlotPoint{SlotPoint: sl, HyperSFN: 0}
	naiveIdx := naive.SubframeIndex()
	diff := masterSubframeIdx - naiveIdx
	k := int64(math.Round(float64(diff) / float64(SubframesPerHyperFrame)))
	naive.HyperSFN = uint32(int64(naive.HyperSFN) + k)
	return naive
}

// OnSlotIndication runs the per-slot protocol for this cell's executor
// (the hot path of spec.md §4.1): it updates the cell's local extended
// counter, and on a subframe boundary arbitrates with every other active
// cell over a single shared atomic for who dispatches the tick(s).
func (h *CellHandle) OnSlotIndication(sl SlotPoint) (ExtendedSlotPoint, error) {
	if h.closed {
		return ExtendedSlotPoint{}, fmt.Errorf("slotclock: cell %d handle already closed", h.index)
	}
	cs := &h.ctrl.cells[h.index]

	if !cs.active {
		h.activate(cs, sl)
	} else if err := h.rebase(cs, sl); err != nil {
		return ExtendedSlotPoint{}, err
	}

	local := cs.lastExtended
	if sl.SubframeSlotIndex() != 0 {
		return local, nil // not a subframe boundary: no tick
	}

	h.arbitrateTick(local)
	return local, nil
}

// activate runs the activation protocol (spec.md §4.1, step 1-2): the
// first cell to observe master_count==uninitialized becomes the clock's
// epoch; every later cell aligns its own HyperSFN guess against whatever
// the winner published.
func (h *CellHandle) activate(cs *cellSlot, sl SlotPoint) {
	trial := ExtendedSlotPoint{SlotPoint: sl, HyperSFN: 0}
	trialIdx := trial.SubframeIndex()

	if h.ctrl.masterCount.CompareAndSwap(masterUninitialized, trialIdx) {
		cs.lastExtended = trial
	} else {
		cur := h.ctrl.masterCount.Load()
		cs.lastExtended = alignClosestHalfHFN(sl, cur)
	}
	cs.active = true
	h.ctrl.nofActiveCells.Add(1)
}

// rebase updates the cell's local extended counter for an already-active
// cell: it rebases the incoming bounded slot to the last-known HyperSFN
// and detects rollover (the new slot's bounded count is below the stored
// one's, meaning the bounded counter wrapped forward).
func (h *CellHandle) rebase(cs *cellSlot, sl SlotPoint) error {
	if _, err := sl.Compare(cs.lastExtended.SlotPoint); err != nil {
		return err
	}
	hyperSFN := cs.lastExtended.HyperSFN
	if sl.Count < cs.lastExtended.Count {
		hyperSFN++
	}
	cs.lastExtended = ExtendedSlotPoint{SlotPoint: sl, HyperSFN: hyperSFN}
	return nil
}

// arbitrateTick implements step 3-5 of the per-slot protocol: exactly one
// cell per subframe boundary wins the CAS and dispatches the tick(s).
func (h *CellHandle) arbitrateTick(local ExtendedSlotPoint) {
	localIdx := local.SubframeIndex()

	var nofSkipped int64
	for {
		prevMaster := h.ctrl.masterCount.Load()
		if localIdx <= prevMaster {
			return // another cell already advanced the clock past this point
		}
		if h.ctrl.masterCount.CompareAndSwap(prevMaster, localIdx) {
			nofSkipped = localIdx - prevMaster
			break
		}
	}

	if nofSkipped >= MaxSkipped {
		log.Printf("slotclock: cell %d: clock glitch, nof_skipped=%d >= %d, suppressing ticks",
			h.index, nofSkipped, MaxSkipped)
		return
	}

	missed := h.ctrl.missedSlots.Swap(0)
	total := nofSkipped + int64(missed)
	if total <= 0 {
		return
	}

	accepted := h.ctrl.tickExecutor.Defer(func() {
		for i := int64(0); i < total; i++ {
			h.ctrl.timers.Tick()
		}
	})
	if !accepted {
		h.ctrl.missedSlots.Add(uint64(total))
	}
}

// OnCellDeactivation clears this cell's active flag and, if it was the
// last active cell, resets the shared clock so the next activation
// starts a fresh epoch.
func (h *CellHandle) OnCellDeactivation() {
	if h.closed {
		return
	}
	h.closed = true
	h.ctrl.cells[h.index].active = false

	if h.ctrl.nofActiveCells.Add(-1) != 0 {
		return
	}
	for {
		if h.ctrl.nofActiveCells.Load() != 0 {
			return // a concurrent activation beat us to it
		}
		cur := h.ctrl.masterCount.Load()
		if h.ctrl.masterCount.CompareAndSwap(cur, masterUninitialized) {
			return
		}
	}
}

// Close is the RAII-flavored equivalent of the destructor that
// spec.md §4.1 says signals deactivation.
func (h *CellHandle) Close() { h.OnCellDeactivation() }
