// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package metricsagg

import (
	"log"

	"github.com/hhorai/gnbdu/adt/spsc"
	"github.com/hhorai/gnbdu/slotclock"
)

// ringCapacity is the SPSC ring's slot count, recommended as a
// power-of-two in spec.md §4.2.
const ringCapacity = 32

// reportSlot is one SPSC ring element: the scheduler fills sched in
// place, then the MAC fills mac in place, then the slot is published as a
// unit. Reset recycles the interior vectors instead of freeing them.
type reportSlot struct {
	sched     CellMetricReportScheduler
	mac       CellMetricReportMAC
	macFilled bool
}

// Reset implements spsc.Resettable.
func (s *reportSlot) Reset() {
	s.sched.UEMetrics = s.sched.UEMetrics[:0]
	s.sched.Events = s.sched.Events[:0]
	s.sched.Slot = slotclock.ExtendedSlotPoint{}
	s.sched.NofSlots = 0
	s.mac = CellMetricReportMAC{}
	s.macFilled = false
}

// cellChannel is the per-cell SPSC report channel (S1) plus the
// production-protocol bookkeeping spec.md §4.2 assigns to the producer
// side: a single pending (reserved-but-not-yet-published) slot, and the
// next subframe boundary at which a report is due.
type cellChannel struct {
	ring    *spsc.Ring[*reportSlot]
	pending **reportSlot // set between GetBuilder and the MAC's commit

	nextReportSubframe int64
	agg                *Aggregator
	index              int
}

func newCellChannel(agg *Aggregator, index int, firstReportSubframe int64) *cellChannel {
	return &cellChannel{
		ring:               spsc.NewRing[*reportSlot](ringCapacity, func() *reportSlot { return &reportSlot{} }),
		nextReportSubframe: firstReportSubframe,
		agg:                agg,
		index:              index,
	}
}

// SchedNotifier is the producer-side sink the scheduler calls once per
// window (spec.md §4.2).
type SchedNotifier interface {
	// GetBuilder claims a slot in the SPSC channel and returns a pointer
	// the caller fills in place.
	GetBuilder() (*CellMetricReportScheduler, error)
	// Commit marks the scheduler's half of the report as done. Nothing is
	// visible to the consumer yet: the slot remains half-filled until the
	// MAC side completes and publishes it via OnCellMetricReport.
	Commit(b *CellMetricReportScheduler)
	// IsSchedReportRequired peeks whether a new window has opened.
	IsSchedReportRequired(sl slotclock.ExtendedSlotPoint) bool
}

// MACNotifier is the producer-side sink the MAC-DL layer polls every slot
// (spec.md §4.2).
type MACNotifier interface {
	IsReportRequired(sl slotclock.ExtendedSlotPoint) bool
	OnCellActivation()
	OnCellDeactivation(final CellMetricReportMAC)
	OnCellMetricReport(report CellMetricReportMAC)
}

func (c *cellChannel) GetBuilder() (*CellMetricReportScheduler, error) {
	pp, err := c.ring.Reserve()
	if err != nil {
		log.Printf("metricsagg: cell %d: SPSC full, dropping scheduler report", c.index)
		return nil, err
	}
	c.pending = pp
	return &(*pp).sched, nil
}

func (c *cellChannel) Commit(b *CellMetricReportScheduler) {
	// The slot is now "half-filled": the scheduler's half is in place,
	// the MAC side owns completing it via OnCellMetricReport.
}

func (c *cellChannel) IsSchedReportRequired(sl slotclock.ExtendedSlotPoint) bool {
	return sl.SubframeIndex() >= c.nextReportSubframe
}

func (c *cellChannel) IsReportRequired(sl slotclock.ExtendedSlotPoint) bool {
	return sl.SubframeIndex() >= c.nextReportSubframe
}

func (c *cellChannel) OnCellActivation() {}

func (c *cellChannel) OnCellMetricReport(report CellMetricReportMAC) {
	if c.pending == nil {
		log.Printf("metricsagg: cell %d: MAC report with no pending scheduler reservation, dropping", c.index)
		return
	}
	(*c.pending).mac = report
	(*c.pending).macFilled = true
	c.ring.Commit()
	c.pending = nil
	c.nextReportSubframe += c.agg.periodSubframes

	if n := c.agg.reportCount.Add(1); n == 1 {
		c.agg.armTimer()
	}
}

func (c *cellChannel) OnCellDeactivation(final CellMetricReportMAC) {
	c.agg.deactivateCell(c.index, final)
}
