// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package metricsagg implements the lock-light, per-cell producer /
// single-consumer metric aggregator: it reconciles independently produced
// MAC-DL and scheduler reports from multiple cells into one aligned,
// windowed report, tolerating cell activation/deactivation churn.
package metricsagg

import (
	"time"

	"github.com/hhorai/gnbdu/slotclock"
)

// LatencyStats carries the min/avg/max of a latency distribution sampled
// over one aggregation window.
type LatencyStats struct {
	Min time.Duration
	Avg time.Duration
	Max time.Duration
}

// CellMetricReportMAC is the per-cell, per-window MAC-DL report of
// spec.md §3.
type CellMetricReportMAC struct {
	StartSlot        slotclock.ExtendedSlotPoint
	NofSlots         int
	SlotDuration     time.Duration
	WallClockLatency LatencyStats
	UserLatency      LatencyStats
	SystemLatency    LatencyStats
	NofContextSwitch int
	Deactivated      bool
}

// UEEventType enumerates the scheduler UE-lifecycle events spec.md §3
// lists for a scheduler cell report.
type UEEventType int

const (
	UEAdd UEEventType = iota
	UEReconf
	UERemove
)

// UEEvent is one scheduler-reported UE lifecycle transition.
type UEEvent struct {
	RNTI uint32
	Slot slotclock.ExtendedSlotPoint
	Type UEEventType
}

// UEMetric is one UE's scheduler-level counters for the window.
type UEMetric struct {
	RNTI           uint32
	NofPRBsUsed    uint64
	NofBytesSched  uint64
	AvgCQI         float32
	DLBufferBytes  uint64
	NofDLRetransmit uint32
}

// CellMetricReportScheduler is the per-cell, per-window scheduler report
// of spec.md §3.
type CellMetricReportScheduler struct {
	Slot      slotclock.ExtendedSlotPoint
	NofSlots  int
	UEMetrics []UEMetric
	Events    []UEEvent
}

// AggregatedMetricReport is the vector of MAC and scheduler cell reports
// all pertaining to the same aggregation window [WindowStart,
// WindowStart+Period).
type AggregatedMetricReport struct {
	WindowStart int64 // subframe-domain index, SCS-independent
	Period      int64 // window length, in subframes
	MACCells    []CellMetricReportMAC
	SchedCells  []CellMetricReportScheduler
}

// MACMetricsNotifier is the downstream sink of spec.md §6: invoked once
// per aggregation window from the control executor.
type MACMetricsNotifier interface {
	OnNewMetricsReport(report AggregatedMetricReport)
}
