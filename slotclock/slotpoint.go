// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package slotclock implements the multi-cell, hyper-frame-aware slot
// clock: it converts bounded per-cell (SFN, slot) indications into a
// single monotonic, process-wide extended time base and drives an
// external timer_manager's tick() exactly once per subframe boundary,
// regardless of how many cells observe that boundary.
package slotclock

import "fmt"

// SCS identifies a sub-carrier spacing by its numerology index; the
// number of slots per subframe is 2^SCS (15kHz through 960kHz).
type SCS int

// The seven numerologies spec.md's glossary lists (1, 2, 4, 8, 16, 32, 64
// slots per subframe).
const (
	SCS15 SCS = iota
	SCS30
	SCS60
	SCS120
	SCS240
	SCS480
	SCS960
)

// SlotsPerSubframe returns the number of slots in one 1ms subframe for s.
func (s SCS) SlotsPerSubframe() int { return 1 << uint(s) }

// FramesPerHyperFrame is the bounded SFN range (3GPP: SFN wraps mod 1024).
const FramesPerHyperFrame = 1024

// SubframesPerFrame is fixed regardless of numerology: one frame is 10ms.
const SubframesPerFrame = 10

// SubframesPerHyperFrame is the SFN-domain period, the same for every
// numerology: exactly what makes the hyper-SFN rollover comparable across
// cells running different sub-carrier spacings.
const SubframesPerHyperFrame = FramesPerHyperFrame * SubframesPerFrame

// slotsPerHyperFrame returns the bounded slot-count modulus for s.
func slotsPerHyperFrame(s SCS) int { return SubframesPerHyperFrame * s.SlotsPerSubframe() }

// SlotPoint is a bounded (SCS, slot-count mod HFN) pair. Two slot points
// are only comparable when they share the same SCS.
type SlotPoint struct {
	SCS   SCS
	Count uint32 // 0 <= Count < slotsPerHyperFrame(SCS)
}

// NewSlotPoint builds a SlotPoint from an SFN (0..1023) and an in-frame
// slot index (0..SlotsPerSubframe()*SubframesPerFrame-1).
func NewSlotPoint(scs SCS, sfn int, slotInFrame int) SlotPoint {
	slotsPerFrame := scs.SlotsPerSubframe() * SubframesPerFrame
	return SlotPoint{SCS: scs, Count: uint32((sfn*slotsPerFrame + slotInFrame) % slotsPerHyperFrame(scs))}
}

// SubframeSlotIndex returns the slot's position within its subframe;
// zero means this slot starts a new subframe (a "subframe boundary").
func (s SlotPoint) SubframeSlotIndex() int { return int(s.Count) % s.SCS.SlotsPerSubframe() }

// Add returns the slot point n slots later, wrapping modulo the HFN.
func (s SlotPoint) Add(n int) SlotPoint {
	mod := slotsPerHyperFrame(s.SCS)
	c := (int(s.Count) + n) % mod
	if c < 0 {
		c += mod
	}
	return SlotPoint{SCS: s.SCS, Count: uint32(c)}
}

// Compare returns the signed slot distance from other to s (s - other),
// interpreting whichever half of the modular range is smaller in
// magnitude as "earlier" -- so the result is always in
// (-modulus/2, modulus/2]. Returns an error if the two slot points use
// different sub-carrier spacings, since only same-SCS points are
// comparable (spec.md §3).
func (s SlotPoint) Compare(other SlotPoint) (int, error) {
	if s.SCS != other.SCS {
		return 0, fmt.Errorf("slotclock: cannot compare slot points with different SCS (%d vs %d)", s.SCS, other.SCS)
	}
	mod := slotsPerHyperFrame(s.SCS)
	diff := int(s.Count) - int(other.Count)
	half := mod / 2
	for diff > half {
		diff -= mod
	}
	for diff <= -half {
		diff += mod
	}
	return diff, nil
}

// ExtendedSlotPoint augments a SlotPoint with the monotonic count of SFN
// rollovers observed since the time controller's epoch, making it
// unambiguous to subtract across an arbitrarily long run.
type ExtendedSlotPoint struct {
	SlotPoint
	HyperSFN uint32
}

// ToUint64 returns the total slot count since epoch: HyperSFN *
// slotsPerHyperFrame(SCS) + Count. Round-trips through FromUint64 for any
// SCS, for the full uint64 range relevant to a realistic run (spec.md §8).
func (e ExtendedSlotPoint) ToUint64() uint64 {
	return uint64(e.HyperSFN)*uint64(slotsPerHyperFrame(e.SCS)) + uint64(e.Count)
}

// FromUint64 is ToUint64's inverse for a given SCS.
func FromUint64(scs SCS, v uint64) ExtendedSlotPoint {
	mod := uint64(slotsPerHyperFrame(scs))
	return ExtendedSlotPoint{
		SlotPoint: SlotPoint{SCS: scs, Count: uint32(v % mod)},
		HyperSFN:  uint32(v / mod),
	}
}

// SubframeIndex returns the extended slot count converted to subframe
// units (dividing out the numerology-specific slots-per-subframe factor).
// Two cells running different SCS produce directly comparable
// SubframeIndex values, which is what lets a single shared atomic
// arbitrate ticks across a multi-numerology deployment (spec.md §4.1).
func (e ExtendedSlotPoint) SubframeIndex() int64 {
	return int64(e.ToUint64()) / int64(e.SCS.SlotsPerSubframe())
}

// Sub returns the signed slot distance (s - other); both must share SCS.
func (e ExtendedSlotPoint) Sub(other ExtendedSlotPoint) (int64, error) {
	if e.SCS != other.SCS {
		return 0, fmt.Errorf("slotclock: cannot subtract extended slot points with different SCS (%d vs %d)", e.SCS, other.SCS)
	}
	return int64(e.ToUint64()) - int64(other.ToUint64()), nil
}
