// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package bytebuffer implements a shared-ownership, reference-counted,
// non-contiguous byte sequence: an intrusive linked list of pool-allocated
// segments plus a control block carrying the total length.
//
// A ByteBuffer supports prepend/append/trim-head/trim-tail/resize without
// reallocating existing segments. ShallowCopy shares every segment and
// bumps one refcount; DeepCopy produces a byte-equal buffer that shares no
// segments with the original.
package bytebuffer

import (
	"errors"
	"sync/atomic"
)

// ErrPoolExhausted is returned by the segment pool when it has no free
// segment and malloc fallback is disabled.
var ErrPoolExhausted = errors.New("bytebuffer: segment pool exhausted")

// DefaultSegmentSize matches the common MTU-sized chunk used to back a
// byte_buffer segment: big enough that most PDUs fit one segment.
const DefaultSegmentSize = 2048

// segment is one pool-allocated chunk of the intrusive list. start/end mark
// the occupied window of data; capacity outside that window is free space
// reserved for future prepend/append without reallocating.
type segment struct {
	data  []byte
	start int
	end   int
	next  *segment
}

func (s *segment) len() int { return s.end - s.start }

// Pool is a process-wide, bounded object pool of segments with an optional
// heap-allocation fallback for when the pool is exhausted.
type Pool struct {
	free           chan *segment
	segSize        int
	mallocFallback bool
	mallocs        atomic.Int64
}

// NewPool creates a pool of `capacity` pre-allocated segments of `segSize`
// bytes each. If mallocFallback is true, get() allocates a fresh segment
// from the heap instead of failing when the pool is empty.
func NewPool(capacity, segSize int, mallocFallback bool) *Pool {
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	p := &Pool{
		free:           make(chan *segment, capacity),
		segSize:        segSize,
		mallocFallback: mallocFallback,
	}
	for i := 0; i < capacity; i++ {
		p.free <- &segment{data: make([]byte, segSize)}
	}
	return p
}

// Mallocs returns the number of segments served via the heap fallback
// rather than from the pre-allocated pool, for exhaustion monitoring.
func (p *Pool) Mallocs() int64 { return p.mallocs.Load() }

func (p *Pool) get() (*segment, error) {
	select {
	case s := <-p.free:
		s.start, s.end, s.next = 0, 0, nil
		return s, nil
	default:
		if !p.mallocFallback {
			return nil, ErrPoolExhausted
		}
		p.mallocs.Add(1)
		return &segment{data: make([]byte, p.segSize)}, nil
	}
}

func (p *Pool) put(s *segment) {
	s.next = nil
	select {
	case p.free <- s:
	default:
		// pool already at capacity (this segment came from the malloc
		// fallback): let the garbage collector reclaim it.
	}
}

// control is the shared state behind every (shallow) copy of a ByteBuffer.
type control struct {
	head, tail *segment
	length     int
	refs       atomic.Int32
}

// ByteBuffer is a reference-counted, possibly-segmented byte sequence.
type ByteBuffer struct {
	pool *Pool
	ctrl *control
}

// New returns an empty buffer backed by pool.
func New(pool *Pool) *ByteBuffer {
	c := &control{}
	c.refs.Store(1)
	return &ByteBuffer{pool: pool, ctrl: c}
}

// Len returns the total length across all segments.
func (b *ByteBuffer) Len() int { return b.ctrl.length }

// Empty reports whether the buffer holds zero bytes.
func (b *ByteBuffer) Empty() bool { return b.ctrl.length == 0 }

// Append copies data onto the tail of the buffer, allocating new segments
// from the pool as needed.
func (b *ByteBuffer) Append(data []byte) error {
	for len(data) > 0 {
		tail := b.ctrl.tail
		if tail == nil || tail.end == len(tail.data) {
			s, err := b.pool.get()
			if err != nil {
				return err
			}
			b.linkTail(s)
			tail = s
		}
		n := copy(tail.data[tail.end:], data)
		tail.end += n
		b.ctrl.length += n
		data = data[n:]
	}
	return nil
}

func (b *ByteBuffer) linkTail(s *segment) {
	if b.ctrl.tail == nil {
		b.ctrl.head = s
		b.ctrl.tail = s
		return
	}
	b.ctrl.tail.next = s
	b.ctrl.tail = s
}

// Prepend copies data onto the front of the buffer as one or more new
// segments ahead of the current head, without reallocating existing
// segments.
func (b *ByteBuffer) Prepend(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	segs := make([]*segment, 0, (len(data)+b.pool.segSize-1)/b.pool.segSize)
	for len(data) > 0 {
		s, err := b.pool.get()
		if err != nil {
			for _, s := range segs {
				b.pool.put(s)
			}
			return err
		}
		n := copy(s.data, data)
		s.end = n
		data = data[n:]
		segs = append(segs, s)
	}
	for i := len(segs) - 1; i >= 0; i-- {
		segs[i].next = b.ctrl.head
		b.ctrl.head = segs[i]
		if b.ctrl.tail == nil {
			b.ctrl.tail = segs[i]
		}
	}
	for _, s := range segs {
		b.ctrl.length += s.len()
	}
	return nil
}

// TrimHead removes the first n bytes from the buffer, recycling any
// segment that becomes fully empty.
func (b *ByteBuffer) TrimHead(n int) {
	if n < 0 || n > b.ctrl.length {
		panic("bytebuffer: trim-head out of range")
	}
	for n > 0 {
		head := b.ctrl.head
		avail := head.len()
		if n < avail {
			head.start += n
			b.ctrl.length -= n
			return
		}
		n -= avail
		b.ctrl.length -= avail
		b.ctrl.head = head.next
		b.pool.put(head)
	}
	if b.ctrl.head == nil {
		b.ctrl.tail = nil
	}
}

// TrimTail removes the last n bytes from the buffer, recycling any segment
// that becomes fully empty. Because the list is singly linked, this walks
// from the head to find the new tail.
func (b *ByteBuffer) TrimTail(n int) {
	if n < 0 || n > b.ctrl.length {
		panic("bytebuffer: trim-tail out of range")
	}
	keep := b.ctrl.length - n
	if keep == 0 {
		for s := b.ctrl.head; s != nil; {
			next := s.next
			b.pool.put(s)
			s = next
		}
		b.ctrl.head, b.ctrl.tail, b.ctrl.length = nil, nil, 0
		return
	}

	remaining := keep
	for s := b.ctrl.head; s != nil; s = s.next {
		if remaining <= s.len() {
			s.end = s.start + remaining
			next := s.next
			s.next = nil
			b.ctrl.tail = s
			for rest := next; rest != nil; {
				drop := rest
				rest = rest.next
				b.pool.put(drop)
			}
			b.ctrl.length = keep
			return
		}
		remaining -= s.len()
	}
}

// Resize sets the total length to n: truncating via TrimTail if n is
// shorter, or zero-extending via Append if n is longer.
func (b *ByteBuffer) Resize(n int) error {
	switch {
	case n < b.ctrl.length:
		b.TrimTail(b.ctrl.length - n)
		return nil
	case n > b.ctrl.length:
		return b.Append(make([]byte, n-b.ctrl.length))
	}
	return nil
}

// Linearize returns the buffer's content copied into one contiguous slice.
func (b *ByteBuffer) Linearize() []byte {
	out := make([]byte, 0, b.ctrl.length)
	for s := b.ctrl.head; s != nil; s = s.next {
		out = append(out, s.data[s.start:s.end]...)
	}
	return out
}

// ShallowCopy returns a ByteBuffer sharing every segment with b via one
// incremented refcount. Mutating either copy's segments in place would be
// observable from the other; callers that need independent mutation
// should DeepCopy instead.
func (b *ByteBuffer) ShallowCopy() *ByteBuffer {
	b.ctrl.refs.Add(1)
	return &ByteBuffer{pool: b.pool, ctrl: b.ctrl}
}

// DeepCopy returns a byte-equal ByteBuffer that shares no segments with b.
func (b *ByteBuffer) DeepCopy() (*ByteBuffer, error) {
	out := New(b.pool)
	for s := b.ctrl.head; s != nil; s = s.next {
		if err := out.Append(s.data[s.start:s.end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Release decrements the refcount; when it reaches zero every segment is
// returned to the pool. Calling Release more than once per
// New/ShallowCopy is a caller error (mirrors intrusive_ptr misuse).
func (b *ByteBuffer) Release() {
	if b.ctrl.refs.Add(-1) > 0 {
		return
	}
	for s := b.ctrl.head; s != nil; {
		next := s.next
		b.pool.put(s)
		s = next
	}
	b.ctrl.head, b.ctrl.tail, b.ctrl.length = nil, nil, 0
}

// Equal reports whether b and other hold byte-identical content,
// regardless of segmentation.
func (b *ByteBuffer) Equal(other *ByteBuffer) bool {
	if b.ctrl.length != other.ctrl.length {
		return false
	}
	as, bs := b.ctrl.head, other.ctrl.head
	ai, bi := 0, 0
	for as != nil && bs != nil {
		av := as.data[as.start+ai]
		bv := bs.data[bs.start+bi]
		if av != bv {
			return false
		}
		ai++
		if as.start+ai == as.end {
			as, ai = as.next, 0
		}
		bi++
		if bs.start+bi == bs.end {
			bs, bi = bs.next, 0
		}
	}
	return as == nil && bs == nil
}

// byteAt returns the byte at a global offset, for Slice's iterator.
func (b *ByteBuffer) byteAt(offset int) byte {
	s := b.ctrl.head
	remaining := offset
	for {
		n := s.len()
		if remaining < n {
			return s.data[s.start+remaining]
		}
		remaining -= n
		s = s.next
	}
}

// Slice is a half-open [begin, end) view over a ByteBuffer that keeps the
// owning buffer's segments alive (via a shared refcount) even if the
// buffer itself is released.
type Slice struct {
	owner      *ByteBuffer
	begin, end int
}

// Slice returns a view over b[begin:end), taking a strong (refcounted)
// reference on b's segments.
func (b *ByteBuffer) Slice(begin, end int) *Slice {
	if begin < 0 || end > b.ctrl.length || begin > end {
		panic("bytebuffer: slice out of range")
	}
	return &Slice{owner: b.ShallowCopy(), begin: begin, end: end}
}

// Len returns the number of bytes the slice spans.
func (s *Slice) Len() int { return s.end - s.begin }

// At returns the byte at position i within the slice (0 <= i < s.Len()).
func (s *Slice) At(i int) byte {
	if i < 0 || i >= s.Len() {
		panic("bytebuffer: slice index out of range")
	}
	return s.owner.byteAt(s.begin + i)
}

// Bytes copies the slice's content into a contiguous slice.
func (s *Slice) Bytes() []byte {
	out := make([]byte, s.Len())
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// Release drops the slice's reference on the owning buffer's segments.
func (s *Slice) Release() { s.owner.Release() }
