package bitset

import "testing"

func TestSetTestReset(t *testing.T) {

	pattern := []struct {
		capacity int
		set      []int
		reset    []int
		expect   []int
	}{
		{8, []int{0, 2, 4}, nil, []int{0, 2, 4}},
		{8, []int{0, 1, 2, 3}, []int{1}, []int{0, 2, 3}},
		{64, []int{63, 0}, nil, []int{0, 63}},
	}

	for _, p := range pattern {
		b := New[LSB0](p.capacity)
		for _, i := range p.set {
			b.Set(i)
		}
		for _, i := range p.reset {
			b.Reset(i)
		}

		var got []int
		for i := 0; i < b.Size(); i++ {
			if b.Test(i) {
				got = append(got, i)
			}
		}
		if len(got) != len(p.expect) {
			t.Fatalf("pattern=%v: expect %v, got %v", p, p.expect, got)
		}
		for i := range got {
			if got[i] != p.expect[i] {
				t.Errorf("pattern=%v: expect %v, got %v", p, p.expect, got)
			}
		}
	}
}

func TestResizeSanitizesTail(t *testing.T) {
	b := New[LSB0](16)
	b.FillAll()
	b.Resize(4)
	b.Resize(16)

	for i := 4; i < 16; i++ {
		if b.Test(i) {
			t.Errorf("expect bit %d to be sanitized to zero after resize, but it is set", i)
		}
	}
	for i := 0; i < 4; i++ {
		if !b.Test(i) {
			t.Errorf("expect bit %d to remain set, but it is clear", i)
		}
	}
}

func TestCountAnyAllNone(t *testing.T) {

	pattern := []struct {
		size   int
		set    []int
		count  int
		any    bool
		all    bool
		none   bool
	}{
		{4, nil, 0, false, false, true},
		{4, []int{0, 1, 2, 3}, 4, true, true, false},
		{4, []int{1}, 1, true, false, false},
	}

	for _, p := range pattern {
		b := New[LSB0](p.size)
		for _, i := range p.set {
			b.Set(i)
		}
		if c := b.Count(); c != p.count {
			t.Errorf("pattern=%v: expect count=%d, got %d", p, p.count, c)
		}
		if b.Any() != p.any || b.All() != p.all || b.None() != p.none {
			t.Errorf("pattern=%v: any/all/none mismatch: got any=%v all=%v none=%v",
				p, b.Any(), b.All(), b.None())
		}
	}
}

func TestFindLowestHighestSet(t *testing.T) {
	b := New[LSB0](10)
	if _, ok := b.FindLowestSet(); ok {
		t.Errorf("expect no lowest set bit in empty bitset")
	}

	b.Set(3)
	b.Set(7)
	if lo, ok := b.FindLowestSet(); !ok || lo != 3 {
		t.Errorf("expect lowest set bit 3, got %d (ok=%v)", lo, ok)
	}
	if hi, ok := b.FindHighestSet(); !ok || hi != 7 {
		t.Errorf("expect highest set bit 7, got %d (ok=%v)", hi, ok)
	}
}

func TestIsContiguous(t *testing.T) {
	pattern := []struct {
		set    []int
		expect bool
	}{
		{nil, true},
		{[]int{2}, true},
		{[]int{1, 2, 3}, true},
		{[]int{1, 3}, false},
	}
	for _, p := range pattern {
		b := New[LSB0](8)
		for _, i := range p.set {
			b.Set(i)
		}
		if got := b.IsContiguous(); got != p.expect {
			t.Errorf("set=%v: expect contiguous=%v, got %v", p.set, p.expect, got)
		}
	}
}

func TestSliceAndKron(t *testing.T) {
	b := New[LSB0](8)
	b.Set(2)
	b.Set(5)

	s := b.Slice(2, 6)
	if s.Size() != 4 || !s.Test(0) || !s.Test(3) {
		t.Fatalf("unexpected slice contents: %s", s)
	}

	a := New[LSB0](2)
	a.Set(1)
	c := New[LSB0](2)
	c.Set(0)

	k := a.Kron(c)
	if k.Size() != 4 {
		t.Fatalf("expect kron size 4, got %d", k.Size())
	}
	// a=10 (bit1 set), c=01 (bit0 set) -> outer bit i set contributes
	// inner pattern at offset i*len(c): only i=1 contributes, at 1*2+0=2.
	if k.Count() != 1 || !k.Test(2) {
		t.Errorf("unexpected kron result: %s", k)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 7, 8, 9, 63, 64, 65, 200} {
		b := New[MSB0](size)
		for i := 0; i < size; i += 3 {
			b.Set(i)
		}
		packed := b.PackedBits()
		got, err := Unpack[MSB0](packed, size)
		if err != nil {
			t.Fatalf("size=%d: unpack failed: %v", size, err)
		}
		if !b.Equal(got) {
			t.Errorf("size=%d: round trip mismatch: want %s got %s", size, b, got)
		}
	}
}

func TestLSB0AndMSB0ShareSetSemantics(t *testing.T) {
	lsb := New[LSB0](8)
	msb := New[MSB0](8)

	for _, i := range []int{1, 3, 6} {
		lsb.Set(i)
		msb.Set(i)
	}

	if lsb.Count() != msb.Count() {
		t.Fatalf("expect equal counts across orderings, got %d vs %d", lsb.Count(), msb.Count())
	}
	for i := 0; i < 8; i++ {
		if lsb.Test(i) != msb.Test(i) {
			t.Errorf("bit %d: set semantics differ between orderings: lsb=%v msb=%v",
				i, lsb.Test(i), msb.Test(i))
		}
	}
	if lsb.PackedBits()[0] != msb.PackedBits()[0] {
		t.Errorf("packed export should be order-independent: lsb=%08b msb=%08b",
			lsb.PackedBits()[0], msb.PackedBits()[0])
	}
}
