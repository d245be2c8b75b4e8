package bytebuffer

import (
	"bytes"
	"testing"
)

func newTestPool() *Pool {
	return NewPool(4, 8, true) // tiny segments force multi-segment buffers
}

func TestAppendAndLinearize(t *testing.T) {
	pattern := []struct {
		chunks [][]byte
		expect []byte
	}{
		{[][]byte{{1, 2, 3}}, []byte{1, 2, 3}},
		{[][]byte{{1, 2, 3}, {4, 5}, {6, 7, 8, 9, 10}}, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
	}

	for _, p := range pattern {
		b := New(newTestPool())
		for _, c := range p.chunks {
			if err := b.Append(c); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
		if got := b.Linearize(); !bytes.Equal(got, p.expect) {
			t.Errorf("pattern=%v: expect %v, got %v", p, p.expect, got)
		}
		if b.Len() != len(p.expect) {
			t.Errorf("expect len=%d, got %d", len(p.expect), b.Len())
		}
	}
}

func TestPrepend(t *testing.T) {
	b := New(newTestPool())
	if err := b.Append([]byte{3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := b.Prepend([]byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if got, want := b.Linearize(), []byte{1, 2, 3, 4, 5}; !bytes.Equal(got, want) {
		t.Errorf("expect %v, got %v", want, got)
	}
}

func TestTrimHeadAndTail(t *testing.T) {
	b := New(newTestPool())
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if err := b.Append(data); err != nil {
		t.Fatal(err)
	}

	b.TrimHead(2)
	if got, want := b.Linearize(), data[2:]; !bytes.Equal(got, want) {
		t.Fatalf("after trim-head: expect %v, got %v", want, got)
	}

	b.TrimTail(3)
	if got, want := b.Linearize(), data[2:len(data)-3]; !bytes.Equal(got, want) {
		t.Fatalf("after trim-tail: expect %v, got %v", want, got)
	}
}

func TestResize(t *testing.T) {
	b := New(newTestPool())
	if err := b.Append([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := b.Resize(5); err != nil {
		t.Fatal(err)
	}
	if got, want := b.Linearize(), []byte{1, 2, 3, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("grow: expect %v, got %v", want, got)
	}
	if err := b.Resize(1); err != nil {
		t.Fatal(err)
	}
	if got, want := b.Linearize(), []byte{1}; !bytes.Equal(got, want) {
		t.Errorf("shrink: expect %v, got %v", want, got)
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	b := New(newTestPool())
	if err := b.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}); err != nil {
		t.Fatal(err)
	}

	dup, err := b.DeepCopy()
	if err != nil {
		t.Fatal(err)
	}
	if !b.Equal(dup) {
		t.Fatalf("deep copy not byte-equal to original")
	}

	b.TrimHead(4)
	if bytes.Equal(b.Linearize(), dup.Linearize()) {
		t.Errorf("mutating original should not affect deep copy")
	}
	if dup.Len() != 10 {
		t.Errorf("deep copy length changed: %d", dup.Len())
	}
}

func TestShallowCopySharesSegments(t *testing.T) {
	b := New(newTestPool())
	if err := b.Append([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	shallow := b.ShallowCopy()
	if !b.Equal(shallow) {
		t.Fatalf("shallow copy should be byte-equal")
	}
	if b.ctrl != shallow.ctrl {
		t.Errorf("shallow copy must share the control block")
	}
	b.Release()
	// Original's refcount dropped to 1 (shallow copy still holds a ref);
	// the shallow copy must still see valid content.
	if got, want := shallow.Linearize(), []byte{1, 2, 3}; !bytes.Equal(got, want) {
		t.Errorf("shallow copy lost data after sibling release: got %v want %v", got, want)
	}
	shallow.Release()
}

func TestSliceOutlivesBuffer(t *testing.T) {
	b := New(newTestPool())
	if err := b.Append([]byte{10, 20, 30, 40, 50}); err != nil {
		t.Fatal(err)
	}
	sl := b.Slice(1, 4)
	b.Release()

	if got, want := sl.Bytes(), []byte{20, 30, 40}; !bytes.Equal(got, want) {
		t.Errorf("slice should outlive the original buffer reference: got %v want %v", got, want)
	}
	sl.Release()
}

func TestPoolExhaustionWithoutFallback(t *testing.T) {
	pool := NewPool(1, 4, false)
	b := New(pool)
	if err := b.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("first segment should succeed: %v", err)
	}
	if err := b.Append([]byte{5}); err == nil {
		t.Fatalf("expect pool exhaustion error, got nil")
	} else if err != ErrPoolExhausted {
		t.Errorf("expect ErrPoolExhausted, got %v", err)
	}
}

func TestPoolExhaustionWithFallback(t *testing.T) {
	pool := NewPool(1, 4, true)
	b := New(pool)
	for i := 0; i < 3; i++ {
		if err := b.Append([]byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("append %d: unexpected error with malloc fallback: %v", i, err)
		}
	}
	if pool.Mallocs() == 0 {
		t.Errorf("expect at least one fallback allocation to be recorded")
	}
}
