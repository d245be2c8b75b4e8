package spsc

import "testing"

type intSlot struct {
	val int
}

func (s *intSlot) Reset() { s.val = 0 }

func TestReserveCommitPeekPop(t *testing.T) {
	r := NewRing[*intSlot](4, func() *intSlot { return &intSlot{} })

	slot, err := r.Reserve()
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	(*slot).val = 42
	r.Commit()

	if r.Len() != 1 {
		t.Fatalf("expect len=1 after commit, got %d", r.Len())
	}

	head, err := r.Peek()
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if (*head).val != 42 {
		t.Errorf("expect peeked value 42, got %d", (*head).val)
	}

	if err := r.Pop(); err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expect len=0 after pop, got %d", r.Len())
	}
}

func TestFullAndEmpty(t *testing.T) {
	r := NewRing[*intSlot](2, func() *intSlot { return &intSlot{} })

	for i := 0; i < 2; i++ {
		s, err := r.Reserve()
		if err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
		(*s).val = i
		r.Commit()
	}

	if _, err := r.Reserve(); err != ErrFull {
		t.Errorf("expect ErrFull, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := r.Pop(); err != nil {
			t.Fatalf("pop %d failed: %v", i, err)
		}
	}
	if _, err := r.Peek(); err != ErrEmpty {
		t.Errorf("expect ErrEmpty, got %v", err)
	}
}

func TestRecycleClearsPayload(t *testing.T) {
	r := NewRing[*intSlot](2, func() *intSlot { return &intSlot{} })

	s, _ := r.Reserve()
	(*s).val = 7
	r.Commit()

	if err := r.Pop(); err != nil {
		t.Fatal(err)
	}

	// Reserve again; with capacity 2 and only one slot consumed so far,
	// the next Reserve returns a fresh slot, not the recycled one -- so
	// pull capacity+1 reservations through to observe recycling on the
	// exact slot index that was popped.
	for i := 0; i < 2; i++ {
		s2, err := r.Reserve()
		if err != nil {
			t.Fatalf("reserve %d failed: %v", i, err)
		}
		if i == 1 && (*s2).val != 0 {
			t.Errorf("expect recycled slot to be cleared, got val=%d", (*s2).val)
		}
		r.Commit()
		if err := r.Pop(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCapRoundsUpToPowerOfTwo(t *testing.T) {
	r := NewRing[*intSlot](5, func() *intSlot { return &intSlot{} })
	if r.Cap() != 8 {
		t.Errorf("expect capacity rounded to 8, got %d", r.Cap())
	}
}
