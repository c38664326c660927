package audio

import (
	"bytes"
	"testing"
)

func TestRingPushAndRead(t *testing.T) {
	r := NewRing(8)

	n := r.Push([]byte{1, 2, 3, 4})
	if n != 4 {
		t.Fatalf("expected push of 4 bytes, got %d", n)
	}
	if r.Buffered() != 4 {
		t.Fatalf("expected 4 buffered bytes, got %d", r.Buffered())
	}

	out := make([]byte, 4)
	read, err := r.Read(out)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if read != 4 || !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected bytes 1..4 back, got %v (n=%d)", out[:read], read)
	}
	if r.Buffered() != 0 {
		t.Fatalf("expected drained ring, got %d buffered", r.Buffered())
	}
}

func TestRingPartialPushWhenFull(t *testing.T) {
	r := NewRing(4)

	if n := r.Push([]byte{1, 2, 3}); n != 3 {
		t.Fatalf("expected push of 3, got %d", n)
	}
	if n := r.Push([]byte{4, 5, 6}); n != 1 {
		t.Fatalf("expected partial push of 1, got %d", n)
	}
	if r.Free() != 0 {
		t.Fatalf("expected full ring, free=%d", r.Free())
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(4)

	r.Push([]byte{1, 2, 3})
	out := make([]byte, 2)
	r.Read(out)

	// Head is now offset; this push wraps past the end of the buffer.
	if n := r.Push([]byte{4, 5, 6}); n != 3 {
		t.Fatalf("expected wrap-around push of 3, got %d", n)
	}

	got := make([]byte, 4)
	n, _ := r.Read(got)
	if n != 4 || !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Fatalf("expected 3,4,5,6 after wrap, got %v (n=%d)", got[:n], n)
	}
}

func TestRingReadServesSilenceWhenEmpty(t *testing.T) {
	r := NewRing(8)

	out := []byte{9, 9, 9, 9}
	n, err := r.Read(out)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != len(out) {
		t.Fatalf("empty ring should fill the whole slice with silence, got n=%d", n)
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
}

func TestRingShortReadWhenPartiallyFilled(t *testing.T) {
	r := NewRing(8)
	r.Push([]byte{1, 2})

	out := make([]byte, 6)
	n, err := r.Read(out)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	// Real data is never padded with silence mid-utterance.
	if n != 2 {
		t.Fatalf("expected short read of 2, got %d", n)
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing(8)
	r.Push([]byte{1, 2, 3, 4, 5})
	r.Clear()

	if r.Buffered() != 0 {
		t.Fatalf("expected empty ring after clear, got %d", r.Buffered())
	}
	out := make([]byte, 2)
	n, _ := r.Read(out)
	if n != 2 || out[0] != 0 || out[1] != 0 {
		t.Fatalf("expected silence after clear, got %v", out)
	}
}
