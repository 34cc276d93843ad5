package buffer

import (
	"bytes"
	"testing"
)

func TestAppendConsumeRoundTrip(t *testing.T) {
	b := New()
	b.Append([]byte("hello "))
	b.Append([]byte("world"))

	if got := string(b.Data()); got != "hello world" {
		t.Fatalf("Data() = %q, want %q", got, "hello world")
	}

	b.Consume(6)
	if got := string(b.Data()); got != "world" {
		t.Fatalf("Data() after consume = %q, want %q", got, "world")
	}

	b.Consume(5)
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	b := New()
	payload := bytes.Repeat([]byte("x"), minGrow*3)
	b.Append(payload)

	if b.Len() != len(payload) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(payload))
	}
	if !bytes.Equal(b.Data(), payload) {
		t.Fatalf("Data() mismatch after large append")
	}
}

func TestConsumeMoreThanLenClampsAndResets(t *testing.T) {
	b := New()
	b.Append([]byte("abc"))
	b.Consume(100)
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}

	b.Append([]byte("next"))
	if string(b.Data()) != "next" {
		t.Fatalf("Data() = %q, want %q", b.Data(), "next")
	}
}

func TestConsumeInvariantHolds(t *testing.T) {
	b := New()
	for i := 0; i < 1000; i++ {
		b.Append([]byte("0123456789"))
		if i%3 == 0 {
			b.Consume(5)
		}
		if b.written < b.consumed {
			t.Fatalf("invariant violated: consumed=%d written=%d", b.consumed, b.written)
		}
	}
}
