// Package buffer implements the growable byte buffer used throughout the
// transport stack: a contiguous region with O(1) append and O(1) prefix
// consume, as used by every session type in net/http/websocket sessions in
// the codebase this worker is descended from.
package buffer

// Buffer is a contiguous, exponentially growing region of octets.
//
// Invariant: consumed <= written <= len(data). Data() returns the window
// [consumed, written). The buffer is not safe for concurrent use; each
// session owns exactly one.
type Buffer struct {
	data     []byte
	written  int
	consumed int
}

const minGrow = 4096

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewSized returns an empty buffer pre-allocated to hold at least capacity
// bytes before its first grow.
func NewSized(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return b.written - b.consumed
}

// Cap returns the total backing capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Data returns the unconsumed window [consumed, written). The returned
// slice aliases the buffer's backing array and is invalidated by the next
// Append or Consume call.
func (b *Buffer) Data() []byte {
	return b.data[b.consumed:b.written]
}

// Append copies p onto the end of the buffer, growing the backing array
// geometrically if needed.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.ensure(len(p))
	copy(b.data[b.written:], p)
	b.written += len(p)
}

// Consume advances the consumed offset by n bytes, which must not exceed
// Len(). Once every byte has been consumed, the buffer is compacted back to
// an empty state so the backing array can be reused.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > b.Len() {
		n = b.Len()
	}
	b.consumed += n
	if b.consumed == b.written {
		b.consumed = 0
		b.written = 0
	}
}

// Reset discards all buffered data without releasing the backing array.
func (b *Buffer) Reset() {
	b.consumed = 0
	b.written = 0
}

// ensure grows the backing array, compacting first, so that at least extra
// bytes can be appended after the current write offset.
func (b *Buffer) ensure(extra int) {
	if b.written+extra <= len(b.data) {
		return
	}

	// Compact: if a prefix has already been consumed, sliding the live
	// window to the front may be enough without reallocating.
	live := b.Len()
	if b.consumed > 0 {
		copy(b.data, b.data[b.consumed:b.written])
		b.consumed = 0
		b.written = live
		if b.written+extra <= len(b.data) {
			return
		}
	}

	needed := b.written + extra
	newCap := len(b.data)
	if newCap < minGrow {
		newCap = minGrow
	}
	for newCap < needed {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.written])
	b.data = grown
}
