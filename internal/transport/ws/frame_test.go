package ws

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	payload := []byte("hello world")
	encoded := Encode(OpText, payload, false, [4]byte{})

	dec := NewDecoder()
	frames, err := dec.Feed(encoded)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || frames[0].Opcode != OpText || !bytes.Equal(frames[0].Payload, payload) {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestEncodeDecodeRoundTripMasked(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 200)
	mask := RandomMask()
	encoded := Encode(OpBinary, payload, true, mask)

	dec := NewDecoder()
	frames, err := dec.Feed(encoded)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload, payload) {
		t.Fatalf("round trip mismatch: got %d bytes", len(frames[0].Payload))
	}
}

func TestEncodeExtended16BitLength(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 1000)
	encoded := Encode(OpBinary, payload, false, [4]byte{})

	dec := NewDecoder()
	frames, err := dec.Feed(encoded)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || len(frames[0].Payload) != 1000 {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestDecodeSplitAcrossFeeds(t *testing.T) {
	payload := []byte("split me please")
	encoded := Encode(OpText, payload, false, [4]byte{})

	dec := NewDecoder()
	mid := len(encoded) / 2
	frames, err := dec.Feed(encoded[:mid])
	if err != nil || len(frames) != 0 {
		t.Fatalf("first half produced frames=%v err=%v", frames, err)
	}
	frames, err = dec.Feed(encoded[mid:])
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload, payload) {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestDecodeRejectsReservedOpcode(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.Feed([]byte{0x83, 0x00}) // opcode 3 is reserved
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestDecodeRejectsInvalidUTF8TextFrame(t *testing.T) {
	dec := NewDecoder()
	encoded := Encode(OpText, []byte{0xff, 0xfe, 0xfd}, false, [4]byte{})
	_, err := dec.Feed(encoded)
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestDecodeFragmentedMessageReassembles(t *testing.T) {
	dec := NewDecoder()

	// First fragment: FIN=0, opcode=text, payload="abc"
	frame1 := []byte{0x01, 0x03, 'a', 'b', 'c'}
	// Final fragment: FIN=1, opcode=continuation, payload="def"
	frame2 := []byte{0x80, 0x03, 'd', 'e', 'f'}

	frames, err := dec.Feed(append(frame1, frame2...))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || string(frames[0].Payload) != "abcdef" {
		t.Fatalf("frames = %+v", frames)
	}
}
