// Package media implements the audio pipeline primitives (§4.6): a
// decoder, a resample/rechannel filter, and an encoder, each a worker-per-
// stage actor over a bounded FIFO (Stage). The actual codec algorithms
// (Opus decode/encode, high-quality resampling) are treated as opaque,
// pluggable collaborators per the specification's external-interface
// section — Decoder/Filter/Encoder are Go interfaces, and this package
// ships a reference implementation grounded on linear-interpolation
// resampling so the rest of the worker has something real to run against.
package media

// TimeBase expresses a rational seconds-per-tick, e.g. {1, 48000} for a
// 48kHz PCM clock.
type TimeBase struct {
	Num int64
	Den int64
}

// Unset reports whether the time base was never assigned.
func (t TimeBase) Unset() bool { return t.Den == 0 }

// Frame is one decoded or filtered block of interleaved signed-16 PCM
// samples.
type Frame struct {
	ID         string
	PTS        int64
	TimeBase   TimeBase
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved; nil Samples is a flush signal
}

// Packet is one compressed (or, for the reference codec, pass-through)
// audio packet.
type Packet struct {
	ID       string
	PTS      int64
	TimeBase TimeBase
	CodecID  string
	Data     []byte // nil Data is a flush signal
}

// Decoder lazily opens a codec on first input and emits decoded frames.
type Decoder interface {
	ID() string
	SetSink(func(Frame))
	OnData(Packet)
	Close()
}

// Filter resamples/rechannels/reformats frames, emitting zero or more
// output frames per input frame.
type Filter interface {
	ID() string
	SetSink(func(Frame))
	OnData(Frame)
	Close()
}

// Encoder aligns variable-size input frames to a fixed codec frame size
// and emits packets with strictly increasing timestamps.
type Encoder interface {
	ID() string
	SetSink(func(Packet))
	OnData(Frame)
	Close()
}
