package media

import (
	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
)

// RefEncoder aligns variable-size input frames to a fixed frame size via
// an internal sample FIFO and emits packets whose pts is strictly
// increasing, bumping any candidate pts that does not exceed the last
// emitted one to last+frameSize (§4.6.3). The real Opus bitstream is an
// external collaborator this repository does not implement; the packet
// payload emitted here is the aligned s16 PCM itself, carrying the codec
// id so a real encoder could be substituted behind the same interface.
type RefEncoder struct {
	id      string
	codecID string
	sink    func(Packet)

	sampleRate int
	channels   int
	frameSize  int // samples per channel per emitted packet

	fifo        []int16
	lastEmitted int64
	haveEmitted bool

	stage *Stage[Frame]
}

// NewRefEncoder returns an encoder tagged id that emits frameSize-sample
// packets tagged codecID. metrics is optional.
func NewRefEncoder(id, codecID string, sampleRate, channels, frameSize int, log zerolog.Logger, metrics *observability.Metrics) *RefEncoder {
	e := &RefEncoder{
		id:         id,
		codecID:    codecID,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
	}
	e.stage = NewStage("encoder:"+id, 0, log, metrics, e.process)
	return e
}

func (e *RefEncoder) ID() string { return e.id }

func (e *RefEncoder) SetSink(fn func(Packet)) { e.sink = fn }

func (e *RefEncoder) OnData(frame Frame) { e.stage.Push(frame) }

func (e *RefEncoder) Close() { e.stage.Close() }

func (e *RefEncoder) process(in Frame) {
	if in.Samples == nil {
		e.flush(in.TimeBase)
		return
	}

	e.fifo = append(e.fifo, in.Samples...)
	need := e.frameSize * e.channels

	for len(e.fifo) >= need {
		chunk := e.fifo[:need]
		e.fifo = e.fifo[need:]
		e.emit(chunk, in.TimeBase, in.PTS)
	}
}

func (e *RefEncoder) flush(tb TimeBase) {
	if len(e.fifo) > 0 {
		e.emit(e.fifo, tb, e.lastEmitted)
		e.fifo = nil
	}
	if e.sink != nil {
		e.sink(Packet{ID: e.id, TimeBase: tb})
	}
}

func (e *RefEncoder) emit(samples []int16, tb TimeBase, candidatePTS int64) {
	pts := candidatePTS
	if e.haveEmitted && pts <= e.lastEmitted {
		pts = e.lastEmitted + int64(e.frameSize)
	}
	e.lastEmitted = pts
	e.haveEmitted = true

	pkt := Packet{
		ID:       e.id,
		PTS:      pts,
		TimeBase: tb,
		CodecID:  e.codecID,
		Data:     int16LEToBytes(samples),
	}
	if e.sink != nil {
		e.sink(pkt)
	}
}
