package media

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
)

// RefDecoder is the reference Decoder: it lazily "opens" on the first
// packet's codec id and treats the packet payload as already-linear s16
// PCM, the honest reflection of the specification's stance that the real
// codec (Opus) is an external collaborator this repository does not
// implement. Output frames inherit the input packet's time base when the
// decoder has none configured.
type RefDecoder struct {
	id         string
	sink       func(Frame)
	sampleRate int
	channels   int

	mu      sync.Mutex
	codecID string
	opened  bool

	stage *Stage[Packet]
}

// NewRefDecoder returns a decoder tagged id, producing frames at
// sampleRate/channels once opened. metrics is optional.
func NewRefDecoder(id string, sampleRate, channels int, log zerolog.Logger, metrics *observability.Metrics) *RefDecoder {
	d := &RefDecoder{id: id, sampleRate: sampleRate, channels: channels}
	d.stage = NewStage("decoder:"+id, 0, log, metrics, d.decode)
	return d
}

func (d *RefDecoder) ID() string { return d.id }

func (d *RefDecoder) SetSink(fn func(Frame)) { d.sink = fn }

func (d *RefDecoder) OnData(pkt Packet) { d.stage.Push(pkt) }

func (d *RefDecoder) Close() { d.stage.Close() }

func (d *RefDecoder) decode(pkt Packet) {
	d.mu.Lock()
	if !d.opened {
		d.codecID = pkt.CodecID
		d.opened = true
	}
	d.mu.Unlock()

	if pkt.Data == nil {
		if d.sink != nil {
			d.sink(Frame{ID: d.id, PTS: pkt.PTS, TimeBase: pkt.TimeBase})
		}
		return
	}

	samples := bytesToInt16LE(pkt.Data)
	tb := pkt.TimeBase
	frame := Frame{
		ID:         d.id,
		PTS:        pkt.PTS,
		TimeBase:   tb,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Samples:    samples,
	}
	if d.sink != nil {
		d.sink(frame)
	}
}

func bytesToInt16LE(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

func int16LEToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
