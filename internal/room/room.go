// Package room implements the per-user media state machine (§4.7): lazy
// pipeline construction on first traffic, a monotonic synthetic input
// clock, and the two data flows — inbound Opus-to-PCM and outbound
// text-to-Opus — that a room drives through internal/media and
// internal/tts.
package room

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/media"
	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/tts"
)

const (
	// codecOpus tags packets/frames that carry (or, in this reference
	// pipeline, stand in for) Opus-encoded audio.
	codecOpus = "opus"

	inboundSampleRate  = 48000
	inboundChannels    = 1
	outboundFilterRate = 48000
	outboundChannels   = 2
	outboundFrameSize  = 960 // 20ms @ 48kHz, per §4.7.2's "960-sample frames"

	inputFrameMs  = 20
	livenessMs    = 60000
	decodedRate   = 16000
	decodedChans  = 1
)

// Notification is one outbound message produced by a room's pipeline
// workers, destined for the signalling client. It mirrors the outbound
// queue entry shape from §3 ("Outbound notification queue").
type Notification struct {
	Method    string
	RoomID    string
	UserID    string
	MsgB64    string
	TaskIndex int64 // only meaningful when Method == "tts_opus_data"
}

// Sink receives notifications produced by a room's workers. The room
// manager supplies an implementation that pushes onto its mutex-guarded
// outbound queue (§4.8).
type Sink func(Notification)

// Room is the per-room media state machine described in §4.7. All public
// methods are safe to call concurrently; the heavy lifting happens on
// each pipeline stage's own worker goroutine.
type Room struct {
	id      string
	log     zerolog.Logger
	out     Sink
	metrics *observability.Metrics

	// synthFactory is nil when TTS is disabled (tts_config.tts_enable:
	// false); OnText then drops outbound text instead of constructing an
	// adapter around a synthesizer that was never meant to run.
	synthFactory func() tts.Synthesizer

	correlationID string

	mu               sync.Mutex
	closed           bool
	userID           string
	lastInputMs      int64
	pendingTaskIndex int64

	decoder media.Decoder
	filter  media.Filter

	ttsAdapter *tts.Adapter
	ttsFilter  media.Filter
	ttsEncoder media.Encoder
}

// New returns a Room identified by id. synthFactory is called at most
// once, lazily, the first time OnText is invoked, matching the "lazy
// pipeline construction" requirement for both the inbound decoder and
// the outbound TTS adapter. A nil synthFactory disables the outbound
// text->speech flow entirely: OnText becomes a no-op. metrics is
// optional.
func New(id string, synthFactory func() tts.Synthesizer, out Sink, log zerolog.Logger, metrics *observability.Metrics) *Room {
	cid := newCorrelationID()
	return &Room{
		id:            id,
		correlationID: cid,
		synthFactory:  synthFactory,
		out:           out,
		metrics:       metrics,
		log:           log.With().Str("room_id", id).Str("correlation_id", cid).Logger(),
		// last_input_ms starts at wall-clock construction time, not zero,
		// so IsAlive has something sane to compare against before the
		// first packet arrives. room.cpp's constructor does the same.
		lastInputMs: time.Now().UnixMilli(),
	}
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// OnOpus handles one inbound Opus packet from userID, per §4.7's inbound
// flow. The user_id last-writer-wins assignment happens before any
// decoder construction or dispatch, regardless of whether this packet is
// ultimately processed successfully — mirroring room.cpp's
// OnHanldeOpusData, which sets user_id_ unconditionally up front.
func (r *Room) OnOpus(userID string, opusBytes []byte) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.userID = userID

	pts := r.lastInputMs * inboundSampleRate / 1000
	r.lastInputMs += inputFrameMs

	if r.decoder == nil {
		r.decoder = media.NewRefDecoder(r.id, inboundSampleRate, inboundChannels, r.log, r.metrics)
		r.decoder.SetSink(r.onDecodedFrame)
	}
	dec := r.decoder
	r.mu.Unlock()

	if len(opusBytes) == 0 {
		return
	}

	dec.OnData(media.Packet{
		ID:       r.id,
		PTS:      pts,
		TimeBase: media.TimeBase{Num: 1, Den: inboundSampleRate},
		CodecID:  codecOpus,
		Data:     opusBytes,
	})
}

// onDecodedFrame lazily builds the decode-side filter to match the first
// decoded frame's format (§4.7 inbound step 4) and forwards to it.
func (r *Room) onDecodedFrame(f media.Frame) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.filter == nil {
		r.filter = media.NewRefFilter(r.id, decodedRate, decodedChans, r.log, r.metrics)
		r.filter.SetSink(r.onFilteredFrame)
	}
	filt := r.filter
	r.mu.Unlock()

	filt.OnData(f)
}

// onFilteredFrame serializes a signed-16 mono 16kHz frame to raw PCM,
// base64-encodes it, and enqueues a pcm_data notification (§4.7 inbound
// step 5).
func (r *Room) onFilteredFrame(f media.Frame) {
	if f.Samples == nil {
		return
	}
	r.mu.Lock()
	userID := r.userID
	r.mu.Unlock()

	r.emit(Notification{
		Method: "pcm_data",
		RoomID: r.id,
		UserID: userID,
		MsgB64: base64.StdEncoding.EncodeToString(int16LEToBytes(f.Samples)),
	})
}

// OnText handles one outbound synthesis request for userID, per §4.7's
// outbound flow: instantiate the per-room TTS adapter and its float->Opus
// sub-pipeline lazily, then enqueue the text.
func (r *Room) OnText(userID, text string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.userID = userID

	if r.synthFactory == nil {
		// TTS is disabled (tts_config.tts_enable: false); drop outbound
		// text rather than building an adapter around a synthesizer that
		// was never configured.
		r.mu.Unlock()
		return
	}

	if r.ttsAdapter == nil {
		synth := r.synthFactory()
		r.ttsEncoder = media.NewRefEncoder(r.id, codecOpus, outboundFilterRate, outboundChannels, outboundFrameSize, r.log, r.metrics)
		r.ttsEncoder.SetSink(r.onTTSPacket)

		r.ttsFilter = media.NewRefFilter(r.id, outboundFilterRate, outboundChannels, r.log, r.metrics)
		r.ttsFilter.SetSink(r.ttsEncoder.OnData)

		r.ttsAdapter = tts.NewAdapter(r.id, synth, r.log, r.metrics)
		r.ttsAdapter.SetSink(r.onTTSFrame)
	}
	adapter := r.ttsAdapter
	r.mu.Unlock()

	adapter.InputText(text)
}

// onTTSFrame receives a chunked float-derived frame from the TTS adapter
// and a taskIndex, stashes the taskIndex for the packets it produces, and
// forwards the frame into the resample/reformat filter (§4.7 outbound
// step 2).
func (r *Room) onTTSFrame(f media.Frame, taskIndex int64) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pendingTaskIndex = taskIndex
	filt := r.ttsFilter
	r.mu.Unlock()

	if filt != nil {
		filt.OnData(f)
	}
}

// onTTSPacket base64-encodes an encoded Opus packet and enqueues a
// tts_opus_data notification carrying the taskIndex of the text it came
// from (§4.7 outbound step 3).
func (r *Room) onTTSPacket(pkt media.Packet) {
	if pkt.Data == nil {
		return
	}
	r.mu.Lock()
	userID := r.userID
	taskIndex := r.pendingTaskIndex
	r.mu.Unlock()

	r.emit(Notification{
		Method:    "tts_opus_data",
		RoomID:    r.id,
		UserID:    userID,
		MsgB64:    base64.StdEncoding.EncodeToString(pkt.Data),
		TaskIndex: taskIndex,
	})
}

func (r *Room) emit(n Notification) {
	if r.out != nil {
		r.out(n)
	}
}

// IsAlive reports whether this room has received inbound audio recently
// enough to stay open: now - last_input_ms < 60000 (§4.7 "Liveness").
func (r *Room) IsAlive(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.UnixMilli()-r.lastInputMs < livenessMs
}

// Close cascades shutdown through the pipeline in destructor order —
// decoder, filter, TTS adapter, encoder — per §5's cancellation summary,
// and marks the room closed so subsequent OnOpus/OnText calls no-op.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	dec, filt, adapter, ttsFilter, enc := r.decoder, r.filter, r.ttsAdapter, r.ttsFilter, r.ttsEncoder
	r.mu.Unlock()

	if dec != nil {
		dec.Close()
	}
	if filt != nil {
		filt.Close()
	}
	if adapter != nil {
		adapter.Close()
	}
	if ttsFilter != nil {
		ttsFilter.Close()
	}
	if enc != nil {
		enc.Close()
	}
}

func int16LEToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// newCorrelationID returns a fresh correlation id for diagnostics, e.g.
// for tagging a room's lifetime in logs across reconnects.
func newCorrelationID() string { return uuid.NewString() }
