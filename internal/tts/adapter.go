package tts

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/media"
	"github.com/runner365/voiceagent/internal/observability"
)

const frameDurationMs = 20

// Adapter wraps a Synthesizer with the queue/worker contract from §4.9: a
// dedicated worker pops one pending text at a time, synthesizes it,
// chunks the result into 20ms frames with a monotonically advancing pts,
// and forwards each frame to the float->Opus sub-pipeline (a filter
// feeding an encoder, per §4.7's outbound path). Synthesizer failure or
// an empty/zero-rate result drops that text and moves on without
// terminating the worker, per the specification's error-recovery
// requirement for this component.
type Adapter struct {
	id    string
	synth Synthesizer
	log   zerolog.Logger

	initOnce sync.Once
	initErr  error

	nextPTS   int64
	taskIndex int64

	sink func(frame media.Frame, taskIndex int64)

	stage *media.Stage[string]
}

// NewAdapter returns an Adapter tagged id, wrapping synth. metrics is
// optional.
func NewAdapter(id string, synth Synthesizer, log zerolog.Logger, metrics *observability.Metrics) *Adapter {
	a := &Adapter{id: id, synth: synth, log: log}
	a.stage = media.NewStage("tts:"+id, 0, log, metrics, a.process)
	return a
}

// SetSink registers the downstream receiver for each chunked float-PCM
// frame, alongside the taskIndex of the text it was synthesized from.
func (a *Adapter) SetSink(fn func(frame media.Frame, taskIndex int64)) { a.sink = fn }

// InputText enqueues text for synthesis. Non-blocking.
func (a *Adapter) InputText(text string) { a.stage.Push(text) }

// Close stops the worker. Any text still queued at the time of Close is
// dropped, matching the pipeline-stage shutdown contract in §4.6.
func (a *Adapter) Close() { a.stage.Close() }

func (a *Adapter) process(text string) {
	if text == "" {
		return
	}

	a.initOnce.Do(func() {
		a.initErr = a.synth.Init()
	})
	if a.initErr != nil {
		a.log.Error().Err(a.initErr).Str("room_tts", a.id).Msg("tts init failed")
		return
	}

	sampleRate, samples, err := a.synth.Synthesize(text)
	if err != nil {
		a.log.Warn().Err(err).Str("room_tts", a.id).Msg("synthesize failed, dropping text")
		return
	}
	if len(samples) == 0 || sampleRate == 0 {
		a.log.Warn().Str("room_tts", a.id).Msg("synthesize returned empty audio, dropping text")
		return
	}

	samplesPerFrame := sampleRate * frameDurationMs / 1000
	if samplesPerFrame <= 0 {
		return
	}

	// taskIndex advances once per text item that actually produced audio,
	// matching the upstream pcm-batch counter this mirrors: a dropped
	// (empty or failed) synthesis never consumes an index.
	taskIndex := atomic.AddInt64(&a.taskIndex, 1)

	for i := 0; i+samplesPerFrame <= len(samples); i += samplesPerFrame {
		chunk := samples[i : i+samplesPerFrame]
		a.nextPTS += int64(samplesPerFrame)

		frame := media.Frame{
			ID:         a.id,
			PTS:        a.nextPTS,
			TimeBase:   media.TimeBase{Num: 1, Den: int64(sampleRate)},
			SampleRate: sampleRate,
			Channels:   1,
			Samples:    float32ToInt16(chunk),
		}
		if a.sink != nil {
			a.sink(frame, taskIndex)
		}
	}
}

func float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
