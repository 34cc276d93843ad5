// Package tts implements the TTS adapter (§4.9): a per-room text queue
// feeding a lazily-initialized synthesizer, chunked into 20ms frames and
// handed to the float->Opus sub-pipeline described in §4.7.
package tts

// Synthesizer is the opaque external collaborator named in §6's external
// interfaces (`TTS.Init(config)` / `TTS.Synthesize(text) -> (sample_rate,
// float_samples)`).
type Synthesizer interface {
	Init() error
	Synthesize(text string) (sampleRate int, samples []float32, err error)
}
