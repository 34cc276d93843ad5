package media

import (
	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
)

// RefFilter resamples and rechannels s16 PCM using linear interpolation,
// the same technique as the teacher's resample() helper, generalized to
// also duplicate/average channels when the channel count changes. It reads
// the sample rate and channel count of each input frame as it arrives, so
// it needs no input format at construction; the room builds its inbound
// filter lazily on the first decoded frame and its outbound filter on the
// first text.
type RefFilter struct {
	id   string
	sink func(Frame)

	outRate     int
	outChannels int

	stage *Stage[Frame]
}

// NewRefFilter returns a filter tagged id that converts every input frame
// to outRate/outChannels s16 PCM. metrics is optional.
func NewRefFilter(id string, outRate, outChannels int, log zerolog.Logger, metrics *observability.Metrics) *RefFilter {
	f := &RefFilter{id: id, outRate: outRate, outChannels: outChannels}
	f.stage = NewStage("filter:"+id, 0, log, metrics, f.process)
	return f
}

func (f *RefFilter) ID() string { return f.id }

func (f *RefFilter) SetSink(fn func(Frame)) { f.sink = fn }

func (f *RefFilter) OnData(frame Frame) { f.stage.Push(frame) }

func (f *RefFilter) Close() { f.stage.Close() }

func (f *RefFilter) process(in Frame) {
	if in.Samples == nil {
		if f.sink != nil {
			f.sink(Frame{ID: f.id, PTS: in.PTS, TimeBase: in.TimeBase})
		}
		return
	}

	mono := downmixToMono(in.Samples, in.Channels)
	resampled := resampleLinear(mono, in.SampleRate, f.outRate)
	out := upmixFromMono(resampled, f.outChannels)

	outFrame := Frame{
		ID:         f.id,
		PTS:        in.PTS,
		TimeBase:   in.TimeBase,
		SampleRate: f.outRate,
		Channels:   f.outChannels,
		Samples:    out,
	}
	if f.sink != nil {
		f.sink(outFrame)
	}
}

// downmixToMono averages interleaved channels down to one. A channels
// value of 1 is a no-op copy.
func downmixToMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// upmixFromMono duplicates a mono stream across channels. A channels
// value of 1 is a no-op copy.
func upmixFromMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)*channels)
	for i, s := range samples {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
	return out
}

// resampleLinear performs simple linear-interpolation resampling, the
// same algorithm as the teacher's internal/audio resample helper.
func resampleLinear(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}
