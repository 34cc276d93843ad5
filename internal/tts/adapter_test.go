package tts

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/media"
)

type fakeSynth struct {
	mu        sync.Mutex
	responses map[string]struct {
		rate    int
		samples []float32
		err     error
	}
	initErr error
}

func (f *fakeSynth) Init() error { return f.initErr }

func (f *fakeSynth) Synthesize(text string) (int, []float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[text]
	if !ok {
		return 0, nil, fmt.Errorf("no canned response for %q", text)
	}
	return r.rate, r.samples, r.err
}

func TestAdapterChunksIntoTwentyMsFramesWithMonotonicPTS(t *testing.T) {
	synth := &fakeSynth{responses: map[string]struct {
		rate    int
		samples []float32
		err     error
	}{
		"hello": {rate: 16000, samples: make([]float32, 16000*2/10)}, // 200ms of audio
	}}

	a := NewAdapter("room1", synth, zerolog.Nop(), nil)

	var mu sync.Mutex
	var frames []media.Frame
	var taskIndices []int64
	a.SetSink(func(f media.Frame, taskIndex int64) {
		mu.Lock()
		frames = append(frames, f)
		taskIndices = append(taskIndices, taskIndex)
		mu.Unlock()
	})

	a.InputText("hello")

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n >= 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only got %d frames before timeout", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 10 { // 200ms / 20ms
		t.Fatalf("got %d frames, want 10", len(frames))
	}
	var last int64 = -1
	for i, f := range frames {
		if f.PTS <= last {
			t.Fatalf("frame %d pts=%d not strictly greater than %d", i, f.PTS, last)
		}
		last = f.PTS
		if taskIndices[i] != 1 {
			t.Fatalf("frame %d taskIndex = %d, want 1 (same text)", i, taskIndices[i])
		}
	}
}

func TestAdapterDropsEmptySynthesisWithoutStopping(t *testing.T) {
	synth := &fakeSynth{responses: map[string]struct {
		rate    int
		samples []float32
		err     error
	}{
		"silence": {rate: 16000, samples: nil},
		"hello":   {rate: 16000, samples: make([]float32, 320)}, // one 20ms frame
	}}

	a := NewAdapter("room2", synth, zerolog.Nop(), nil)

	var mu sync.Mutex
	var got int
	a.SetSink(func(media.Frame, int64) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	a.InputText("silence")
	a.InputText("hello")

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := got
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker appears to have stopped after the empty synthesis")
		case <-time.After(5 * time.Millisecond):
		}
	}
	a.Close()
}
