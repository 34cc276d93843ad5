package tts

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/resilience"
)

// HTTPSynthesizerConfig configures the reference HTTP-backed synthesizer.
// It mirrors the shape of the external interfaces table in §6
// (tts_config.*), generalized to an HTTP endpoint instead of a local
// acoustic model/vocoder pair, since no local TTS engine ships in this
// repository.
type HTTPSynthesizerConfig struct {
	Endpoint   string
	APIKey     string
	VoiceID    string
	SampleRate int
	Timeout    time.Duration

	// Metrics is optional; when set, every Synthesize call updates its
	// request/latency/circuit-breaker-state collectors.
	Metrics *observability.Metrics
}

// HTTPSynthesizer adapts an HTTP text-to-speech endpoint to the
// Synthesizer contract. Its request/response handling follows the
// teacher's Cartesia client (JSON request body, raw PCM response body),
// wrapped with a circuit breaker and retry so a flaky endpoint degrades
// gracefully instead of stalling the adapter's worker.
type HTTPSynthesizer struct {
	cfg        HTTPSynthesizerConfig
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewHTTPSynthesizer returns a synthesizer targeting cfg.Endpoint.
func NewHTTPSynthesizer(cfg HTTPSynthesizerConfig) *HTTPSynthesizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPSynthesizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.NewCircuitBreaker("tts-http", 5, 30*time.Second),
	}
}

type synthRequest struct {
	Text         string `json:"text"`
	VoiceID      string `json:"voice_id"`
	OutputFormat string `json:"output_format"`
	SampleRate   int    `json:"sample_rate"`
}

// Init validates the configuration; the HTTP endpoint itself has no
// connection-oriented setup to perform.
func (s *HTTPSynthesizer) Init() error {
	if s.cfg.Endpoint == "" {
		return fmt.Errorf("tts: endpoint not configured")
	}
	return nil
}

// Synthesize posts text to the configured endpoint and returns the raw
// PCM response as float32 samples, retrying transient failures through
// the circuit breaker.
func (s *HTTPSynthesizer) Synthesize(text string) (int, []float32, error) {
	start := time.Now()
	var body []byte
	err := resilience.Retry(func() error {
		return s.breaker.Call(func() error {
			b, callErr := s.call(text)
			if callErr != nil {
				return callErr
			}
			body = b
			return nil
		})
	}, nil)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.TTSLatencySeconds.Observe(time.Since(start).Seconds())
		s.cfg.Metrics.CircuitBreakerState.WithLabelValues("tts-http").Set(float64(s.breaker.State()))
		status := "success"
		if err != nil {
			status = "error"
		}
		s.cfg.Metrics.TTSRequestsTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		return 0, nil, err
	}

	return s.cfg.SampleRate, pcm16LEToFloat32(body), nil
}

func (s *HTTPSynthesizer) call(text string) ([]byte, error) {
	reqBody, err := json.Marshal(synthRequest{
		Text:         text,
		VoiceID:      s.cfg.VoiceID,
		OutputFormat: "pcm_s16le",
		SampleRate:   s.cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("x-api-key", s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: endpoint returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func pcm16LEToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
