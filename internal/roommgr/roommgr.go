// Package roommgr implements the room manager (§4.8): it owns the
// signalling client and the room registry, drives both from a single
// 10ms reactor tick, and routes inbound notifications to the room they
// address, creating rooms lazily on first traffic.
package roommgr

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/reactor"
	"github.com/runner365/voiceagent/internal/room"
	"github.com/runner365/voiceagent/internal/signalling/protoo"
	"github.com/runner365/voiceagent/internal/tts"
)

const (
	tickInterval = 10 * time.Millisecond
	echoInterval = 15000 * time.Millisecond
)

// SynthesizerFactory builds a fresh Synthesizer for a room's TTS adapter.
// The manager calls this once per room, lazily, the first time that room
// receives outbound text — never eagerly for rooms that only carry audio.
// A nil SynthesizerFactory means TTS is disabled (tts_config.tts_enable:
// false): rooms are then built with a nil per-room factory and drop
// outbound text instead of dialing a synthesizer.
type SynthesizerFactory func(roomID string) tts.Synthesizer

// Manager owns the protoo client and the room_id -> Room registry
// described in §3 and §4.8. All registry mutation happens on the reactor
// loop goroutine, driven by the manager's own 10ms tick.
type Manager struct {
	loop     *reactor.Loop
	log      zerolog.Logger
	client   *protoo.Client
	newSynth SynthesizerFactory
	metrics  *observability.Metrics

	mu         sync.Mutex
	rooms      map[string]*room.Room
	lastEchoMs int64

	outMu sync.Mutex
	outQ  []room.Notification

	cancelTick reactor.Cancel
}

// Config bundles the signalling endpoint the manager dials.
type Config struct {
	Host    string
	Port    uint16
	Subpath string
	Secure  bool
}

// New returns a Manager that will dial cfg on loop's reactor and build
// per-room synthesizers via newSynth. metrics is optional; when non-nil
// the manager keeps voiceagent_active_rooms and the room/signalling
// counters up to date as it runs.
func New(loop *reactor.Loop, log zerolog.Logger, cfg Config, newSynth SynthesizerFactory, metrics *observability.Metrics) *Manager {
	m := &Manager{
		loop:     loop,
		log:      log,
		newSynth: newSynth,
		metrics:  metrics,
		rooms:    make(map[string]*room.Room),
	}
	m.client = protoo.New(loop, log, cfg.Host, cfg.Port, cfg.Subpath, cfg.Secure, protoo.Callbacks{
		OnConnected:    m.onConnected,
		OnNotification: m.onNotification,
		OnClosed:       m.onClosed,
	}, metrics)
	return m
}

// Start arms the 10ms tick described in §4.8. Call once.
func (m *Manager) Start() {
	m.cancelTick = m.loop.Schedule(tickInterval, func() bool {
		m.tick()
		return true
	})
}

// Stop cancels the tick and cascade-closes every room concurrently,
// waiting for all of them to finish shutting down their pipeline
// workers before returning — each room's Close can block briefly
// joining its own worker goroutines, so closing the registry
// sequentially would serialize N such joins for no reason.
func (m *Manager) Stop() {
	if m.cancelTick != nil {
		m.cancelTick()
	}
	m.mu.Lock()
	rooms := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*room.Room)
	m.mu.Unlock()

	var g errgroup.Group
	for _, r := range rooms {
		r := r
		g.Go(func() error {
			r.Close()
			return nil
		})
	}
	_ = g.Wait()
}

// tick performs the four steps of §4.8's periodic tick: connect-throttle,
// echo-throttle, outbound drain, liveness sweep.
func (m *Manager) tick() {
	if !m.client.IsConnected() {
		m.client.AsyncConnect()
	} else {
		now := nowMs()
		m.mu.Lock()
		due := now-m.lastEchoMs >= int64(echoInterval/time.Millisecond)
		if due {
			m.lastEchoMs = now
		}
		m.mu.Unlock()
		if due {
			if err := m.client.SendEcho(); err != nil {
				m.log.Warn().Err(err).Msg("roommgr: echo send failed")
			}
		}
	}

	m.drainOutbound()
	m.sweepDeadRooms()
}

func (m *Manager) onConnected() {
	m.log.Info().Msg("roommgr: signalling connected")
}

func (m *Manager) onClosed(code int, reason string) {
	m.log.Warn().Int("code", code).Str("reason", reason).Msg("roommgr: signalling closed")
}

type notificationEnvelope struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type opusDataPayload struct {
	RoomID     string `json:"roomId"`
	UserID     string `json:"userId"`
	OpusBase64 string `json:"opus_base64"`
}

type responseTextPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// onNotification routes an inbound signalling notification per §4.8's
// message-routing table, dropping anything that fails the validation
// rules it specifies (non-empty roomId/userId, non-empty decoded opus).
func (m *Manager) onNotification(text string) {
	var env notificationEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		m.log.Warn().Err(err).Msg("roommgr: malformed notification")
		return
	}

	switch env.Method {
	case "opus_data":
		var p opusDataPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.log.Warn().Err(err).Msg("roommgr: malformed opus_data")
			return
		}
		if p.RoomID == "" || p.UserID == "" {
			m.log.Warn().Msg("roommgr: opus_data missing roomId/userId, dropping")
			return
		}
		opusBytes, err := base64.StdEncoding.DecodeString(p.OpusBase64)
		if err != nil || len(opusBytes) == 0 {
			m.log.Warn().Msg("roommgr: opus_data empty/undecodable payload, dropping")
			return
		}
		if m.metrics != nil {
			m.metrics.SignallingNotificationsTotal.WithLabelValues(env.Method, "in").Inc()
		}
		m.roomFor(p.RoomID).OnOpus(p.UserID, opusBytes)

	case "response.text":
		var p responseTextPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.log.Warn().Err(err).Msg("roommgr: malformed response.text")
			return
		}
		if p.RoomID == "" || p.UserID == "" {
			m.log.Warn().Msg("roommgr: response.text missing roomId/userId, dropping")
			return
		}
		if m.metrics != nil {
			m.metrics.SignallingNotificationsTotal.WithLabelValues(env.Method, "in").Inc()
		}
		m.roomFor(p.RoomID).OnText(p.UserID, p.Text)

	default:
		m.log.Warn().Str("method", env.Method).Msg("roommgr: unknown notification method, dropping")
	}
}

// roomFor looks up or creates the room identified by id (§3: "created
// lazily by the room manager on first traffic referencing room_id"). A
// nil newSynth (TTS disabled) is threaded through as a nil per-room
// factory rather than a closure wrapping a nil function value.
func (m *Manager) roomFor(id string) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if ok {
		return r
	}
	var factory func() tts.Synthesizer
	if m.newSynth != nil {
		factory = func() tts.Synthesizer { return m.newSynth(id) }
	}
	r = room.New(id, factory, m.enqueue, m.log, m.metrics)
	m.rooms[id] = r
	if m.metrics != nil {
		m.metrics.RoomsCreatedTotal.Inc()
		m.metrics.ActiveRooms.Set(float64(len(m.rooms)))
	}
	return r
}

// enqueue appends a room-produced notification to the FIFO outbound
// queue (§3's "Outbound notification queue"), drained wholesale on the
// next tick.
func (m *Manager) enqueue(n room.Notification) {
	m.outMu.Lock()
	m.outQ = append(m.outQ, n)
	m.outMu.Unlock()
}

// drainOutbound empties the outbound queue and forwards each entry as a
// signalling notification, per §4.8 step 3. The drain is total: anything
// enqueued after this call starts waits for the next tick.
func (m *Manager) drainOutbound() {
	m.outMu.Lock()
	pending := m.outQ
	m.outQ = nil
	m.outMu.Unlock()

	for _, n := range pending {
		payload := map[string]interface{}{
			"ts":     nowMs(),
			"roomId": n.RoomID,
			"userId": n.UserID,
			"msg":    n.MsgB64,
		}
		if n.Method == "tts_opus_data" {
			payload["taskIndex"] = n.TaskIndex
		}
		data, err := json.Marshal(payload)
		if err != nil {
			m.log.Error().Err(err).Msg("roommgr: failed to marshal outbound notification")
			continue
		}
		if err := m.client.Notification(n.Method, data); err != nil {
			m.log.Warn().Err(err).Str("method", n.Method).Msg("roommgr: outbound notification dropped, not connected")
			continue
		}
		if m.metrics != nil {
			m.metrics.SignallingNotificationsTotal.WithLabelValues(n.Method, "out").Inc()
		}
	}
}

// sweepDeadRooms evicts and cascades-closes every room whose
// IsAlive reports false, per §4.7's liveness rule.
func (m *Manager) sweepDeadRooms() {
	now := time.Now()

	m.mu.Lock()
	var dead []*room.Room
	for id, r := range m.rooms {
		if !r.IsAlive(now) {
			dead = append(dead, r)
			delete(m.rooms, id)
		}
	}
	if m.metrics != nil && len(dead) > 0 {
		m.metrics.ActiveRooms.Set(float64(len(m.rooms)))
	}
	m.mu.Unlock()

	for _, r := range dead {
		m.log.Info().Str("room_id", r.ID()).Msg("roommgr: evicting idle room")
		r.Close()
		if m.metrics != nil {
			m.metrics.RoomsEvictedTotal.Inc()
		}
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
