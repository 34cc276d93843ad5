// Command voiceagent runs one worker node: it dials a room server as a
// protoo signalling client, decodes/resamples/re-encodes audio per room,
// drives text-to-speech for outbound responses, and serves a local
// control-HTTP endpoint and an optional Prometheus/health sidecar.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runner365/voiceagent/internal/config"
	"github.com/runner365/voiceagent/internal/controlhttp"
	"github.com/runner365/voiceagent/internal/logging"
	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/reactor"
	"github.com/runner365/voiceagent/internal/roommgr"
	"github.com/runner365/voiceagent/internal/tts"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
		os.Exit(1)
	}

	var metrics *observability.Metrics
	var metricsSrv *observability.Server
	if cfg.Metrics.Enable {
		metrics = observability.New()
		metricsSrv = observability.NewServer(cfg.Metrics.Addr, metrics)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.Error().Err(err).Msg("voiceagent: metrics server failed")
			}
		}()
	}

	loop := reactor.New()
	go loop.Run()

	ctrl := controlhttp.New(loop, log)
	if err := ctrl.Listen(fmt.Sprintf("%s:%d", cfg.ControlHTTP.Host, cfg.ControlHTTP.Port)); err != nil {
		log.Error().Err(err).Msg("voiceagent: control http listen failed")
		os.Exit(1)
	}

	// A nil SynthesizerFactory tells the room manager TTS is disabled
	// (tts_config.tts_enable: false): rooms then drop outbound text
	// instead of dialing a synthesizer that was never configured.
	var newSynth roommgr.SynthesizerFactory
	if cfg.TTSConfig.Enable {
		newSynth = func(roomID string) tts.Synthesizer {
			return tts.NewHTTPSynthesizer(tts.HTTPSynthesizerConfig{
				Endpoint:   cfg.TTSConfig.Endpoint,
				APIKey:     cfg.TTSConfig.APIKey,
				VoiceID:    cfg.TTSConfig.VoiceID,
				SampleRate: cfg.TTSConfig.SampleRate,
				Metrics:    metrics,
			})
		}
	}

	mgr := roommgr.New(loop, log, roommgr.Config{
		Host:    cfg.WSServer.Host,
		Port:    cfg.WSServer.Port,
		Subpath: cfg.WSServer.Subpath,
		Secure:  cfg.WSServer.EnableSSL,
	}, newSynth, metrics)
	mgr.Start()

	log.Info().
		Str("ws_server", fmt.Sprintf("%s:%d%s", cfg.WSServer.Host, cfg.WSServer.Port, cfg.WSServer.Subpath)).
		Str("control_http", fmt.Sprintf("%s:%d", cfg.ControlHTTP.Host, cfg.ControlHTTP.Port)).
		Msg("voiceagent: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("voiceagent: shutting down")
	mgr.Stop()
	ctrl.Close()
	if metricsSrv != nil {
		if err := metricsSrv.Stop(5 * time.Second); err != nil {
			log.Warn().Err(err).Msg("voiceagent: metrics server shutdown error")
		}
	}
	loop.Stop()
}
