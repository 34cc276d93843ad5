package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiceagent.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForOmittedKeys(t *testing.T) {
	path := writeTemp(t, `
ws_server:
  port: 9090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log.level = %q, want default info", cfg.Log.Level)
	}
	if cfg.WSServer.Host != "0.0.0.0" {
		t.Fatalf("ws_server.host = %q, want default 0.0.0.0", cfg.WSServer.Host)
	}
	if cfg.WSServer.Port != 9090 {
		t.Fatalf("ws_server.port = %d, want overridden 9090", cfg.WSServer.Port)
	}
	if cfg.WSServer.Subpath != "/ws" {
		t.Fatalf("ws_server.subpath = %q, want default /ws", cfg.WSServer.Subpath)
	}
	if cfg.ControlHTTP.Port != 9931 {
		t.Fatalf("control_http.port = %d, want default 9931", cfg.ControlHTTP.Port)
	}
	if !cfg.Metrics.Enable || cfg.Metrics.Addr == "" {
		t.Fatalf("metrics defaults not applied: %+v", cfg.Metrics)
	}
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeTemp(t, `
log:
  level: verbose
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid log.level")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/voiceagent.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRequiresEndpointWhenTTSEnabled(t *testing.T) {
	path := writeTemp(t, `
tts_config:
  tts_enable: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when tts_enable is true without an endpoint")
	}
}

func TestLoadAcceptsFullyPopulatedConfig(t *testing.T) {
	path := writeTemp(t, `
log:
  level: debug
  file: /tmp/voiceagent.log
ws_server:
  host: 127.0.0.1
  port: 8443
  enable_ssl: true
  subpath: /signalling
tts_config:
  tts_enable: true
  endpoint: https://tts.example.com/v1/synthesize
  api_key: secret
  voice_id: default
  sample_rate: 24000
  num_threads: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WSServer.Port != 8443 || !cfg.WSServer.EnableSSL {
		t.Fatalf("ws_server not parsed correctly: %+v", cfg.WSServer)
	}
	if cfg.TTSConfig.Endpoint == "" || cfg.TTSConfig.SampleRate != 24000 {
		t.Fatalf("tts_config not parsed correctly: %+v", cfg.TTSConfig)
	}
}
