package config

import (
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"OPENAI_API_KEY", "OPENAI_API_BASE", "OPENAI_REALTIME_MODEL",
	"REALTALK_ICE_SERVERS", "REALTALK_FFMPEG_COMMAND", "REALTALK_AUDIO_INPUT_FORMAT",
	"REALTALK_AUDIO_INPUT_DEVICE", "PULSE_SOURCE", "REALTALK_SAMPLE_RATE",
	"REALTALK_ECHO_CANCELLATION", "REALTALK_ECHO_CANCEL_DEVICE", "REALTALK_NOISE_SUPPRESSION", "REALTALK_AUTO_GAIN",
	"REALTALK_GREETING", "REALTALK_GREETING_INSTRUCTIONS", "REALTALK_RECORD_AGENT_AUDIO",
	"REALTALK_ARCHIVE", "REALTALK_REDIS_URL", "REALTALK_ARCHIVE_TTL",
	"REALTALK_ADDR", "REALTALK_LOG_LEVEL", "REALTALK_LOG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.OpenAI.APIBaseURL != "https://api.openai.com/v1" || cfg.OpenAI.Model != "gpt-4o-realtime-preview" {
		t.Fatalf("unexpected openai config: %+v", cfg.OpenAI)
	}
	if len(cfg.RTC.ICEServers) != 1 || cfg.RTC.ICEServers[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected ICE servers: %v", cfg.RTC.ICEServers)
	}
	if cfg.Media != (MediaConfig{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true, SampleRate: 44100}) {
		t.Fatalf("unexpected media defaults: %+v", cfg.Media)
	}
	if cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.InputFormat != "pulse" || cfg.Audio.InputDevice != "default" || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if !cfg.Session.Greeting || !strings.Contains(cfg.Session.GreetingInstructions, "greet") {
		t.Fatalf("unexpected greeting defaults: %+v", cfg.Session)
	}
	if cfg.Archive.Store != "memory" || cfg.Archive.TTL != 24*time.Hour {
		t.Fatalf("unexpected archive defaults: %+v", cfg.Archive)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8787" || cfg.Log.Level != "info" || cfg.Log.File != "" {
		t.Fatalf("unexpected http/log defaults: %+v %+v", cfg.HTTP, cfg.Log)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_BASE", "https://example.com/v1")
	t.Setenv("OPENAI_REALTIME_MODEL", "gpt-realtime")
	t.Setenv("REALTALK_ICE_SERVERS", "stun:a:3478, ,turn:b:3478")
	t.Setenv("REALTALK_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("REALTALK_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("PULSE_SOURCE", "ignored")
	t.Setenv("REALTALK_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("REALTALK_SAMPLE_RATE", "48000")
	t.Setenv("REALTALK_ECHO_CANCELLATION", "off")
	t.Setenv("REALTALK_ECHO_CANCEL_DEVICE", "echo-cancel-source")
	t.Setenv("REALTALK_NOISE_SUPPRESSION", "no")
	t.Setenv("REALTALK_AUTO_GAIN", "0")
	t.Setenv("REALTALK_GREETING", "false")
	t.Setenv("REALTALK_GREETING_INSTRUCTIONS", "Say hi.")
	t.Setenv("REALTALK_RECORD_AGENT_AUDIO", "/tmp/agent")
	t.Setenv("REALTALK_ARCHIVE", "Redis")
	t.Setenv("REALTALK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REALTALK_ARCHIVE_TTL", "90m")
	t.Setenv("REALTALK_ADDR", ":9000")
	t.Setenv("REALTALK_LOG_LEVEL", "debug")
	t.Setenv("REALTALK_LOG_FILE", "/tmp/realtalk.log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.OpenAI != (OpenAIConfig{APIKey: "sk-test", APIBaseURL: "https://example.com/v1", Model: "gpt-realtime"}) {
		t.Fatalf("unexpected openai config: %+v", cfg.OpenAI)
	}
	if len(cfg.RTC.ICEServers) != 2 || cfg.RTC.ICEServers[1] != "turn:b:3478" || cfg.RTC.RecordDir != "/tmp/agent" {
		t.Fatalf("unexpected rtc config: %+v", cfg.RTC)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" || cfg.Audio.EchoCancelDevice != "echo-cancel-source" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Media != (MediaConfig{SampleRate: 48000}) {
		t.Fatalf("unexpected media config: %+v", cfg.Media)
	}
	if cfg.Session.Greeting || cfg.Session.GreetingInstructions != "Say hi." {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Archive.Store != "redis" || cfg.Archive.TTL != 90*time.Minute {
		t.Fatalf("unexpected archive config: %+v", cfg.Archive)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.Log.Level != "debug" || cfg.Log.File != "/tmp/realtalk.log" {
		t.Fatalf("unexpected http/log config: %+v %+v", cfg.HTTP, cfg.Log)
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("REALTALK_SAMPLE_RATE", "bad")
	t.Setenv("REALTALK_AUTO_GAIN", "not-bool")
	t.Setenv("REALTALK_ARCHIVE_TTL", "-5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Media.SampleRate != 44100 || !cfg.Media.AutoGainControl {
		t.Fatalf("expected media fallbacks, got %+v", cfg.Media)
	}
	if cfg.Archive.TTL != 24*time.Hour {
		t.Fatalf("expected ttl fallback, got %s", cfg.Archive.TTL)
	}

	t.Setenv("REALTALK_SAMPLE_RATE", "-1")
	cfg, err = Load()
	if err != nil || cfg.Media.SampleRate != 44100 {
		t.Fatalf("expected non-positive sample rate to fall back, got %d %v", cfg.Media.SampleRate, err)
	}
}

func TestLoadRejectsInvalidArchive(t *testing.T) {
	clearEnv(t)

	t.Setenv("REALTALK_ARCHIVE", "redis")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REALTALK_REDIS_URL") {
		t.Fatalf("expected missing redis url error, got %v", err)
	}

	t.Setenv("REALTALK_ARCHIVE", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unsupported archive error")
	}
}

func TestLoadRejectsEmptyICEServers(t *testing.T) {
	clearEnv(t)
	t.Setenv("REALTALK_ICE_SERVERS", " , ")

	if _, err := Load(); err == nil {
		t.Fatalf("expected ICE server error")
	}
}
