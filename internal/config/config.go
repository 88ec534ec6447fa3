package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultGreetingInstructions = "Please greet the customer warmly and ask how you can help them with their order today."

// Config stores runtime configuration for the realtime voice client.
type Config struct {
	OpenAI  OpenAIConfig
	RTC     RTCConfig
	Audio   AudioConfig
	Media   MediaConfig
	Session SessionConfig
	Archive ArchiveConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

type OpenAIConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
}

type RTCConfig struct {
	ICEServers []string
	RecordDir  string
}

type AudioConfig struct {
	RecorderCommand  string
	InputFormat      string
	InputDevice      string
	EchoCancelDevice string
	Channels         int
}

type MediaConfig struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

type SessionConfig struct {
	Greeting             bool
	GreetingInstructions string
}

type ArchiveConfig struct {
	Store    string
	RedisURL string
	TTL      time.Duration
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
	File  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		OpenAI: OpenAIConfig{
			APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			APIBaseURL: envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			Model:      envOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		},
		RTC: RTCConfig{
			ICEServers: splitList(envOrDefault("REALTALK_ICE_SERVERS", "stun:stun.l.google.com:19302")),
			RecordDir:  strings.TrimSpace(os.Getenv("REALTALK_RECORD_AGENT_AUDIO")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("REALTALK_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("REALTALK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("REALTALK_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			EchoCancelDevice: strings.TrimSpace(os.Getenv("REALTALK_ECHO_CANCEL_DEVICE")),
			Channels:         1,
		},
		Media: MediaConfig{
			EchoCancellation: envOrDefaultBool("REALTALK_ECHO_CANCELLATION", true),
			NoiseSuppression: envOrDefaultBool("REALTALK_NOISE_SUPPRESSION", true),
			AutoGainControl:  envOrDefaultBool("REALTALK_AUTO_GAIN", true),
			SampleRate:       envOrDefaultInt("REALTALK_SAMPLE_RATE", 44100),
		},
		Session: SessionConfig{
			Greeting:             envOrDefaultBool("REALTALK_GREETING", true),
			GreetingInstructions: envOrDefault("REALTALK_GREETING_INSTRUCTIONS", defaultGreetingInstructions),
		},
		Archive: ArchiveConfig{
			Store:    strings.ToLower(envOrDefault("REALTALK_ARCHIVE", "memory")),
			RedisURL: strings.TrimSpace(os.Getenv("REALTALK_REDIS_URL")),
			TTL:      envOrDefaultDuration("REALTALK_ARCHIVE_TTL", 24*time.Hour),
		},
		HTTP: HTTPConfig{
			Addr: envOrDefault("REALTALK_ADDR", "127.0.0.1:8787"),
		},
		Log: LogConfig{
			Level: envOrDefault("REALTALK_LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("REALTALK_LOG_FILE")),
		},
	}

	if cfg.Media.SampleRate <= 0 {
		cfg.Media.SampleRate = 44100
	}
	if len(cfg.RTC.ICEServers) == 0 {
		return Config{}, errors.New("REALTALK_ICE_SERVERS must list at least one server")
	}

	switch cfg.Archive.Store {
	case "none", "memory":
	case "redis":
		if cfg.Archive.RedisURL == "" {
			return Config{}, errors.New("REALTALK_REDIS_URL is required when REALTALK_ARCHIVE=redis")
		}
	default:
		return Config{}, fmt.Errorf("unsupported REALTALK_ARCHIVE %q", cfg.Archive.Store)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
