package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtalk/internal/archive"
	"realtalk/internal/audio"
	"realtalk/internal/config"
	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/providers/openai"
	"realtalk/internal/rtc"
	"realtalk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Archive    ports.TranscriptArchive
	Config     config.Config
}

// Close releases resources that outlive individual sessions.
func (s Services) Close() error {
	if s.Archive == nil {
		return nil
	}
	return s.Archive.Close()
}

// Build wires all backend dependencies for the current runtime.
func Build(cfg config.Config, eventSink ports.EventSink, logger *zap.SugaredLogger) (Services, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	transcriptArchive, err := buildArchive(cfg.Archive, logger)
	if err != nil {
		return Services{}, err
	}

	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger.Named("audio"))
	deps := usecase.NegotiatorDeps{
		Media: rtc.NewMicrophoneSource(capture, ports.AudioConfig{
			SampleRate:       cfg.Media.SampleRate,
			Channels:         cfg.Audio.Channels,
			InputFormat:      cfg.Audio.InputFormat,
			InputDevice:      cfg.Audio.InputDevice,
			EchoCancelDevice: cfg.Audio.EchoCancelDevice,
		}, logger.Named("microphone")),
		Transports: rtc.NewTransportFactory(rtc.Config{
			ICEServers: cfg.RTC.ICEServers,
			RecordDir:  cfg.RTC.RecordDir,
		}, logger.Named("rtc")),
		Endpoint: openai.NewProvider(openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			APIBaseURL: cfg.OpenAI.APIBaseURL,
			Model:      cfg.OpenAI.Model,
		}, nil, logger.Named("openai")),
	}

	controller := usecase.NewSessionController(
		deps,
		eventSink,
		transcriptArchive,
		logger.Named("session"),
		usecase.Config{
			Constraints: domain.MediaConstraints{
				EchoCancellation: cfg.Media.EchoCancellation,
				NoiseSuppression: cfg.Media.NoiseSuppression,
				AutoGainControl:  cfg.Media.AutoGainControl,
				SampleRate:       cfg.Media.SampleRate,
			},
			Greeting: usecase.GreetingConfig{
				Enabled:      cfg.Session.Greeting,
				Instructions: cfg.Session.GreetingInstructions,
			},
		},
	)

	return Services{Controller: controller, Archive: transcriptArchive, Config: cfg}, nil
}

func buildArchive(cfg config.ArchiveConfig, logger *zap.SugaredLogger) (ports.TranscriptArchive, error) {
	storeType := archive.StoreType(cfg.Store)
	opts := []archive.Option{archive.WithLogger(logger.Named("archive"))}

	if storeType == archive.StoreTypeRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REALTALK_REDIS_URL: %w", err)
		}
		opts = append(opts,
			archive.WithRedisClient(redis.NewClient(redisOpts)),
			archive.WithRedisTTL(cfg.TTL),
		)
	}

	store, err := archive.NewStore(storeType, opts...)
	if err != nil {
		return nil, fmt.Errorf("build transcript archive: %w", err)
	}
	return store, nil
}
