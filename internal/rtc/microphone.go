package rtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.uber.org/zap"

	"realtalk/internal/audio"
	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

const defaultFrameDuration = 20 * time.Millisecond

var opusTagsSignature = []byte("OpusTags")

// sampleWriter is satisfied by *webrtc.TrackLocalStaticSample.
type sampleWriter interface {
	WriteSample(media.Sample) error
}

// MicrophoneSource captures the microphone with ffmpeg and exposes it as an
// Opus track.
type MicrophoneSource struct {
	capture ports.AudioCapture
	audio   ports.AudioConfig
	logger  *zap.SugaredLogger
}

func NewMicrophoneSource(capture ports.AudioCapture, cfg ports.AudioConfig, logger *zap.SugaredLogger) *MicrophoneSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MicrophoneSource{capture: capture, audio: cfg, logger: logger}
}

func (s *MicrophoneSource) Acquire(ctx context.Context, constraints domain.MediaConstraints) (ports.LocalMedia, error) {
	cfg := s.audio
	cfg.Constraints = constraints
	if constraints.SampleRate > 0 {
		cfg.SampleRate = constraints.SampleRate
	}

	session, err := s.capture.Start(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("start microphone capture: %w", err)
	}

	id := "mic_" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.OpusSampleRate, Channels: 2},
		"audio",
		id,
	)
	if err != nil {
		_ = session.Stop()
		return nil, fmt.Errorf("create microphone track: %w", err)
	}

	mic := &Microphone{
		id:      id,
		track:   track,
		session: session,
		logger:  s.logger.With("media", id),
		done:    make(chan struct{}),
	}
	mic.enabled.Store(true)
	go pumpSamples(session, track, mic.enabled.Load, mic.logger, mic.done)

	s.logger.Infow("microphone acquired", "media", id, "sampleRate", cfg.SampleRate, "format", cfg.InputFormat)
	return mic, nil
}

// Microphone is the local media of one session.
type Microphone struct {
	id      string
	track   *webrtc.TrackLocalStaticSample
	session ports.AudioSession
	logger  *zap.SugaredLogger
	enabled atomic.Bool
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (m *Microphone) ID() string { return m.id }

// Track is the outbound track added to the peer connection.
func (m *Microphone) Track() webrtc.TrackLocal { return m.track }

func (m *Microphone) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	m.logger.Debugw("microphone toggled", "enabled", enabled)
}

func (m *Microphone) Enabled() bool { return m.enabled.Load() }

func (m *Microphone) Stop() error {
	m.stopOnce.Do(func() {
		m.stopErr = m.session.Stop()
		<-m.done
	})
	return m.stopErr
}

// pumpSamples forwards Ogg/Opus pages from the capture to the track. Pages
// are dropped while the microphone is disabled.
func pumpSamples(
	source io.Reader,
	track sampleWriter,
	enabled func() bool,
	logger *zap.SugaredLogger,
	done chan struct{},
) {
	defer close(done)

	reader, _, err := oggreader.NewWith(source)
	if err != nil {
		if !isEndOfStream(err) {
			logger.Warnw("microphone stream is not ogg/opus", "error", err)
		}
		return
	}

	var lastGranule uint64
	for {
		page, header, err := reader.ParseNextPage()
		if err != nil {
			if !isEndOfStream(err) {
				logger.Warnw("microphone capture error", "error", err)
			}
			return
		}
		if bytes.HasPrefix(page, opusTagsSignature) {
			continue
		}

		duration := pageDuration(lastGranule, header.GranulePosition)
		lastGranule = header.GranulePosition
		if !enabled() {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			logger.Warnw("failed to write microphone sample", "error", err)
		}
	}
}

func pageDuration(previous, current uint64) time.Duration {
	if current <= previous {
		return defaultFrameDuration
	}
	samples := current - previous
	duration := time.Duration(samples) * time.Second / audio.OpusSampleRate
	if duration <= 0 || duration > time.Second {
		return defaultFrameDuration
	}
	return duration
}

func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
