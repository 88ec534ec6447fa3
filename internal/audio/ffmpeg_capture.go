package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtalk/internal/ports"
)

// OpusSampleRate is the clock rate of the encoded stream regardless of the
// capture rate.
const OpusSampleRate = 48000

// FFMPEGCapture streams microphone audio as Ogg/Opus using ffmpeg.
type FFMPEGCapture struct {
	command string
	logger  *zap.SugaredLogger
}

func NewFFMPEGCapture(command string, logger *zap.SugaredLogger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FFMPEGCapture{command: command, logger: logger}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	cfg.InputDevice = captureDevice(cfg)
	if cfg.Constraints.EchoCancellation && cfg.EchoCancelDevice == "" {
		c.logger.Warnw("echo cancellation requested without an echo-cancelling source", "format", cfg.InputFormat, "device", cfg.InputDevice)
	}
	args := captureArgs(cfg)

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimStderr(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimStderr(s.stderr.String()))
		}
	})

	return s.stopErr
}

func captureArgs(cfg ports.AudioConfig) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-sample_rate", strconv.Itoa(cfg.SampleRate),
		"-i", cfg.InputDevice,
	}
	if filters := captureFilters(cfg); filters != "" {
		args = append(args, "-af", filters)
	}
	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(OpusSampleRate),
		"-c:a", "libopus",
		"-application", "voip",
		"-frame_duration", "20",
		"-page_duration", "20000",
		"-f", "ogg",
		"-",
	)
}

// captureDevice picks the input device. ffmpeg has no playback reference to
// cancel echo against, so echo cancellation is delegated to a dedicated source
// such as a PulseAudio module-echo-cancel device.
func captureDevice(cfg ports.AudioConfig) string {
	if cfg.Constraints.EchoCancellation && cfg.EchoCancelDevice != "" {
		return cfg.EchoCancelDevice
	}
	return cfg.InputDevice
}

func captureFilters(cfg ports.AudioConfig) string {
	var filters []string
	if cfg.Constraints.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if cfg.Constraints.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	return strings.Join(filters, ",")
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimStderr(input string) string {
	const limit = 512
	input = strings.TrimSpace(input)
	if len(input) > limit {
		return input[len(input)-limit:]
	}
	return input
}
