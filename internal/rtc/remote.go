package rtc

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.uber.org/zap"

	"realtalk/internal/audio"
)

// rtpRecorder is satisfied by *oggwriter.OggWriter.
type rtpRecorder interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// remoteAudio drains an inbound agent audio track, optionally recording it.
type remoteAudio struct {
	id     string
	kind   string
	logger *zap.SugaredLogger
	done   chan struct{}

	mu       sync.Mutex
	recorder rtpRecorder
	packets  int
	closed   bool
}

func newRemoteAudio(id, kind string, recorder rtpRecorder, logger *zap.SugaredLogger) *remoteAudio {
	return &remoteAudio{
		id:       id,
		kind:     kind,
		recorder: recorder,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (r *remoteAudio) ID() string   { return r.id }
func (r *remoteAudio) Kind() string { return r.kind }

// Close stops recording. The drain loop ends when the peer connection closes.
func (r *remoteAudio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.recorder == nil {
		return nil
	}
	if err := r.recorder.Close(); err != nil {
		return fmt.Errorf("close agent audio recording: %w", err)
	}
	return nil
}

func (r *remoteAudio) drain(read func() (*rtp.Packet, error)) {
	defer close(r.done)
	for {
		packet, err := read()
		if err != nil {
			r.logger.Debugw("remote track ended", "media", r.id, "packets", r.packetCount(), "error", err)
			return
		}
		r.record(packet)
	}
}

func (r *remoteAudio) record(packet *rtp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets++
	if r.closed || r.recorder == nil {
		return
	}
	if err := r.recorder.WriteRTP(packet); err != nil {
		r.logger.Warnw("failed to record agent audio", "media", r.id, "error", err)
	}
}

func (r *remoteAudio) packetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

func openRecording(dir, trackID string) (rtpRecorder, string, error) {
	path := filepath.Join(dir, fmt.Sprintf("agent-%s-%d.ogg", trackID, time.Now().UnixNano()))
	writer, err := oggwriter.New(path, audio.OpusSampleRate, 2)
	if err != nil {
		return nil, "", fmt.Errorf("open agent audio recording: %w", err)
	}
	return writer, path, nil
}
