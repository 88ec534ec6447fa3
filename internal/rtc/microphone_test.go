package rtc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.uber.org/zap/zaptest"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

type recordingTrack struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (r *recordingTrack) WriteSample(sample media.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
	return nil
}

func (r *recordingTrack) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// oggStream builds a valid Ogg/Opus stream with one page per packet.
func oggStream(t *testing.T, packets int) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer, err := oggwriter.NewWith(&buf, 48000, 2)
	if err != nil {
		t.Fatalf("ogg writer: %v", err)
	}
	for i := 0; i < packets; i++ {
		packet := &rtp.Packet{
			Header:  rtp.Header{Timestamp: uint32(1000 + i*960), SequenceNumber: uint16(i)},
			Payload: []byte{0xfc, byte(i), 0x01, 0x02},
		}
		if err := writer.WriteRTP(packet); err != nil {
			t.Fatalf("write rtp: %v", err)
		}
	}
	return buf.Bytes()
}

func TestPumpSamplesForwardsPages(t *testing.T) {
	t.Parallel()

	track := &recordingTrack{}
	done := make(chan struct{})
	pumpSamples(bytes.NewReader(oggStream(t, 5)), track, func() bool { return true }, zaptest.NewLogger(t).Sugar(), done)
	<-done

	if track.count() != 5 {
		t.Fatalf("expected 5 samples, got %d", track.count())
	}
	for _, sample := range track.samples {
		if bytes.HasPrefix(sample.Data, opusTagsSignature) {
			t.Fatalf("comment header must not be sent")
		}
		if sample.Duration <= 0 {
			t.Fatalf("expected positive duration")
		}
	}
	if track.samples[1].Duration != 20*time.Millisecond {
		t.Fatalf("expected 20ms frames, got %s", track.samples[1].Duration)
	}
}

func TestPumpSamplesDropsWhileMuted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	enabled := func() bool { return calls.Add(1)%2 == 0 }

	track := &recordingTrack{}
	done := make(chan struct{})
	pumpSamples(bytes.NewReader(oggStream(t, 6)), track, enabled, zaptest.NewLogger(t).Sugar(), done)
	<-done

	if track.count() != 3 {
		t.Fatalf("expected half of the pages to be sent, got %d", track.count())
	}
}

func TestPumpSamplesRejectsNonOgg(t *testing.T) {
	t.Parallel()

	track := &recordingTrack{}
	done := make(chan struct{})
	pumpSamples(bytes.NewReader([]byte("definitely not an ogg stream at all")), track, func() bool { return true }, zaptest.NewLogger(t).Sugar(), done)
	<-done

	if track.count() != 0 {
		t.Fatalf("expected no samples")
	}
}

func TestPageDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		previous, current uint64
		want              time.Duration
	}{
		{previous: 0, current: 960, want: 20 * time.Millisecond},
		{previous: 960, current: 2880, want: 40 * time.Millisecond},
		{previous: 960, current: 960, want: defaultFrameDuration},
		{previous: 0, current: 48000 * 5, want: defaultFrameDuration},
	}
	for _, tc := range cases {
		if got := pageDuration(tc.previous, tc.current); got != tc.want {
			t.Fatalf("pageDuration(%d, %d) = %s, want %s", tc.previous, tc.current, got, tc.want)
		}
	}
}

type fakeAudioSession struct {
	io.Reader
	stops atomic.Int32
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.stops.Add(1)
	return nil
}

type fakeCapture struct {
	session *fakeAudioSession
	err     error
	got     ports.AudioConfig
}

func (f *fakeCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	f.got = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestMicrophoneSourceAcquire(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{session: &fakeAudioSession{Reader: bytes.NewReader(oggStream(t, 3))}}
	source := NewMicrophoneSource(capture, ports.AudioConfig{SampleRate: 16000, Channels: 1}, zaptest.NewLogger(t).Sugar())

	constraints := domain.MediaConstraints{NoiseSuppression: true, SampleRate: 44100}
	local, err := source.Acquire(context.Background(), constraints)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if capture.got.SampleRate != 44100 || !capture.got.Constraints.NoiseSuppression || capture.got.Channels != 1 {
		t.Fatalf("constraints not applied: %+v", capture.got)
	}

	mic, ok := local.(*Microphone)
	if !ok || mic.Track() == nil || mic.ID() == "" {
		t.Fatalf("expected microphone with a track")
	}
	if !mic.Enabled() {
		t.Fatalf("microphone should start enabled")
	}
	mic.SetEnabled(false)
	if mic.Enabled() {
		t.Fatalf("expected disabled microphone")
	}

	for i := 0; i < 2; i++ {
		if err := mic.Stop(); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
	}
	if capture.session.stops.Load() != 1 {
		t.Fatalf("expected capture stopped once, got %d", capture.session.stops.Load())
	}
}

func TestMicrophoneSourceCaptureError(t *testing.T) {
	t.Parallel()

	source := NewMicrophoneSource(&fakeCapture{err: errors.New("no such device")}, ports.AudioConfig{}, nil)
	if _, err := source.Acquire(context.Background(), domain.MediaConstraints{}); err == nil {
		t.Fatalf("expected capture error")
	}
}
