package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"realtalk/internal/ports"
)

var errUnsupportedLocalMedia = errors.New("local media does not expose a track")

// trackProvider is implemented by local media that can be sent over a peer
// connection.
type trackProvider interface {
	Track() webrtc.TrackLocal
}

// Config controls peer connections.
type Config struct {
	ICEServers []string
	// RecordDir, when set, receives an Ogg recording of each agent audio track.
	RecordDir string
}

// TransportFactory builds pion peer connections.
type TransportFactory struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func NewTransportFactory(cfg Config, logger *zap.SugaredLogger) *TransportFactory {
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TransportFactory{cfg: cfg, logger: logger}
}

func (f *TransportFactory) NewTransport() (ports.PeerTransport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: f.cfg.ICEServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &peerTransport{pc: pc, recordDir: f.cfg.RecordDir, logger: f.logger}
	pc.OnConnectionStateChange(t.handleConnectionState)
	pc.OnTrack(t.handleTrack)
	return t, nil
}

type peerTransport struct {
	pc        *webrtc.PeerConnection
	recordDir string
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	onRemote func(ports.RemoteMedia)
	onState  func(ports.TransportState)

	closeOnce sync.Once
	closeErr  error
}

func (t *peerTransport) AddLocalMedia(local ports.LocalMedia) error {
	provider, ok := local.(trackProvider)
	if !ok {
		return errUnsupportedLocalMedia
	}
	sender, err := t.pc.AddTrack(provider.Track())
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}

	// RTCP must be read for interceptors such as NACK to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (t *peerTransport) CreateControlChannel(label string) (ports.ControlChannel, error) {
	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel %q: %w", label, err)
	}
	return newControlChannel(dc), nil
}

func (t *peerTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *peerTransport) SetLocalDescription(ctx context.Context, offer string) (string, error) {
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return local.SDP, nil
}

func (t *peerTransport) SetRemoteDescription(answer string) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer})
}

func (t *peerTransport) OnRemoteMedia(fn func(ports.RemoteMedia)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemote = fn
}

func (t *peerTransport) OnStateChange(fn func(ports.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

func (t *peerTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.pc.Close()
	})
	return t.closeErr
}

// handleConnectionState runs listeners on their own goroutine so they may
// close the transport.
func (t *peerTransport) handleConnectionState(state webrtc.PeerConnectionState) {
	mapped := transportState(state)
	t.logger.Debugw("peer connection state", "state", mapped)

	t.mu.Lock()
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		go fn(mapped)
	}
}

func (t *peerTransport) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := track.Kind().String()
	var recorder rtpRecorder
	if t.recordDir != "" && kind == webrtc.RTPCodecTypeAudio.String() {
		writer, path, err := openRecording(t.recordDir, track.ID())
		if err != nil {
			t.logger.Warnw("agent audio will not be recorded", "error", err)
		} else {
			recorder = writer
			t.logger.Infow("recording agent audio", "path", path)
		}
	}

	remote := newRemoteAudio(track.ID(), kind, recorder, t.logger)
	go remote.drain(func() (*rtp.Packet, error) {
		packet, _, err := track.ReadRTP()
		return packet, err
	})

	t.mu.Lock()
	fn := t.onRemote
	t.mu.Unlock()
	if fn != nil {
		go fn(remote)
	}
}

func transportState(state webrtc.PeerConnectionState) ports.TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return ports.TransportStateNew
	case webrtc.PeerConnectionStateConnecting:
		return ports.TransportStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return ports.TransportStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return ports.TransportStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return ports.TransportStateFailed
	case webrtc.PeerConnectionStateClosed:
		return ports.TransportStateClosed
	default:
		return ports.TransportState(state.String())
	}
}
