package ports

import (
	"context"
	"io"

	"realtalk/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Constraints domain.MediaConstraints

	// EchoCancelDevice is captured instead of InputDevice when echo
	// cancellation is requested.
	EchoCancelDevice string
}

// AudioSession is a live capture session yielding an Ogg/Opus byte stream.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// LocalMedia is the microphone handle attached to one session.
type LocalMedia interface {
	ID() string
	SetEnabled(enabled bool)
	Enabled() bool
	Stop() error
}

// MediaSource acquires local media.
type MediaSource interface {
	Acquire(ctx context.Context, constraints domain.MediaConstraints) (LocalMedia, error)
}

// RemoteMedia is an inbound media stream delivered by the transport.
type RemoteMedia interface {
	ID() string
	Kind() string
	Close() error
}

// ControlChannel is the ordered, reliable event channel of a session.
type ControlChannel interface {
	Label() string
	// Opened is closed once the channel can carry messages.
	Opened() <-chan struct{}
	// Messages yields inbound payloads in arrival order and is closed when
	// the channel closes.
	Messages() <-chan []byte
	Send(payload []byte) error
	Close() error
}

// TransportState mirrors the peer connection state.
type TransportState string

const (
	TransportStateNew          TransportState = "new"
	TransportStateConnecting   TransportState = "connecting"
	TransportStateConnected    TransportState = "connected"
	TransportStateDisconnected TransportState = "disconnected"
	TransportStateFailed       TransportState = "failed"
	TransportStateClosed       TransportState = "closed"
)

// PeerTransport is the peer media/data transport driven by the negotiator.
type PeerTransport interface {
	AddLocalMedia(media LocalMedia) error
	CreateControlChannel(label string) (ControlChannel, error)
	CreateOffer() (string, error)
	// SetLocalDescription applies the offer and returns the local
	// description once candidate gathering has finished.
	SetLocalDescription(ctx context.Context, offer string) (string, error)
	SetRemoteDescription(answer string) error
	OnRemoteMedia(fn func(RemoteMedia))
	OnStateChange(fn func(TransportState))
	Close() error
}

// TransportFactory creates a fresh transport per session attempt.
type TransportFactory interface {
	NewTransport() (PeerTransport, error)
}

// SessionEndpoint exchanges an offer for an answer with the remote service.
type SessionEndpoint interface {
	Exchange(ctx context.Context, offer string) (answer string, err error)
}

// TranscriptArchive persists completed transcript items.
type TranscriptArchive interface {
	Append(ctx context.Context, sessionID string, item domain.TranscriptItem) error
	List(ctx context.Context, sessionID string) ([]domain.TranscriptItem, error)
	Close() error
}

// EventSink emits session state and transcript output to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptUpdated(instruction domain.RenderInstruction)
	ResponseStarted()
	RemoteMediaReceived(id, kind string)
	SessionError(kind domain.ErrorKind, detail string)
}
