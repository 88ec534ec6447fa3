package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

// DefaultControlChannelLabel is the data channel label the realtime endpoint expects.
const DefaultControlChannelLabel = "oai-events"

var ErrNegotiatorClosed = errors.New("negotiator is closed")

// NegotiatorState mirrors the transport negotiation progress.
type NegotiatorState string

const (
	NegotiatorStateNew            NegotiatorState = "new"
	NegotiatorStateHaveLocalOffer NegotiatorState = "have_local_offer"
	NegotiatorStateNegotiating    NegotiatorState = "negotiating"
	NegotiatorStateConnected      NegotiatorState = "connected"
	NegotiatorStateFailed         NegotiatorState = "failed"
	NegotiatorStateClosed         NegotiatorState = "closed"
)

// NegotiatorDeps are the capabilities a negotiator drives.
type NegotiatorDeps struct {
	Media      ports.MediaSource
	Transports ports.TransportFactory
	Endpoint   ports.SessionEndpoint
}

// NegotiatorHooks receive asynchronous transport notifications.
type NegotiatorHooks struct {
	OnRemoteMedia func(ports.RemoteMedia)
	// OnTransportFailure fires once when an established transport is lost.
	OnTransportFailure func(error)
}

// Negotiator performs the offer/answer exchange for one session attempt and
// owns every resource it acquires until Teardown.
type Negotiator struct {
	deps         NegotiatorDeps
	hooks        NegotiatorHooks
	channelLabel string
	logger       *zap.SugaredLogger

	mu        sync.Mutex
	state     NegotiatorState
	local     ports.LocalMedia
	transport ports.PeerTransport
	control   ports.ControlChannel
	remote    []ports.RemoteMedia
}

func NewNegotiator(deps NegotiatorDeps, hooks NegotiatorHooks, channelLabel string, logger *zap.SugaredLogger) *Negotiator {
	if channelLabel == "" {
		channelLabel = DefaultControlChannelLabel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Negotiator{
		deps:         deps,
		hooks:        hooks,
		channelLabel: channelLabel,
		logger:       logger,
		state:        NegotiatorStateNew,
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() NegotiatorState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// AcquireLocalMedia opens the microphone.
func (n *Negotiator) AcquireLocalMedia(ctx context.Context, constraints domain.MediaConstraints) (ports.LocalMedia, error) {
	if n.State() == NegotiatorStateClosed {
		return nil, ErrNegotiatorClosed
	}

	media, err := n.deps.Media.Acquire(ctx, constraints)
	if err == nil && ctx.Err() != nil {
		_ = media.Stop()
		err = ctx.Err()
	}
	if err != nil {
		var mediaErr *domain.MediaAcquisitionError
		if errors.As(err, &mediaErr) {
			return nil, err
		}
		return nil, &domain.MediaAcquisitionError{Err: err}
	}

	n.mu.Lock()
	if n.state == NegotiatorStateClosed {
		n.mu.Unlock()
		_ = media.Stop()
		return nil, ErrNegotiatorClosed
	}
	n.local = media
	n.mu.Unlock()

	n.logger.Debugw("local media acquired", "media", media.ID())
	return media, nil
}

// Establish negotiates a transport carrying local and returns its control
// channel. Remote media is delivered later through the hooks.
func (n *Negotiator) Establish(ctx context.Context, local ports.LocalMedia) (ports.ControlChannel, error) {
	transport, err := n.deps.Transports.NewTransport()
	if err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "create_transport", Err: err})
	}

	n.mu.Lock()
	if n.state == NegotiatorStateClosed {
		n.mu.Unlock()
		_ = transport.Close()
		return nil, ErrNegotiatorClosed
	}
	n.transport = transport
	n.mu.Unlock()

	transport.OnRemoteMedia(n.handleRemoteMedia)
	transport.OnStateChange(n.handleTransportState)

	if err := transport.AddLocalMedia(local); err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "add_local_media", Err: err})
	}

	control, err := transport.CreateControlChannel(n.channelLabel)
	if err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "create_control_channel", Err: err})
	}
	n.mu.Lock()
	n.control = control
	n.mu.Unlock()

	offer, err := transport.CreateOffer()
	if err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "create_offer", Err: err})
	}
	localSDP, err := transport.SetLocalDescription(ctx, offer)
	if err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "set_local_description", Err: err})
	}
	if err := n.advance(NegotiatorStateHaveLocalOffer); err != nil {
		return nil, err
	}

	if err := n.advance(NegotiatorStateNegotiating); err != nil {
		return nil, err
	}
	n.logger.Debugw("sending offer", "sdpBytes", len(localSDP))
	answer, err := n.deps.Endpoint.Exchange(ctx, localSDP)
	if err != nil {
		var negotiationErr *domain.NegotiationError
		if !errors.As(err, &negotiationErr) {
			err = &domain.NegotiationError{Err: err}
		}
		return nil, n.failed(err)
	}
	n.logger.Debugw("received answer", "sdpBytes", len(answer))

	if err := transport.SetRemoteDescription(answer); err != nil {
		return nil, n.failed(&domain.SignalingError{Op: "set_remote_description", Err: err})
	}
	if err := n.advance(NegotiatorStateConnected); err != nil {
		return nil, err
	}
	return control, nil
}

// SetLocalEnabled toggles the local media without renegotiating.
func (n *Negotiator) SetLocalEnabled(enabled bool) {
	n.mu.Lock()
	local := n.local
	n.mu.Unlock()
	if local != nil {
		local.SetEnabled(enabled)
	}
}

// Teardown releases every resource. It is safe to call repeatedly.
func (n *Negotiator) Teardown() error {
	n.mu.Lock()
	if n.state == NegotiatorStateClosed {
		n.mu.Unlock()
		return nil
	}
	n.state = NegotiatorStateClosed
	local, control, transport, remote := n.local, n.control, n.transport, n.remote
	n.local, n.control, n.transport, n.remote = nil, nil, nil, nil
	n.mu.Unlock()

	var errs []error
	if local != nil {
		if err := local.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop local media: %w", err))
		}
	}
	if control != nil {
		if err := control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close control channel: %w", err))
		}
	}
	for _, media := range remote {
		if err := media.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close remote media %s: %w", media.ID(), err))
		}
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	return errors.Join(errs...)
}

// advance moves forward unless the transport already failed or was closed.
func (n *Negotiator) advance(next NegotiatorState) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case NegotiatorStateClosed:
		return ErrNegotiatorClosed
	case NegotiatorStateFailed:
		return &domain.TransportError{State: string(ports.TransportStateFailed)}
	}
	n.state = next
	return nil
}

func (n *Negotiator) failed(err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == NegotiatorStateClosed {
		return ErrNegotiatorClosed
	}
	n.state = NegotiatorStateFailed
	return err
}

func (n *Negotiator) handleRemoteMedia(media ports.RemoteMedia) {
	n.mu.Lock()
	if n.state == NegotiatorStateClosed {
		n.mu.Unlock()
		_ = media.Close()
		return
	}
	n.remote = append(n.remote, media)
	n.mu.Unlock()

	n.logger.Infow("remote media received", "media", media.ID(), "kind", media.Kind())
	if n.hooks.OnRemoteMedia != nil {
		n.hooks.OnRemoteMedia(media)
	}
}

func (n *Negotiator) handleTransportState(state ports.TransportState) {
	n.logger.Debugw("transport state changed", "state", state)
	switch state {
	case ports.TransportStateFailed, ports.TransportStateDisconnected, ports.TransportStateClosed:
	default:
		return
	}

	n.mu.Lock()
	if n.state == NegotiatorStateClosed || n.state == NegotiatorStateFailed {
		n.mu.Unlock()
		return
	}
	wasConnected := n.state == NegotiatorStateConnected
	n.state = NegotiatorStateFailed
	n.mu.Unlock()

	if wasConnected && n.hooks.OnTransportFailure != nil {
		n.hooks.OnTransportFailure(&domain.TransportError{State: string(state)})
	}
}
