package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/transcript"
)

var (
	ErrNoActiveSession = errors.New("no active realtime session")
	// ErrConnectSuperseded is returned by a connect attempt that was
	// cancelled by Disconnect before it finished.
	ErrConnectSuperseded = errors.New("connect attempt superseded")
)

const archiveTimeout = 2 * time.Second

// GreetingConfig controls the optional response.create sent once the control
// channel opens.
type GreetingConfig struct {
	Enabled      bool
	Instructions string
	Modalities   []string
}

// Config controls realtime session behavior.
type Config struct {
	Constraints  domain.MediaConstraints
	ChannelLabel string
	Greeting     GreetingConfig
}

// SessionController orchestrates negotiation and transcript reduction across
// the session lifecycle. It is the only writer of the session state.
type SessionController struct {
	deps    NegotiatorDeps
	events  ports.EventSink
	archive ports.TranscriptArchive
	logger  *zap.SugaredLogger
	cfg     Config

	mu         sync.Mutex
	state      domain.SessionState
	generation uint64
	current    *activeSession
	last       []domain.TranscriptItem
	muted      bool
}

// NewSessionController builds a controller. archive may be nil.
func NewSessionController(
	deps NegotiatorDeps,
	events ports.EventSink,
	archive ports.TranscriptArchive,
	logger *zap.SugaredLogger,
	cfg Config,
) *SessionController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.ChannelLabel == "" {
		cfg.ChannelLabel = DefaultControlChannelLabel
	}
	if len(cfg.Greeting.Modalities) == 0 {
		cfg.Greeting.Modalities = []string{"text", "audio"}
	}
	return &SessionController{
		deps:    deps,
		events:  events,
		archive: archive,
		logger:  logger,
		cfg:     cfg,
		state:   domain.SessionStateIdle,
	}
}

// Connect acquires the microphone and negotiates a realtime session. It is a
// no-op unless the controller is idle or failed.
func (c *SessionController) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.SessionStateIdle && c.state != domain.SessionStateFailed {
		c.mu.Unlock()
		return nil
	}
	recovering := c.state == domain.SessionStateFailed
	if c.current != nil {
		c.last = c.current.snapshot
	}
	c.generation++
	attemptCtx, cancel := context.WithCancel(ctx)
	active := newActiveSession("sess_"+uuid.NewString(), c.generation, cancel, transcript.NewReducer(c.logger))
	active.negotiator = NewNegotiator(c.deps, NegotiatorHooks{
		OnRemoteMedia:      func(media ports.RemoteMedia) { c.remoteMediaReceived(active, media) },
		OnTransportFailure: func(err error) { c.fail(active, err) },
	}, c.cfg.ChannelLabel, c.logger.With("session", active.id))
	c.current = active
	c.state = domain.SessionStateAcquiringMedia
	c.mu.Unlock()

	c.logger.Infow("connecting realtime session", "session", active.id)
	if recovering {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
	}
	c.events.SessionStateChanged(domain.SessionStateAcquiringMedia, domain.SessionReasonAcquiringMedia)

	media, err := active.negotiator.AcquireLocalMedia(attemptCtx, c.cfg.Constraints)
	if err != nil {
		return c.abortAttempt(active, err)
	}
	muted, ok := c.advance(active, domain.SessionStateNegotiating, domain.SessionReasonNegotiating)
	if !ok {
		return c.discardAttempt(active)
	}
	media.SetEnabled(!muted)

	control, err := active.negotiator.Establish(attemptCtx, media)
	if err != nil {
		return c.abortAttempt(active, err)
	}
	if _, ok := c.advance(active, domain.SessionStateConnected, domain.SessionReasonConnected); !ok {
		return c.discardAttempt(active)
	}
	if !c.startConsuming(active) {
		return c.discardAttempt(active)
	}

	c.logger.Infow("realtime session connected", "session", active.id)
	go c.consumeControlEvents(active, control)
	return nil
}

// Disconnect tears down any session or in-flight attempt and returns to idle.
// It is safe to call from any state and more than once.
func (c *SessionController) Disconnect() error {
	c.mu.Lock()
	active := c.current
	previous := c.state
	if active == nil && (previous == domain.SessionStateIdle || previous == domain.SessionStateDisconnecting) {
		c.mu.Unlock()
		return nil
	}
	c.generation++
	generation := c.generation
	c.current = nil
	c.muted = false
	consuming := false
	if active != nil {
		c.last = active.snapshot
		consuming = active.consuming
	}
	// A failed session was torn down when it failed.
	fromFailed := previous == domain.SessionStateFailed
	if fromFailed {
		c.state = domain.SessionStateIdle
	} else {
		c.state = domain.SessionStateDisconnecting
	}
	c.mu.Unlock()

	if fromFailed {
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonDisconnected)
	} else {
		c.events.SessionStateChanged(domain.SessionStateDisconnecting, domain.SessionReasonDisconnecting)
	}

	if active != nil {
		active.cancel()
		if err := active.negotiator.Teardown(); err != nil {
			c.logger.Warnw("teardown reported errors", "session", active.id, "error", err)
		}
		if consuming {
			<-active.eventsDone
		}
	}

	if !fromFailed {
		c.mu.Lock()
		if c.current != nil || c.generation != generation {
			c.mu.Unlock()
			return nil
		}
		c.state = domain.SessionStateIdle
		c.mu.Unlock()
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonDisconnected)
	}

	c.logger.Infow("realtime session disconnected")
	return nil
}

// SetMuted enables or disables the microphone without renegotiating.
func (c *SessionController) SetMuted(muted bool) error {
	c.mu.Lock()
	if c.state == domain.SessionStateIdle || c.current == nil {
		c.mu.Unlock()
		return nil
	}
	c.muted = muted
	negotiator := c.current.negotiator
	c.mu.Unlock()

	negotiator.SetLocalEnabled(!muted)
	return nil
}

// Status returns the current session status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.state != domain.SessionStateIdle && c.state != domain.SessionStateFailed
	status := domain.Status{State: c.state, Active: active, Muted: c.muted}
	if c.current != nil {
		status.SessionID = c.current.id
	}
	return status
}

// Transcript returns the items of the current session, or of the last one
// after a disconnect.
func (c *SessionController) Transcript() []domain.TranscriptItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.last
	if c.current != nil {
		items = c.current.snapshot
	}
	out := make([]domain.TranscriptItem, len(items))
	copy(out, items)
	return out
}

// advance moves an attempt forward if it is still the current one and
// returns the mute preference at that point.
func (c *SessionController) advance(active *activeSession, state domain.SessionState, reason domain.SessionStateReason) (bool, bool) {
	c.mu.Lock()
	if !c.isCurrentLocked(active) || c.state == domain.SessionStateFailed {
		c.mu.Unlock()
		return false, false
	}
	c.state = state
	muted := c.muted
	c.mu.Unlock()

	c.events.SessionStateChanged(state, reason)
	return muted, true
}

func (c *SessionController) abortAttempt(active *activeSession, err error) error {
	if c.fail(active, err) {
		return err
	}
	if failure := c.failureOf(active); failure != nil {
		return failure
	}
	return ErrConnectSuperseded
}

// discardAttempt ends an attempt that can no longer advance. An attempt that
// is still current failed on its own and reports that failure.
func (c *SessionController) discardAttempt(active *activeSession) error {
	if failure := c.failureOf(active); failure != nil {
		return failure
	}
	active.cancel()
	if err := active.negotiator.Teardown(); err != nil {
		c.logger.Warnw("teardown of superseded attempt reported errors", "session", active.id, "error", err)
	}
	return ErrConnectSuperseded
}

func (c *SessionController) failureOf(active *activeSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isCurrentLocked(active) && c.state == domain.SessionStateFailed {
		return active.failure
	}
	return nil
}

// startConsuming marks the control-event goroutine as owned by active so
// Disconnect can wait for it.
func (c *SessionController) startConsuming(active *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(active) || c.state != domain.SessionStateConnected {
		return false
	}
	active.consuming = true
	return true
}

func (c *SessionController) remoteMediaReceived(active *activeSession, media ports.RemoteMedia) {
	c.mu.Lock()
	current := c.isCurrentLocked(active)
	c.mu.Unlock()
	if !current {
		return
	}
	c.events.RemoteMediaReceived(media.ID(), media.Kind())
}

// fail tears the session down and then reports err. It returns false when
// active is no longer current, in which case only the teardown happens.
func (c *SessionController) fail(active *activeSession, err error) bool {
	active.cancel()
	if teardownErr := active.negotiator.Teardown(); teardownErr != nil {
		c.logger.Warnw("teardown reported errors", "session", active.id, "error", teardownErr)
	}

	c.mu.Lock()
	if !c.isCurrentLocked(active) || c.state == domain.SessionStateFailed {
		c.mu.Unlock()
		return false
	}
	c.state = domain.SessionStateFailed
	active.failure = err
	c.mu.Unlock()

	kind := domain.KindOf(err)
	c.logger.Errorw("realtime session failed", "session", active.id, "kind", kind, "error", err)
	c.events.SessionStateChanged(domain.SessionStateFailed, domain.FailureReason(kind))
	c.events.SessionError(kind, err.Error())
	return true
}

func (c *SessionController) isCurrentLocked(active *activeSession) bool {
	return c.current == active && active.generation == c.generation
}

func (c *SessionController) isLive(active *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrentLocked(active) && c.state == domain.SessionStateConnected
}

type responseCreateEvent struct {
	EventID  string               `json:"event_id,omitempty"`
	Type     string               `json:"type"`
	Response responseCreateParams `json:"response"`
}

type responseCreateParams struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

func (c *SessionController) sendGreeting(active *activeSession, control ports.ControlChannel) {
	if !c.cfg.Greeting.Enabled || !c.isLive(active) {
		return
	}
	payload, err := json.Marshal(responseCreateEvent{
		EventID: "evt_" + uuid.NewString(),
		Type:    "response.create",
		Response: responseCreateParams{
			Modalities:   c.cfg.Greeting.Modalities,
			Instructions: c.cfg.Greeting.Instructions,
		},
	})
	if err != nil {
		c.logger.Warnw("failed to encode greeting", "session", active.id, "error", err)
		return
	}
	if err := control.Send(payload); err != nil {
		c.logger.Warnw("failed to send greeting", "session", active.id, "error", err)
	}
}
