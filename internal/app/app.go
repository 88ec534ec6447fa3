package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"realtalk/internal/bootstrap"
	"realtalk/internal/config"
	"realtalk/internal/domain"
	"realtalk/internal/usecase"
)

const (
	frameHello      = "hello"
	frameState      = "state"
	frameTranscript = "transcript"
	frameResponse   = "response"
	frameMedia      = "media"
	frameError      = "error"
)

// Publisher fans frames out to connected UI clients.
type Publisher interface {
	Broadcast(v any)
}

// App is the application root shared by the HTTP surface.
type App struct {
	ctx    context.Context
	events Publisher
	logger *zap.SugaredLogger

	services   bootstrap.Services
	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

func New(events Publisher, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{events: events, logger: logger}
}

// Startup wires the backend. ctx bounds every session the app starts.
func (a *App) Startup(ctx context.Context, cfg config.Config) error {
	a.ctx = ctx
	a.cfg = cfg

	services, err := bootstrap.Build(cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorKindUnknown, err.Error())
		return err
	}

	a.services = services
	a.controller = services.Controller
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
	return nil
}

// Shutdown disconnects any live session and releases shared resources.
func (a *App) Shutdown() error {
	if a.controller == nil {
		return nil
	}
	return errors.Join(a.controller.Disconnect(), a.services.Close())
}

// Connect starts a realtime session.
func (a *App) Connect() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Connect(a.ctx); err != nil {
		if errors.Is(err, usecase.ErrConnectSuperseded) {
			return a.controller.Status(), nil
		}
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Disconnect ends the current session.
func (a *App) Disconnect() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Disconnect(); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// SetMuted toggles the microphone of the live session.
func (a *App) SetMuted(muted bool) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.SetMuted(muted); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateFailed, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle}
	}
	status := a.controller.Status()
	status.Message = sessionStateMessage(status.State)
	return status
}

// Transcript returns the items of the current or last session.
func (a *App) Transcript() []domain.TranscriptItem {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

// ArchivedTranscript reads the stored completed items of a past or current
// session from the archive.
func (a *App) ArchivedTranscript(ctx context.Context, sessionID string) ([]domain.TranscriptItem, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	if a.services.Archive == nil {
		return nil, domain.ErrArchiveDisabled
	}
	items, err := a.services.Archive.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list archived transcript: %w", err)
	}
	if len(items) == 0 {
		return nil, domain.ErrTranscriptNotFound
	}
	return items, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "OpenAI Realtime",
		"model":            a.cfg.OpenAI.Model,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"archive":          a.cfg.Archive.Store,
		"greeting":         fmt.Sprintf("%t", a.cfg.Session.Greeting),
	}
}

// Hello is the first frame sent to a newly connected UI client.
func (a *App) Hello() map[string]any {
	status := a.GetStatus()
	return map[string]any{
		"type":    frameHello,
		"ts":      time.Now().UnixMilli(),
		"state":   string(status.State),
		"muted":   status.Muted,
		"message": status.Message,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the UI.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.publish(map[string]any{
		"type":    frameState,
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// TranscriptUpdated emits a render instruction for one transcript item.
func (a *App) TranscriptUpdated(instruction domain.RenderInstruction) {
	a.publish(map[string]any{
		"type":     frameTranscript,
		"itemId":   instruction.ItemID,
		"role":     string(instruction.Role),
		"text":     instruction.Text,
		"complete": instruction.Complete,
	})
}

// ResponseStarted tells the UI the agent began a response.
func (a *App) ResponseStarted() {
	a.publish(map[string]any{
		"type":    frameResponse,
		"status":  "started",
		"message": "Response in progress...",
	})
}

// RemoteMediaReceived tells the UI the agent's media stream arrived.
func (a *App) RemoteMediaReceived(id, kind string) {
	a.publish(map[string]any{
		"type":    frameMedia,
		"id":      id,
		"kind":    kind,
		"message": "Agent audio connected",
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(kind domain.ErrorKind, detail string) {
	a.publish(map[string]any{
		"type":    frameError,
		"kind":    string(kind),
		"message": errorMessage(kind, detail),
		"detail":  detail,
	})
}

func (a *App) publish(frame map[string]any) {
	if a.events == nil {
		return
	}
	a.events.Broadcast(frame)
}

func sessionStateMessage(state domain.SessionState) string {
	switch state {
	case domain.SessionStateIdle:
		return "Ready to connect"
	case domain.SessionStateAcquiringMedia:
		return "Requesting microphone access..."
	case domain.SessionStateNegotiating:
		return "Connecting..."
	case domain.SessionStateConnected:
		return "Connected"
	case domain.SessionStateDisconnecting:
		return "Disconnecting..."
	case domain.SessionStateFailed:
		return "Connection failed"
	default:
		return ""
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready to connect"
	case domain.SessionReasonAcquiringMedia:
		return "Requesting microphone access..."
	case domain.SessionReasonNegotiating:
		return "Connecting..."
	case domain.SessionReasonConnected:
		return "Connected"
	case domain.SessionReasonDisconnecting:
		return "Disconnecting..."
	case domain.SessionReasonDisconnected:
		return "Disconnected"
	case domain.SessionReasonMediaFailed:
		return "Microphone unavailable"
	case domain.SessionReasonNegotiationFailed:
		return "Session request rejected"
	case domain.SessionReasonSignalingFailed:
		return "Connection setup failed"
	case domain.SessionReasonRemoteError:
		return "Session ended by the service"
	case domain.SessionReasonTransportFailed:
		return "Connection lost"
	default:
		return ""
	}
}

func errorMessage(kind domain.ErrorKind, detail string) string {
	switch kind {
	case domain.ErrorKindMediaAcquisition:
		return "Microphone access failed"
	case domain.ErrorKindNegotiation:
		return "Realtime session request failed"
	case domain.ErrorKindSignaling:
		return "Connection setup failed"
	case domain.ErrorKindMalformedMessage:
		return "Unreadable message from the service"
	case domain.ErrorKindRemote:
		if detail != "" {
			return detail
		}
		return "The service reported an error"
	case domain.ErrorKindTransport:
		return "Connection lost"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
