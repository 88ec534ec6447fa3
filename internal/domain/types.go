package domain

// SessionState models the realtime session lifecycle.
type SessionState string

const (
	SessionStateIdle           SessionState = "idle"
	SessionStateAcquiringMedia SessionState = "acquiring_media"
	SessionStateNegotiating    SessionState = "negotiating"
	SessionStateConnected      SessionState = "connected"
	SessionStateDisconnecting  SessionState = "disconnecting"
	SessionStateFailed         SessionState = "failed"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady             SessionStateReason = "ready"
	SessionReasonAcquiringMedia    SessionStateReason = "acquiring_media"
	SessionReasonNegotiating       SessionStateReason = "negotiating"
	SessionReasonConnected         SessionStateReason = "connected"
	SessionReasonDisconnecting     SessionStateReason = "disconnecting"
	SessionReasonDisconnected      SessionStateReason = "disconnected"
	SessionReasonMediaFailed       SessionStateReason = "media_failed"
	SessionReasonNegotiationFailed SessionStateReason = "negotiation_failed"
	SessionReasonSignalingFailed   SessionStateReason = "signaling_failed"
	SessionReasonRemoteError       SessionStateReason = "remote_error"
	SessionReasonTransportFailed   SessionStateReason = "transport_failed"
)

// Role identifies who produced a transcript item.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TranscriptItem is one conversational turn keyed by the remote item id.
type TranscriptItem struct {
	ItemID   string `json:"itemId"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

// RenderInstruction tells the UI how a transcript item currently reads.
type RenderInstruction struct {
	ItemID   string `json:"itemId"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

// Item converts the instruction to its stored transcript form.
func (r RenderInstruction) Item() TranscriptItem {
	return TranscriptItem{ItemID: r.ItemID, Role: r.Role, Text: r.Text, Complete: r.Complete}
}

// MediaConstraints describes how the microphone should be captured.
type MediaConstraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
	SampleRate       int  `json:"sampleRate"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	Muted     bool         `json:"muted"`
	SessionID string       `json:"sessionId,omitempty"`
	Message   string       `json:"message,omitempty"`
}
