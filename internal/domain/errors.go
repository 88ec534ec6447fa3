package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveDisabled is returned when no transcript archive is configured.
	ErrArchiveDisabled = errors.New("transcript archive is disabled")
	// ErrTranscriptNotFound is returned when an archive holds nothing for a session.
	ErrTranscriptNotFound = errors.New("transcript not found")
)

// ErrorKind classifies errors surfaced to the UI.
type ErrorKind string

const (
	ErrorKindMediaAcquisition ErrorKind = "media_acquisition"
	ErrorKindNegotiation      ErrorKind = "negotiation"
	ErrorKindSignaling        ErrorKind = "signaling"
	ErrorKindMalformedMessage ErrorKind = "malformed_message"
	ErrorKindRemote           ErrorKind = "remote_error"
	ErrorKindTransport        ErrorKind = "transport"
	ErrorKindUnknown          ErrorKind = "unknown"
)

// MediaAcquisitionError reports that the microphone could not be opened.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	if e.Err == nil {
		return "media acquisition failed"
	}
	return fmt.Sprintf("media acquisition failed: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// NegotiationError reports that the session endpoint rejected the offer.
// Status is zero when no response was received at all.
type NegotiationError struct {
	Status int
	Body   string
	Err    error
}

func (e *NegotiationError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("session endpoint returned %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("session endpoint returned %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("session endpoint unreachable: %v", e.Err)
	default:
		return "session negotiation failed"
	}
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// SignalingError reports that the transport rejected a session description.
type SignalingError struct {
	Op  string
	Err error
}

func (e *SignalingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signaling failed during %s", e.Op)
	}
	return fmt.Sprintf("signaling failed during %s: %v", e.Op, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }

// MalformedMessageError marks a control-channel payload that could not be decoded.
type MalformedMessageError struct {
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err == nil {
		return "malformed message: " + e.Reason
	}
	return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// RemoteError is an in-band error event reported by the session endpoint.
type RemoteError struct {
	Type    string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
	}
	return "remote error: " + e.Message
}

// TransportError reports that an established peer connection was lost.
type TransportError struct {
	State string
}

func (e *TransportError) Error() string {
	return "peer connection " + e.State
}

// KindOf classifies err into the UI-facing error taxonomy.
func KindOf(err error) ErrorKind {
	var (
		mediaErr     *MediaAcquisitionError
		negotiateErr *NegotiationError
		signalErr    *SignalingError
		malformedErr *MalformedMessageError
		remoteErr    *RemoteError
		transportErr *TransportError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &mediaErr):
		return ErrorKindMediaAcquisition
	case errors.As(err, &negotiateErr):
		return ErrorKindNegotiation
	case errors.As(err, &signalErr):
		return ErrorKindSignaling
	case errors.As(err, &malformedErr):
		return ErrorKindMalformedMessage
	case errors.As(err, &remoteErr):
		return ErrorKindRemote
	case errors.As(err, &transportErr):
		return ErrorKindTransport
	default:
		return ErrorKindUnknown
	}
}

// FailureReason maps an error kind to the state reason reported with SessionStateFailed.
func FailureReason(kind ErrorKind) SessionStateReason {
	switch kind {
	case ErrorKindMediaAcquisition:
		return SessionReasonMediaFailed
	case ErrorKindNegotiation:
		return SessionReasonNegotiationFailed
	case ErrorKindRemote:
		return SessionReasonRemoteError
	case ErrorKindTransport:
		return SessionReasonTransportFailed
	default:
		return SessionReasonSignalingFailed
	}
}
