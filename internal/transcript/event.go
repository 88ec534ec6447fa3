package transcript

import (
	"encoding/json"
	"strings"

	"realtalk/internal/domain"
)

// Control-channel event types the reducer understands.
const (
	TypeInputTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeAudioTranscriptDelta        = "response.audio_transcript.delta"
	TypeAudioTranscriptDone         = "response.audio_transcript.done"
	TypeContentPartDelta            = "response.content_part.delta"
	TypeContentPartDone             = "response.content_part.done"
	TypeOutputItemDone              = "response.output_item.done"
	TypeResponseCreated             = "response.created"
	TypeError                       = "error"
)

// Event is one decoded control-channel message. Optional string fields are
// pointers so an absent or null field can be told apart from an empty one.
type Event struct {
	Type       string         `json:"type"`
	EventID    string         `json:"event_id,omitempty"`
	ItemID     string         `json:"item_id,omitempty"`
	Delta      *string        `json:"delta,omitempty"`
	Transcript *string        `json:"transcript,omitempty"`
	Item       *EventItem     `json:"item,omitempty"`
	Part       *EventPart     `json:"part,omitempty"`
	Response   *EventResponse `json:"response,omitempty"`
	Error      *EventError    `json:"error,omitempty"`
}

type EventItem struct {
	ID string `json:"id"`
}

type EventPart struct {
	Transcript *string `json:"transcript,omitempty"`
}

type EventResponse struct {
	ID     string        `json:"id,omitempty"`
	Output []EventOutput `json:"output,omitempty"`
}

type EventOutput struct {
	ID      string         `json:"id,omitempty"`
	Content []EventContent `json:"content,omitempty"`
}

type EventContent struct {
	Transcript *string `json:"transcript,omitempty"`
}

type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decode parses a raw control-channel payload.
func Decode(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, &domain.MalformedMessageError{Reason: "invalid json", Err: err}
	}
	if strings.TrimSpace(event.Type) == "" {
		return Event{}, &domain.MalformedMessageError{Reason: "missing type"}
	}
	return event, nil
}

// key returns the item id the event refers to.
func (e Event) key() string {
	if e.ItemID != "" {
		return e.ItemID
	}
	if e.Item != nil {
		return e.Item.ID
	}
	return ""
}

func (e Event) firstOutput() (EventOutput, bool) {
	if e.Response == nil || len(e.Response.Output) == 0 {
		return EventOutput{}, false
	}
	return e.Response.Output[0], true
}

func (e Event) responseTranscript() (string, bool) {
	output, ok := e.firstOutput()
	if !ok || len(output.Content) == 0 || output.Content[0].Transcript == nil {
		return "", false
	}
	return *output.Content[0].Transcript, true
}

type category int

const (
	categoryUnknown category = iota
	categoryUserDelta
	categoryUserDone
	categoryAgentDelta
	categoryAgentDone
	categoryResponseCreated
	categoryError
)

func classify(eventType string) category {
	switch eventType {
	case TypeInputTranscriptionDelta:
		return categoryUserDelta
	case TypeInputTranscriptionCompleted:
		return categoryUserDone
	case TypeAudioTranscriptDelta, TypeContentPartDelta:
		return categoryAgentDelta
	case TypeAudioTranscriptDone, TypeContentPartDone, TypeOutputItemDone:
		return categoryAgentDone
	case TypeResponseCreated:
		return categoryResponseCreated
	case TypeError:
		return categoryError
	default:
		return categoryUnknown
	}
}
