package transcript

import (
	"go.uber.org/zap"

	"realtalk/internal/domain"
)

// InstructionKind identifies what the UI should do with an Instruction.
type InstructionKind string

const (
	InstructionRender          InstructionKind = "render"
	InstructionError           InstructionKind = "error"
	InstructionResponseStarted InstructionKind = "response_started"
)

// Instruction is one reducer output. Render is set for InstructionRender,
// Err for InstructionError.
type Instruction struct {
	Kind   InstructionKind
	Render domain.RenderInstruction
	Err    *domain.RemoteError
}

// textExtractor yields the final text of a done event when the source it
// inspects is present. prior is nil for an unseen item.
type textExtractor func(event Event, prior *domain.TranscriptItem) (string, bool)

// doneTextExtractors are evaluated in order; the first present value wins.
var doneTextExtractors = []textExtractor{
	func(e Event, _ *domain.TranscriptItem) (string, bool) {
		if e.Transcript == nil {
			return "", false
		}
		return *e.Transcript, true
	},
	func(e Event, _ *domain.TranscriptItem) (string, bool) {
		if e.Part == nil || e.Part.Transcript == nil {
			return "", false
		}
		return *e.Part.Transcript, true
	},
	func(e Event, _ *domain.TranscriptItem) (string, bool) {
		return e.responseTranscript()
	},
	func(_ Event, prior *domain.TranscriptItem) (string, bool) {
		if prior == nil {
			return "", false
		}
		return prior.Text, true
	},
	func(Event, *domain.TranscriptItem) (string, bool) {
		return "", true
	},
}

// Reducer folds control-channel events into transcript items. It is not safe
// for concurrent use; one goroutine must own it.
type Reducer struct {
	logger *zap.SugaredLogger
	items  map[string]*domain.TranscriptItem
	order  []string
}

func NewReducer(logger *zap.SugaredLogger) *Reducer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reducer{
		logger: logger,
		items:  make(map[string]*domain.TranscriptItem),
	}
}

// Apply reduces one event and returns the instructions it produced, in
// emission order.
func (r *Reducer) Apply(event Event) []Instruction {
	switch classify(event.Type) {
	case categoryUserDelta:
		return r.applyDelta(event, domain.RoleUser)
	case categoryUserDone:
		out := r.applyDone(event, domain.RoleUser)
		return append(out, r.applyCoArrivingAgent(event)...)
	case categoryAgentDelta:
		return r.applyDelta(event, domain.RoleAgent)
	case categoryAgentDone:
		return r.applyDone(event, domain.RoleAgent)
	case categoryResponseCreated:
		return []Instruction{{Kind: InstructionResponseStarted}}
	case categoryError:
		return []Instruction{{Kind: InstructionError, Err: remoteError(event)}}
	default:
		r.logger.Debugw("ignoring unrecognized event", "type", event.Type)
		return nil
	}
}

// Items returns a snapshot of all items in first-seen order.
func (r *Reducer) Items() []domain.TranscriptItem {
	out := make([]domain.TranscriptItem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.items[id])
	}
	return out
}

// Reset drops all items.
func (r *Reducer) Reset() {
	r.items = make(map[string]*domain.TranscriptItem)
	r.order = nil
}

func (r *Reducer) applyDelta(event Event, role domain.Role) []Instruction {
	id := event.key()
	if id == "" {
		r.logger.Warnw("dropping delta without item id", "type", event.Type)
		return nil
	}

	item := r.items[id]
	if item != nil && item.Complete {
		r.logger.Debugw("ignoring delta for completed item", "type", event.Type, "itemId", id)
		return nil
	}
	if item == nil {
		item = r.track(id, role)
	}
	if event.Delta != nil {
		item.Text += *event.Delta
	}
	return []Instruction{render(item)}
}

func (r *Reducer) applyDone(event Event, role domain.Role) []Instruction {
	id := event.key()
	if id == "" {
		r.logger.Warnw("dropping done event without item id", "type", event.Type)
		return nil
	}

	item := r.items[id]
	if item != nil && item.Complete {
		r.logger.Debugw("item already complete; re-emitting final text", "type", event.Type, "itemId", id)
		return []Instruction{render(item)}
	}

	text := resolveDoneText(event, item)
	if item == nil {
		item = r.track(id, role)
	}
	item.Text = text
	item.Complete = true
	return []Instruction{render(item)}
}

// applyCoArrivingAgent handles a user completion that also carries a
// finished agent output in the same message.
func (r *Reducer) applyCoArrivingAgent(event Event) []Instruction {
	output, ok := event.firstOutput()
	if !ok || output.ID == "" || output.ID == event.key() {
		return nil
	}
	transcript, ok := event.responseTranscript()
	if !ok {
		return nil
	}
	return r.applyDone(Event{Type: TypeOutputItemDone, ItemID: output.ID, Transcript: &transcript}, domain.RoleAgent)
}

func (r *Reducer) track(id string, role domain.Role) *domain.TranscriptItem {
	item := &domain.TranscriptItem{ItemID: id, Role: role}
	r.items[id] = item
	r.order = append(r.order, id)
	return item
}

func resolveDoneText(event Event, prior *domain.TranscriptItem) string {
	for _, extract := range doneTextExtractors {
		if text, ok := extract(event, prior); ok {
			return text
		}
	}
	return ""
}

func render(item *domain.TranscriptItem) Instruction {
	return Instruction{
		Kind: InstructionRender,
		Render: domain.RenderInstruction{
			ItemID:   item.ItemID,
			Role:     item.Role,
			Text:     item.Text,
			Complete: item.Complete,
		},
	}
}

func remoteError(event Event) *domain.RemoteError {
	out := &domain.RemoteError{Message: "unknown error"}
	if event.Error == nil {
		return out
	}
	out.Type = event.Error.Type
	out.Code = event.Error.Code
	if event.Error.Message != "" {
		out.Message = event.Error.Message
	}
	return out
}
