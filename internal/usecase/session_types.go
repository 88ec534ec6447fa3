package usecase

import (
	"realtalk/internal/domain"
	"realtalk/internal/transcript"
)

type activeSession struct {
	id         string
	generation uint64
	cancel     func()
	negotiator *Negotiator

	// reducer and archived are owned by the control-event goroutine.
	reducer  *transcript.Reducer
	archived map[string]bool

	// snapshot, failure and consuming are guarded by SessionController.mu.
	snapshot  []domain.TranscriptItem
	failure   error
	consuming bool

	// eventsDone is closed when the control-event goroutine returns.
	eventsDone chan struct{}
}

func newActiveSession(id string, generation uint64, cancel func(), reducer *transcript.Reducer) *activeSession {
	return &activeSession{
		id:         id,
		generation: generation,
		cancel:     cancel,
		reducer:    reducer,
		archived:   make(map[string]bool),
		eventsDone: make(chan struct{}),
	}
}
