package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

type fakeMediaSource struct {
	mu      sync.Mutex
	medias  []*fakeLocalMedia
	err     error
	calls   int
	release chan struct{}
	entered chan struct{}
}

func (f *fakeMediaSource) Acquire(ctx context.Context, _ domain.MediaConstraints) (ports.LocalMedia, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.medias) {
		return nil, errors.New("no local media configured")
	}
	media := f.medias[f.calls]
	f.calls++
	return media, nil
}

type fakeLocalMedia struct {
	mu        sync.Mutex
	id        string
	enabled   bool
	toggles   []bool
	stopCalls int
}

func newFakeLocalMedia(id string) *fakeLocalMedia {
	return &fakeLocalMedia{id: id, enabled: true}
}

func (f *fakeLocalMedia) ID() string { return f.id }

func (f *fakeLocalMedia) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
	f.toggles = append(f.toggles, enabled)
}

func (f *fakeLocalMedia) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeLocalMedia) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeLocalMedia) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeRemoteMedia struct {
	mu         sync.Mutex
	id         string
	closeCalls int
}

func (f *fakeRemoteMedia) ID() string   { return f.id }
func (f *fakeRemoteMedia) Kind() string { return "audio" }

func (f *fakeRemoteMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeRemoteMedia) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type fakeControlChannel struct {
	label    string
	opened   chan struct{}
	messages chan []byte

	mu         sync.Mutex
	sent       [][]byte
	closeCalls int
	closed     bool
}

func newFakeControlChannel(label string) *fakeControlChannel {
	return &fakeControlChannel{
		label:    label,
		opened:   make(chan struct{}),
		messages: make(chan []byte, 32),
	}
}

func (f *fakeControlChannel) Label() string           { return f.label }
func (f *fakeControlChannel) Opened() <-chan struct{} { return f.opened }
func (f *fakeControlChannel) Messages() <-chan []byte { return f.messages }
func (f *fakeControlChannel) open()                   { close(f.opened) }

func (f *fakeControlChannel) push(payloads ...string) {
	for _, p := range payloads {
		f.messages <- []byte(p)
	}
}

func (f *fakeControlChannel) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeControlChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *fakeControlChannel) snapshotSent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeControlChannel) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type fakeTransport struct {
	mu sync.Mutex

	control   *fakeControlChannel
	addErr    error
	offerErr  error
	localErr  error
	remoteErr error

	added      []ports.LocalMedia
	labels     []string
	localSDP   string
	remoteSDP  string
	onRemote   func(ports.RemoteMedia)
	onState    func(ports.TransportState)
	closeCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{control: newFakeControlChannel(DefaultControlChannelLabel)}
}

func (f *fakeTransport) AddLocalMedia(media ports.LocalMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, media)
	return nil
}

func (f *fakeTransport) CreateControlChannel(label string) (ports.ControlChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, label)
	return f.control, nil
}

func (f *fakeTransport) CreateOffer() (string, error) {
	if f.offerErr != nil {
		return "", f.offerErr
	}
	return "v=0 offer", nil
}

func (f *fakeTransport) SetLocalDescription(_ context.Context, offer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.localErr != nil {
		return "", f.localErr
	}
	f.localSDP = offer + "\na=candidate:gathered"
	return f.localSDP, nil
}

func (f *fakeTransport) SetRemoteDescription(answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remoteSDP = answer
	return nil
}

func (f *fakeTransport) OnRemoteMedia(fn func(ports.RemoteMedia)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRemote = fn
}

func (f *fakeTransport) OnStateChange(fn func(ports.TransportState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeTransport) emitState(state ports.TransportState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	fn(state)
}

func (f *fakeTransport) emitRemote(media ports.RemoteMedia) {
	f.mu.Lock()
	fn := f.onRemote
	f.mu.Unlock()
	fn(media)
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type fakeTransportFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	calls      int
}

func (f *fakeTransportFactory) NewTransport() (ports.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.transports) {
		return nil, errors.New("no transport configured")
	}
	transport := f.transports[f.calls]
	f.calls++
	return transport, nil
}

func (f *fakeTransportFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEndpoint struct {
	mu     sync.Mutex
	answer string
	err    error
	offers []string

	// hold blocks Exchange until its context ends.
	hold    bool
	entered chan struct{}
}

func (f *fakeEndpoint) Exchange(ctx context.Context, offer string) (string, error) {
	f.mu.Lock()
	f.offers = append(f.offers, offer)
	answer, err, hold, entered := f.answer, f.err, f.hold, f.entered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if hold {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return answer, nil
}

type fakeArchive struct {
	mu    sync.Mutex
	items map[string][]domain.TranscriptItem
	err   error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{items: make(map[string][]domain.TranscriptItem)}
}

func (f *fakeArchive) Append(_ context.Context, sessionID string, item domain.TranscriptItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items[sessionID] = append(f.items[sessionID], item)
	return nil
}

func (f *fakeArchive) List(_ context.Context, sessionID string) ([]domain.TranscriptItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptItem(nil), f.items[sessionID]...), nil
}

func (f *fakeArchive) Close() error { return nil }

type fakeEventSink struct {
	mu sync.Mutex

	states    []stateEvent
	renders   []domain.RenderInstruction
	responses int
	remotes   []string
	errors    []errEvent
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	kind   domain.ErrorKind
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) TranscriptUpdated(instruction domain.RenderInstruction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, instruction)
}

func (f *fakeEventSink) ResponseStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
}

func (f *fakeEventSink) RemoteMediaReceived(id, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remotes = append(f.remotes, kind+":"+id)
}

func (f *fakeEventSink) snapshotRemotes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.remotes...)
}

func (f *fakeEventSink) SessionError(kind domain.ErrorKind, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{kind: kind, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionState, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s.state)
	}
	return out
}

func (f *fakeEventSink) snapshotRenders() []domain.RenderInstruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RenderInstruction, len(f.renders))
	copy(out, f.renders)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) responseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func statesEqual(got []domain.SessionState, want ...domain.SessionState) error {
	if len(got) != len(want) {
		return fmt.Errorf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected states %v, got %v", want, got)
		}
	}
	return nil
}
