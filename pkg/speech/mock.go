package speech

import (
	"context"
	"sync"
	"time"
)

// MockResource is an in-memory Resource for testing without real audio.
type MockResource struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	volume   float64
	onEnded  func()

	manual  bool
	pending []chan error

	playErr error

	playCalls  int
	pauseCalls int
	seeks      []time.Duration
}

// NewMockResource creates a mock resource whose start attempts settle
// immediately and successfully.
func NewMockResource() *MockResource {
	return &MockResource{volume: 1}
}

// HoldSettlements makes start attempts stay in flight until Settle is
// called.
func (m *MockResource) HoldSettlements() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = true
}

// SetPlayError makes start attempts settle with err.
func (m *MockResource) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// Settle completes the oldest in-flight start attempt. It reports whether
// one was pending.
func (m *MockResource) Settle() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	ch := m.pending[0]
	m.pending = m.pending[1:]
	err := m.playErr
	if err == nil {
		m.playing = true
	}
	m.mu.Unlock()
	ch <- err
	return true
}

// PlayCount returns the number of start attempts issued.
func (m *MockResource) PlayCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

// PauseCount returns the number of pause calls.
func (m *MockResource) PauseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

// Seeks returns a copy of every position set on the resource, in order.
func (m *MockResource) Seeks() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seeks))
	copy(out, m.seeks)
	return out
}

// Play implements Resource.
func (m *MockResource) Play() <-chan error {
	ch := make(chan error, 1)
	m.mu.Lock()
	m.playCalls++
	if m.manual {
		m.pending = append(m.pending, ch)
		m.mu.Unlock()
		return ch
	}
	err := m.playErr
	if err == nil {
		m.playing = true
	}
	m.mu.Unlock()
	ch <- err
	return ch
}

// Pause implements Resource.
func (m *MockResource) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	m.playing = false
}

// Playing implements Resource.
func (m *MockResource) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// CurrentTime implements Resource.
func (m *MockResource) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetCurrentTime implements Resource. Negative positions are recorded
// exactly.
func (m *MockResource) SetCurrentTime(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, pos)
	m.position = pos
}

// Volume implements Resource.
func (m *MockResource) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// SetVolume implements Resource.
func (m *MockResource) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
}

// SetOnEnded implements Resource.
func (m *MockResource) SetOnEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnded = fn
}

// FinishAudio simulates the natural end of playback.
func (m *MockResource) FinishAudio() {
	m.mu.Lock()
	m.playing = false
	fn := m.onEnded
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MockPermission is an in-memory readiness primitive.
type MockPermission struct {
	mu    sync.Mutex
	state ReadinessState
	subs  []func(ReadinessState)

	resumeErr error
	// grantOnResume makes a successful Resume transition to Running. When
	// false, Resume succeeds but the state stays as-is (browser-style
	// resume without a gesture).
	grantOnResume bool
	hold          chan struct{}

	resumeCalls int
}

// NewMockPermission creates a permission in the given initial state whose
// Resume attempts succeed and grant.
func NewMockPermission(initial ReadinessState) *MockPermission {
	return &MockPermission{state: initial, grantOnResume: true}
}

// SetResumeError makes Resume attempts fail with err.
func (m *MockPermission) SetResumeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeErr = err
}

// SetGrantOnResume controls whether a successful Resume transitions the
// state to Running.
func (m *MockPermission) SetGrantOnResume(grant bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantOnResume = grant
}

// HoldResume makes Resume calls block until ReleaseResume (or a direct
// SetState) happens.
func (m *MockPermission) HoldResume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = make(chan struct{})
}

// ReleaseResume unblocks held Resume calls.
func (m *MockPermission) ReleaseResume() {
	m.mu.Lock()
	hold := m.hold
	m.hold = nil
	m.mu.Unlock()
	if hold != nil {
		close(hold)
	}
}

// ResumeCount returns the number of Resume attempts.
func (m *MockPermission) ResumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeCalls
}

// State implements Permission.
func (m *MockPermission) State() ReadinessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resume implements Permission.
func (m *MockPermission) Resume() error {
	m.mu.Lock()
	m.resumeCalls++
	hold := m.hold
	err := m.resumeErr
	grant := m.grantOnResume
	m.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return err
	}
	if grant {
		m.SetState(Running)
	}
	return nil
}

// Subscribe implements Permission.
func (m *MockPermission) Subscribe(fn func(ReadinessState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetState transitions the permission and notifies subscribers.
func (m *MockPermission) SetState(state ReadinessState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]func(ReadinessState), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

// MockSynthesizer is an in-memory synthesis collaborator.
type MockSynthesizer struct {
	mu   sync.Mutex
	err  error
	gate chan struct{}

	requests []SynthesisRequest
	created  []*MockResource
}

// NewMockSynthesizer creates a synthesizer that succeeds immediately,
// acquiring a fresh MockResource per request unless reuse is asked for.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// SetError makes synthesis fail with err.
func (m *MockSynthesizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes Synthesize block until Release is called.
func (m *MockSynthesizer) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release unblocks held Synthesize calls.
func (m *MockSynthesizer) Release() {
	m.mu.Lock()
	gate := m.gate
	m.gate = nil
	m.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

// Requests returns a copy of every synthesis invocation, in order.
func (m *MockSynthesizer) Requests() []SynthesisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SynthesisRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Created returns a copy of the resources acquired for non-reuse requests,
// in request order.
func (m *MockSynthesizer) Created() []*MockResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockResource, len(m.created))
	copy(out, m.created)
	return out
}

// Synthesize implements Synthesizer.
func (m *MockSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gate := m.gate
	err := m.err
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	res := req.Reuse
	if res == nil {
		mock := NewMockResource()
		m.mu.Lock()
		m.created = append(m.created, mock)
		m.mu.Unlock()
		res = mock
	}
	return &Synthesis{
		URL:      "mock://synthesis/" + req.Voice,
		Resource: res,
	}, nil
}

// MockControl is an in-memory gesture start control.
type MockControl struct {
	mu       sync.Mutex
	id       string
	nextKey  int
	handlers map[int]func()
	bindings int
}

// NewMockControl creates a control with the given id.
func NewMockControl(id string) *MockControl {
	return &MockControl{id: id, handlers: make(map[int]func())}
}

// ID implements Control.
func (m *MockControl) ID() string {
	return m.id
}

// OnGesture implements Control.
func (m *MockControl) OnGesture(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings++
	key := m.nextKey
	m.nextKey++
	m.handlers[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, key)
	}
}

// Bindings returns the total number of OnGesture registrations.
func (m *MockControl) Bindings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings
}

// Bound returns the number of currently bound handlers.
func (m *MockControl) Bound() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// Touch simulates a user gesture on the control.
func (m *MockControl) Touch() {
	m.mu.Lock()
	handlers := make([]func(), 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}
