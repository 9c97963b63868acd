package speech

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// defaultUpdateRate is the timeline tick interval.
const defaultUpdateRate = 20 * time.Millisecond

// Callbacks are the per-playback notifications for a session.
type Callbacks struct {
	// OnFinish runs when the utterance completes naturally.
	OnFinish func()

	// OnError runs when playback fails terminally.
	OnError func(error)

	// OnInterrupt runs when an active utterance is cancelled.
	OnInterrupt func()

	// OnMark runs for each speechmark as its time elapses.
	OnMark func(Speechmark)
}

// Session binds one utterance of synthesized speech (text, speechmarks,
// audio resource) to a playback timeline. The timeline's local time advances
// while the session is logically playing; the utterance is finished only
// when the audio resource has signalled its natural end AND the last
// speechmark has elapsed; neither condition alone is sufficient.
type Session struct {
	mu sync.Mutex

	id         string
	text       string
	marks      []Speechmark
	markOffset time.Duration

	resource Resource

	machine       *stateMachine
	playing       bool
	audioFinished bool
	localTime     time.Duration
	markIndex     int

	clock      Clock
	updateRate time.Duration
	lastTick   time.Time
	stopTick   chan struct{}

	preRoll *time.Timer

	callbacks Callbacks

	logger *log.Logger
}

// NewSession creates a session for one utterance. The audio resource is
// bound separately once synthesis completes.
func NewSession(cfg SessionConfig) *Session {
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = defaultUpdateRate
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Session{
		id:         uuid.NewString(),
		text:       cfg.Text,
		marks:      cfg.Marks,
		markOffset: cfg.MarkOffset,
		machine:    newSessionMachine(),
		clock:      cfg.Clock,
		updateRate: cfg.UpdateRate,
		logger:     cfg.Logger,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Text returns the utterance text.
func (s *Session) Text() string {
	return s.text
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.state()
}

// Playing reports the logical playing flag.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// LocalTime returns the timeline position within the utterance.
func (s *Session) LocalTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localTime
}

// Finished reports whether the utterance completed: the audio resource
// reached its natural end and the timeline's last speechmark elapsed.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedLocked()
}

// Bind attaches the audio resource backing this utterance and registers the
// end-of-playback handler. Must be called before Play or Resume.
func (s *Session) Bind(r Resource) {
	s.mu.Lock()
	s.resource = r
	s.mu.Unlock()
	r.SetOnEnded(s.handleEnded)
}

// Volume returns the bound resource's volume, or 1 when unbound.
func (s *Session) Volume() float64 {
	s.mu.Lock()
	r := s.resource
	s.mu.Unlock()
	if r == nil {
		return 1
	}
	return r.Volume()
}

// SetVolume passes the volume through to the bound resource.
func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	r := s.resource
	s.mu.Unlock()
	if r != nil {
		r.SetVolume(v)
	}
}

// Play starts the utterance from the beginning. When the speechmark offset
// is negative, the audio resource is seeked to the negative pre-roll
// position and its real start is deferred until the pre-roll delay elapses;
// the deferred start is a no-op if the session is no longer playing by then.
func (s *Session) Play(cb Callbacks) error {
	s.mu.Lock()
	if s.resource == nil {
		s.mu.Unlock()
		return ErrNoResource
	}
	if !s.machine.transition(StateStarting) {
		st := s.machine.state()
		s.mu.Unlock()
		return fmt.Errorf("cannot play in state %s", st)
	}
	s.callbacks = cb
	s.audioFinished = false
	s.playing = true
	s.localTime = 0
	s.markIndex = 0
	s.machine.transition(StatePlaying)
	s.startTimelineLocked()
	res := s.resource
	offset := s.markOffset
	s.mu.Unlock()

	s.logger.Debug("speech playback starting",
		"session", s.id, "markOffset", offset, "marks", len(s.marks))

	if offset < 0 {
		res.SetCurrentTime(offset)
		s.schedulePreRoll(-offset)
		return nil
	}
	res.SetCurrentTime(0)
	s.requestStart(false)
	return nil
}

// Resume continues a paused utterance, or starts a fresh session from its
// current offset. It resets the audio-finished flag and resumes the
// resource.
func (s *Session) Resume(cb Callbacks) error {
	s.mu.Lock()
	if s.resource == nil {
		s.mu.Unlock()
		return ErrNoResource
	}
	switch st := s.machine.state(); st {
	case StatePaused:
		s.machine.transition(StatePlaying)
	case StateIdle, StateFinished, StateCancelled:
		s.machine.transition(StateStarting)
		s.machine.transition(StatePlaying)
	default:
		s.mu.Unlock()
		return fmt.Errorf("cannot resume in state %s", st)
	}
	s.callbacks = cb
	s.audioFinished = false
	s.playing = true
	s.startTimelineLocked()
	s.mu.Unlock()

	s.logger.Debug("speech playback resuming", "session", s.id)
	s.requestStart(false)
	return nil
}

// Pause halts the utterance. The audio resource is not paused synchronously:
// a start request is issued and the resource is paused once it settles, only
// if the session is still logically not playing. A resource is never paused
// before it has begun producing audio.
func (s *Session) Pause() error {
	s.mu.Lock()
	if !s.machine.transition(StatePaused) {
		st := s.machine.state()
		s.mu.Unlock()
		return fmt.Errorf("cannot pause in state %s", st)
	}
	s.playing = false
	s.stopPreRollLocked()
	s.mu.Unlock()

	s.logger.Debug("speech playback paused", "session", s.id)
	s.requestStart(false)
	return nil
}

// Cancel aborts the utterance, deferred-pausing the audio resource and
// resetting its position to zero. Idempotent and safe from any state.
func (s *Session) Cancel() {
	s.mu.Lock()
	st := s.machine.state()
	if st == StateCancelled {
		s.mu.Unlock()
		return
	}
	active := st == StateStarting || st == StatePlaying || st == StatePaused
	s.playing = false
	s.stopPreRollLocked()
	s.stopTimelineLocked()
	s.machine.transition(StateCancelled)
	onInterrupt := s.callbacks.OnInterrupt
	s.mu.Unlock()

	s.requestStart(true)
	if active && onInterrupt != nil {
		onInterrupt()
	}
}

// Stop halts the utterance and clears logical progress. Idempotent and safe
// from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	s.playing = false
	s.stopPreRollLocked()
	s.stopTimelineLocked()
	s.machine.transition(StateIdle)
	s.localTime = 0
	s.markIndex = 0
	s.audioFinished = false
	s.mu.Unlock()

	s.requestStart(true)
}

// requestStart issues a start request on the resource and, once the attempt
// settles, pauses the resource if the session is by then logically not
// playing. Invocation failures are recoverable (playback may still begin
// after a user gesture), so they are logged and swallowed. reset seeks the
// resource back to zero after a settled pause.
func (s *Session) requestStart(reset bool) {
	s.mu.Lock()
	res := s.resource
	s.mu.Unlock()
	if res == nil {
		return
	}
	settle := res.Play()
	go func() {
		if err := <-settle; err != nil {
			s.logger.Warn("audio start invocation failed",
				"session", s.id, "error", err)
		}
		s.mu.Lock()
		playing := s.playing
		s.mu.Unlock()
		if !playing {
			res.Pause()
			if reset {
				res.SetCurrentTime(0)
			}
		}
	}()
}

// schedulePreRoll arms the deferred-start timer for a negative speechmark
// offset.
func (s *Session) schedulePreRoll(delay time.Duration) {
	s.mu.Lock()
	if s.preRoll != nil {
		s.preRoll.Stop()
	}
	s.preRoll = time.AfterFunc(delay, s.firePreRoll)
	s.mu.Unlock()
}

// firePreRoll performs the deferred seek and start, unless playback was
// paused or cancelled while the pre-roll delay elapsed.
func (s *Session) firePreRoll() {
	s.mu.Lock()
	if s.machine.state() != StatePlaying {
		s.mu.Unlock()
		s.logger.Debug("pre-roll elapsed outside playback; skipping deferred start",
			"session", s.id)
		return
	}
	target := s.localTime + s.markOffset
	res := s.resource
	s.mu.Unlock()

	res.SetCurrentTime(target)
	s.requestStart(false)
}

// stopPreRollLocked disarms a pending pre-roll timer.
func (s *Session) stopPreRollLocked() {
	if s.preRoll != nil {
		s.preRoll.Stop()
		s.preRoll = nil
	}
}

// startTimelineLocked launches the ticker loop if it is not already running.
func (s *Session) startTimelineLocked() {
	if s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	s.lastTick = s.clock()
	go s.timelineLoop(stop)
}

// stopTimelineLocked halts the ticker loop.
func (s *Session) stopTimelineLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

// timelineLoop drives timeline updates at the configured rate.
func (s *Session) timelineLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.updateRate)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances local time while playing, dispatches due speechmarks in
// order, and checks for completion.
func (s *Session) tick() {
	s.mu.Lock()
	now := s.clock()
	elapsed := now.Sub(s.lastTick)
	s.lastTick = now

	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.localTime += elapsed

	var due []Speechmark
	for s.markIndex < len(s.marks) && s.marks[s.markIndex].Time <= s.localTime {
		due = append(due, s.marks[s.markIndex])
		s.markIndex++
	}
	onMark := s.callbacks.OnMark
	onFinish := s.maybeFinishLocked()
	s.mu.Unlock()

	if onMark != nil {
		for _, m := range due {
			onMark(m)
		}
	}
	if onFinish != nil {
		onFinish()
	}
}

// handleEnded records the resource's natural end-of-playback signal and
// checks for completion.
func (s *Session) handleEnded() {
	s.mu.Lock()
	s.audioFinished = true
	onFinish := s.maybeFinishLocked()
	s.mu.Unlock()

	s.logger.Debug("audio resource ended", "session", s.id)
	if onFinish != nil {
		onFinish()
	}
}

// maybeFinishLocked transitions to Finished when both completion conditions
// hold, returning the finish callback to invoke outside the lock.
func (s *Session) maybeFinishLocked() func() {
	if s.machine.state() != StatePlaying || !s.finishedLocked() {
		return nil
	}
	s.machine.transition(StateFinished)
	s.playing = false
	s.stopTimelineLocked()
	return s.callbacks.OnFinish
}

// finishedLocked evaluates the completion conjunction: natural audio end
// AND the last speechmark elapsed. Each is independently necessary.
func (s *Session) finishedLocked() bool {
	return s.audioFinished && s.timelineCompleteLocked()
}

// timelineCompleteLocked reports whether every speechmark has been
// dispatched and the final mark's time has elapsed.
func (s *Session) timelineCompleteLocked() bool {
	if s.markIndex < len(s.marks) {
		return false
	}
	return s.localTime >= lastMarkTime(s.marks)
}
