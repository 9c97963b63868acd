package speech

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestSession(t *testing.T, cfg SessionConfig) *Session {
	t.Helper()
	if cfg.UpdateRate == 0 {
		cfg.UpdateRate = 2 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	s := NewSession(cfg)
	t.Cleanup(s.Stop)
	return s
}

func TestSessionPlayRequiresResource(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	if err := s.Play(Callbacks{}); !errors.Is(err, ErrNoResource) {
		t.Fatalf("Play without resource: got %v, want ErrNoResource", err)
	}
	if err := s.Resume(Callbacks{}); !errors.Is(err, ErrNoResource) {
		t.Fatalf("Resume without resource: got %v, want ErrNoResource", err)
	}
}

func TestSessionFinishRequiresTimeline(t *testing.T) {
	marks := []Speechmark{{Time: 30 * time.Millisecond, Type: "viseme", Value: "p"}}
	s := newTestSession(t, SessionConfig{Text: "hello", Marks: marks})
	res := NewMockResource()
	s.Bind(res)

	var finishes int
	var mu sync.Mutex
	cb := Callbacks{OnFinish: func() {
		mu.Lock()
		finishes++
		mu.Unlock()
	}}
	if err := s.Play(cb); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Audio ends immediately, but the timeline has not reached the last
	// mark yet.
	res.FinishAudio()
	if s.Finished() {
		t.Fatal("finished with timeline incomplete")
	}
	if got := s.State(); got != StatePlaying {
		t.Fatalf("state after early audio end: got %s, want %s", got, StatePlaying)
	}

	waitFor(t, time.Second, "session to finish", s.Finished)
	if got := s.State(); got != StateFinished {
		t.Fatalf("state: got %s, want %s", got, StateFinished)
	}
	waitFor(t, time.Second, "finish callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return finishes == 1
	})
}

func TestSessionFinishRequiresAudioEnd(t *testing.T) {
	marks := []Speechmark{{Time: 10 * time.Millisecond, Type: "word", Value: "hi"}}
	s := newTestSession(t, SessionConfig{Text: "hi", Marks: marks})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Let the timeline run well past the last mark.
	waitFor(t, time.Second, "timeline past last mark", func() bool {
		return s.LocalTime() > 50*time.Millisecond
	})
	if s.Finished() {
		t.Fatal("finished without the audio ending")
	}
	if got := s.State(); got != StatePlaying {
		t.Fatalf("state: got %s, want %s", got, StatePlaying)
	}

	res.FinishAudio()
	waitFor(t, time.Second, "session to finish", func() bool {
		return s.State() == StateFinished
	})
}

func TestSessionMarkDispatchOrder(t *testing.T) {
	marks := []Speechmark{
		{Time: 5 * time.Millisecond, Type: "word", Value: "a"},
		{Time: 5 * time.Millisecond, Type: "viseme", Value: "A"},
		{Time: 15 * time.Millisecond, Type: "word", Value: "b"},
	}
	s := newTestSession(t, SessionConfig{Text: "a b", Marks: marks})
	res := NewMockResource()
	s.Bind(res)

	var mu sync.Mutex
	var got []Speechmark
	cb := Callbacks{OnMark: func(m Speechmark) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	}}
	if err := s.Play(cb); err != nil {
		t.Fatalf("Play: %v", err)
	}

	waitFor(t, time.Second, "all marks dispatched", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(marks)
	})
	mu.Lock()
	defer mu.Unlock()
	for i, m := range got {
		if m.Value != marks[i].Value || m.Type != marks[i].Type {
			t.Fatalf("mark %d: got %s %v, want %s %v",
				i, m.Type, m.Value, marks[i].Type, marks[i].Value)
		}
	}
}

func TestSessionPreRollDeferredStart(t *testing.T) {
	offset := -60 * time.Millisecond
	s := newTestSession(t, SessionConfig{
		Text:       "hello",
		Marks:      []Speechmark{{Time: 200 * time.Millisecond, Type: "word", Value: "hello"}},
		MarkOffset: offset,
	})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}

	seeks := res.Seeks()
	if len(seeks) != 1 || seeks[0] != offset {
		t.Fatalf("initial seeks: got %v, want [%v]", seeks, offset)
	}
	if got := res.PlayCount(); got != 0 {
		t.Fatalf("start requests before pre-roll: got %d, want 0", got)
	}

	waitFor(t, time.Second, "deferred start", func() bool {
		return res.PlayCount() == 1
	})
	seeks = res.Seeks()
	if len(seeks) != 2 {
		t.Fatalf("seeks after pre-roll: got %v, want two entries", seeks)
	}
	// The deferred seek targets localTime+offset, which is near zero when
	// the timer fires roughly on time.
	if seeks[1] < -30*time.Millisecond || seeks[1] > 120*time.Millisecond {
		t.Fatalf("deferred seek target out of range: %v", seeks[1])
	}
}

func TestSessionPreRollSkippedAfterPause(t *testing.T) {
	offset := -80 * time.Millisecond
	s := newTestSession(t, SessionConfig{
		Text:       "hello",
		MarkOffset: offset,
		Marks:      []Speechmark{{Time: 300 * time.Millisecond, Type: "word", Value: "hello"}},
	})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Wait past the point the pre-roll timer would have fired.
	time.Sleep(150 * time.Millisecond)
	if seeks := res.Seeks(); len(seeks) != 1 {
		t.Fatalf("seeks: got %v, want just the pre-roll seek", seeks)
	}
	if res.Playing() {
		t.Fatal("resource playing after pause")
	}
	if got := s.State(); got != StatePaused {
		t.Fatalf("state: got %s, want %s", got, StatePaused)
	}
}

func TestSessionPauseDefersResourcePause(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	res := NewMockResource()
	res.HoldSettlements()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := res.PlayCount(); got != 1 {
		t.Fatalf("start requests: got %d, want 1", got)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := res.PauseCount(); got != 0 {
		t.Fatalf("resource paused before start settled: %d pauses", got)
	}

	// Pause issued its own start request; both settle, then the resource
	// ends up paused because the session is no longer playing.
	for res.Settle() {
	}
	waitFor(t, time.Second, "resource paused after settlement", func() bool {
		return res.PauseCount() == 2 && !res.Playing()
	})
}

func TestSessionCancelResetsResource(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	res := NewMockResource()
	s.Bind(res)

	var mu sync.Mutex
	var interrupts int
	cb := Callbacks{OnInterrupt: func() {
		mu.Lock()
		interrupts++
		mu.Unlock()
	}}
	if err := s.Play(cb); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitFor(t, time.Second, "resource playing", res.Playing)

	s.Cancel()
	if got := s.State(); got != StateCancelled {
		t.Fatalf("state: got %s, want %s", got, StateCancelled)
	}
	waitFor(t, time.Second, "resource reset", func() bool {
		return !res.Playing() && res.CurrentTime() == 0
	})
	mu.Lock()
	if interrupts != 1 {
		t.Fatalf("interrupts: got %d, want 1", interrupts)
	}
	mu.Unlock()

	// A second cancel is a no-op.
	plays := res.PlayCount()
	s.Cancel()
	mu.Lock()
	if interrupts != 1 {
		t.Fatalf("interrupts after repeat cancel: got %d, want 1", interrupts)
	}
	mu.Unlock()
	if got := res.PlayCount(); got != plays {
		t.Fatalf("start requests after repeat cancel: got %d, want %d", got, plays)
	}
}

func TestSessionStopClearsProgress(t *testing.T) {
	marks := []Speechmark{{Time: 500 * time.Millisecond, Type: "word", Value: "hello"}}
	s := newTestSession(t, SessionConfig{Text: "hello", Marks: marks})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitFor(t, time.Second, "timeline advancing", func() bool {
		return s.LocalTime() > 0
	})

	s.Stop()
	if got := s.State(); got != StateIdle {
		t.Fatalf("state: got %s, want %s", got, StateIdle)
	}
	if got := s.LocalTime(); got != 0 {
		t.Fatalf("local time after stop: got %v, want 0", got)
	}
	waitFor(t, time.Second, "resource reset", func() bool {
		return !res.Playing() && res.CurrentTime() == 0
	})
}

func TestSessionResumeAfterPause(t *testing.T) {
	marks := []Speechmark{{Time: 10 * time.Millisecond, Type: "word", Value: "hi"}}
	s := newTestSession(t, SessionConfig{Text: "hi", Marks: marks})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s.Playing() {
		t.Fatal("playing after pause")
	}

	if err := s.Resume(Callbacks{}); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := s.State(); got != StatePlaying {
		t.Fatalf("state: got %s, want %s", got, StatePlaying)
	}

	waitFor(t, time.Second, "timeline past last mark", func() bool {
		return s.LocalTime() > 20*time.Millisecond
	})
	res.FinishAudio()
	waitFor(t, time.Second, "session to finish", func() bool {
		return s.State() == StateFinished
	})
}

func TestSessionReplayAfterFinish(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	res.FinishAudio()
	waitFor(t, time.Second, "first playback to finish", func() bool {
		return s.State() == StateFinished
	})

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := s.State(); got != StatePlaying {
		t.Fatalf("state: got %s, want %s", got, StatePlaying)
	}
}

func TestSessionStartErrorIsNonFatal(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	res := NewMockResource()
	res.SetPlayError(errors.New("gesture required"))
	s.Bind(res)

	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.State(); got != StatePlaying {
		t.Fatalf("state after failed start invocation: got %s, want %s", got, StatePlaying)
	}
}

func TestSessionInvalidTransitions(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	res := NewMockResource()
	s.Bind(res)

	if err := s.Pause(); err == nil {
		t.Fatal("Pause from idle succeeded")
	}
	if err := s.Play(Callbacks{}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := s.Play(Callbacks{}); err == nil {
		t.Fatal("Play while playing succeeded")
	}
}

func TestSessionVolumePassthrough(t *testing.T) {
	s := newTestSession(t, SessionConfig{Text: "hello"})
	if got := s.Volume(); got != 1 {
		t.Fatalf("unbound volume: got %v, want 1", got)
	}
	s.SetVolume(0.2) // no resource, no panic

	res := NewMockResource()
	s.Bind(res)
	s.SetVolume(0.5)
	if got := res.Volume(); got != 0.5 {
		t.Fatalf("resource volume: got %v, want 0.5", got)
	}
	if got := s.Volume(); got != 0.5 {
		t.Fatalf("session volume: got %v, want 0.5", got)
	}
}
