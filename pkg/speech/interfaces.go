package speech

import (
	"context"
	"time"
)

// Resource is the contract a session expects from an audio resource: a media
// element, an oto-backed player, or a mock.
type Resource interface {
	// Play initiates playback. The returned channel receives exactly one
	// value when the start attempt settles; a non-nil value means the
	// invocation itself failed, which is common under autoplay restrictions
	// and treated as recoverable.
	Play() <-chan error

	// Pause halts playback without changing the position.
	Pause()

	// Playing reports whether the resource is currently producing audio.
	Playing() bool

	// CurrentTime returns the playback position.
	CurrentTime() time.Duration

	// SetCurrentTime seeks. Negative positions express pre-roll delay;
	// resources that cannot represent them physically record the logical
	// position and clamp the physical one at zero.
	SetCurrentTime(pos time.Duration)

	// Volume returns the playback volume in [0, 1].
	Volume() float64

	// SetVolume sets the playback volume.
	SetVolume(v float64)

	// SetOnEnded registers fn to run when playback reaches the natural end
	// of the audio, replacing any previously registered handler.
	SetOnEnded(fn func())
}

// ReadinessState is the state of the audio output permission.
type ReadinessState int

const (
	// Suspended means audio output is not currently permitted.
	Suspended ReadinessState = iota
	// Running means audio output is permitted.
	Running
)

// String returns a string representation of the readiness state.
func (s ReadinessState) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Permission is the readiness primitive controlling whether audio output is
// currently allowed (a browser audio context, an audio device).
type Permission interface {
	// State returns the current permission state.
	State() ReadinessState

	// Resume attempts to unlock audio output. A nil return means the
	// attempt succeeded; the permission may still report Suspended until a
	// user gesture arrives.
	Resume() error

	// Subscribe registers fn for state-change notifications.
	Subscribe(fn func(ReadinessState))
}

// SynthesisRequest carries the parameters for one synthesis invocation.
type SynthesisRequest struct {
	// Text is the content to synthesize.
	Text string

	// Voice selects the synthesis voice.
	Voice string

	// Resource configures the acquired audio resource.
	Resource ResourceConfig

	// Reuse, when non-nil, asks the collaborator to load the synthesized
	// audio into this resource instead of acquiring a new one. Set for the
	// persistent transport on gesture-restricted platforms.
	Reuse Resource
}

// Synthesis is the result of a synthesis invocation.
type Synthesis struct {
	// URL locates the synthesized audio.
	URL string

	// Resource plays the synthesized audio.
	Resource Resource
}

// Synthesizer is the external synthesis collaborator. Implementations must
// not return until the resource has buffered enough data to play through
// without interruption.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Synthesis, error)
}

// Control is a designated start control on gesture-restricted platforms.
type Control interface {
	// ID uniquely identifies the control.
	ID() string

	// OnGesture registers fn to run on activation gestures. The returned
	// function unbinds the listener.
	OnGesture(fn func()) (unbind func())
}

// Clock supplies the session timeline's time base. Injectable for tests.
type Clock func() time.Time
