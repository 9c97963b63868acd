package speech

import (
	"time"

	"github.com/charmbracelet/log"
)

// ResourceConfig is passed at resource-acquisition time and configures the
// acquired audio resource.
type ResourceConfig struct {
	// Loop restarts playback at the natural end instead of ending.
	Loop bool

	// CrossOrigin is the cross-origin policy for remote audio.
	CrossOrigin string

	// Preload is the buffering hint.
	Preload string

	// Muted acquires the resource muted.
	Muted bool
}

// DefaultResourceConfig returns the standard acquisition configuration.
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		CrossOrigin: "anonymous",
		Preload:     "auto",
	}
}

// SpeechConfig describes one utterance request.
type SpeechConfig struct {
	// Voice selects the synthesis voice.
	Voice string

	// Marks is the ordered speechmark sequence for the utterance.
	Marks []Speechmark

	// MarkOffset shifts speechmark timing relative to the audio. Negative
	// values delay the audio start (pre-roll).
	MarkOffset time.Duration

	// OnMark is invoked for each speechmark as its time elapses.
	OnMark func(Speechmark)
}

// ControllerConfig holds configuration for a playback controller.
type ControllerConfig struct {
	// Name identifies the host in errors and logs.
	Name string

	// Platform selects the start semantics. Resolved once per environment,
	// not per call.
	Platform PlatformCapability

	// Transport is the persistently reused audio resource for
	// gesture-restricted platforms. Required when Platform is
	// PlatformGestureRequired.
	Transport Resource

	// Resource configures acquired audio resources. Nil selects
	// DefaultResourceConfig; a pointer to the zero value is honored as-is.
	Resource *ResourceConfig

	// UpdateRate is the timeline tick interval. Defaults to 20ms.
	UpdateRate time.Duration

	// Clock overrides the timeline time base. Defaults to time.Now.
	Clock Clock

	// Logger overrides the default logger.
	Logger *log.Logger
}

// SessionConfig holds configuration for an utterance session.
type SessionConfig struct {
	// Text is the utterance text.
	Text string

	// Marks is the ordered speechmark sequence.
	Marks []Speechmark

	// MarkOffset is the signed speechmark offset; negative means pre-roll.
	MarkOffset time.Duration

	// UpdateRate is the timeline tick interval. Defaults to 20ms.
	UpdateRate time.Duration

	// Clock overrides the timeline time base. Defaults to time.Now.
	Clock Clock

	// Logger overrides the default logger.
	Logger *log.Logger
}
