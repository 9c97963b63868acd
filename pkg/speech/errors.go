package speech

import (
	"errors"
	"fmt"
)

// Common errors for the speech system.
var (
	// ErrNotPermitted indicates audio output was not permitted when a start
	// was attempted.
	ErrNotPermitted = errors.New("audio playback not permitted")

	// ErrReadiness indicates the audio permission resume attempt failed.
	ErrReadiness = errors.New("audio permission resume failed")

	// ErrNoResource indicates a session operation ran before an audio
	// resource was bound.
	ErrNoResource = errors.New("no audio resource bound")

	// ErrNoTransport indicates a gesture-restricted controller was built
	// without a persistent transport resource.
	ErrNoTransport = errors.New("gesture-restricted platform requires a transport resource")
)

// Cancellation reasons surfaced through future.CanceledError.
const (
	reasonSuperseded  = "superseded by a newer speech request"
	reasonInterrupted = "speech interrupted"
	reasonStopped     = "speech stopped"
)

// NotPermittedError reports that the permission resumed successfully but
// audio output was still not permitted by the time the start was attempted.
type NotPermittedError struct {
	// Host identifies the controller instance.
	Host string
}

// Error implements the error interface.
func (e *NotPermittedError) Error() string {
	return fmt.Sprintf(
		"%s: audio playback is not permitted; call ResumeAudio after a user gesture",
		e.Host,
	)
}

// Is reports whether target is ErrNotPermitted.
func (e *NotPermittedError) Is(target error) bool {
	return target == ErrNotPermitted
}

// ReadinessError reports a failed audio permission resume attempt.
type ReadinessError struct {
	// Host identifies the controller instance.
	Host string

	// Err is the underlying resume failure.
	Err error
}

// Error implements the error interface.
func (e *ReadinessError) Error() string {
	return fmt.Sprintf("%s: audio permission resume failed: %v", e.Host, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadinessError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrReadiness.
func (e *ReadinessError) Is(target error) bool {
	return target == ErrReadiness
}
