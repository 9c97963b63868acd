// Package speech drives timed playback of synthesized speech for an
// interactive avatar host. It synchronizes narration audio with speechmark
// cues used for lip-sync, coordinating cancellable futures, audio permission
// readiness, pre-roll timing and platform start semantics while guaranteeing
// that exactly one utterance is ever current per controller.
package speech
