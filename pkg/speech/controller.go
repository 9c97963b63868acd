package speech

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/crowers/amazon-sumerian-hosts/pkg/future"
)

// PlatformCapability selects the playback start semantics for the current
// environment. It is resolved once per environment and injected, never
// re-derived per call.
type PlatformCapability int

const (
	// PlatformUnrestricted allows programmatic playback on a disposable
	// audio resource per utterance.
	PlatformUnrestricted PlatformCapability = iota
	// PlatformGestureRequired restricts playback to a single persistently
	// reused audio resource that was first armed by a direct user gesture
	// (mobile autoplay policies).
	PlatformGestureRequired
)

// String returns a string representation of the capability.
func (p PlatformCapability) String() string {
	switch p {
	case PlatformUnrestricted:
		return "unrestricted"
	case PlatformGestureRequired:
		return "gesture-required"
	default:
		return "unknown"
	}
}

// DetectPlatform probes the environment's playback capability.
func DetectPlatform() PlatformCapability {
	switch runtime.GOOS {
	case "ios", "android":
		return PlatformGestureRequired
	}
	return PlatformUnrestricted
}

// Playback request modes.
const (
	methodPlay   = "play"
	methodResume = "resume"
)

// utterance is one current-slot pair: the session and the future its
// consumer observes. At most one pair is current per controller.
type utterance struct {
	session *Session
	future  *future.Future
}

// Controller orchestrates speech playback for one host. It maintains the
// single current session/future pair, arbitrates supersession between
// overlapping requests (last call wins), gates starts on the readiness gate,
// and selects platform-appropriate transport.
type Controller struct {
	mu sync.Mutex

	name     string
	gate     *Gate
	synth    Synthesizer
	platform PlatformCapability

	current *utterance

	// transport is the shared page-resident resource reused for every
	// utterance on gesture-restricted platforms.
	transport Resource

	// armed tracks which start controls have been activated by a gesture,
	// keyed by control id. Owned here rather than stored on the controls.
	armed   map[string]bool
	unbinds map[string]func()

	resourceCfg ResourceConfig
	updateRate  time.Duration
	clock       Clock
	volume      float64

	logger *log.Logger
}

// NewController creates a playback controller. gate and synth are required;
// a transport resource is required on gesture-restricted platforms.
func NewController(gate *Gate, synth Synthesizer, cfg ControllerConfig) (*Controller, error) {
	if gate == nil {
		return nil, fmt.Errorf("readiness gate not set")
	}
	if synth == nil {
		return nil, fmt.Errorf("synthesizer not set")
	}
	if cfg.Platform == PlatformGestureRequired && cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	if cfg.Name == "" {
		cfg.Name = "host-" + uuid.NewString()[:8]
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	resCfg := DefaultResourceConfig()
	if cfg.Resource != nil {
		resCfg = *cfg.Resource
	}
	return &Controller{
		name:        cfg.Name,
		gate:        gate,
		synth:       synth,
		platform:    cfg.Platform,
		transport:   cfg.Transport,
		armed:       make(map[string]bool),
		unbinds:     make(map[string]func()),
		resourceCfg: resCfg,
		updateRate:  cfg.UpdateRate,
		clock:       cfg.Clock,
		volume:      1,
		logger:      cfg.Logger,
	}, nil
}

// Name returns the host identifier.
func (c *Controller) Name() string {
	return c.name
}

// Enabled reports whether audio output is currently permitted.
func (c *Controller) Enabled() bool {
	return c.gate.Enabled()
}

// ResumeAudio manually attempts to unlock audio output. Host applications
// call this from a user gesture handler.
func (c *Controller) ResumeAudio() *future.Future {
	return c.gate.Resume()
}

// Play requests playback of text from the beginning of the utterance. The
// returned future resolves with the session when the utterance finishes,
// rejects on permission or synthesis failure, and is cancelled when a newer
// request supersedes this one.
func (c *Controller) Play(text string, cfg SpeechConfig) *future.Future {
	return c.startSpeech(text, cfg, methodPlay)
}

// Resume requests playback of text continuing from the current offset.
func (c *Controller) Resume(text string, cfg SpeechConfig) *future.Future {
	return c.startSpeech(text, cfg, methodResume)
}

// CurrentSession returns the session in the current slot, if any.
func (c *Controller) CurrentSession() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current.session, true
}

// PauseSpeech pauses the current utterance.
func (c *Controller) PauseSpeech() error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return fmt.Errorf("%s: no current speech", c.name)
	}
	return cur.session.Pause()
}

// StopSpeech cancels the current utterance if it has not settled.
func (c *Controller) StopSpeech() {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return
	}
	if !cur.future.Cancel(reasonStopped) {
		// Already settled; still force the session fully idle.
		cur.session.Stop()
	}
}

// Volume returns the controller volume applied to utterances.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolume sets the controller volume and passes it through to the current
// session.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = v
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.session.SetVolume(v)
	}
}

// startSpeech builds a session/future pair, atomically installs it as the
// current slot (cancelling any superseded pair), and gates the start on the
// readiness gate. The future's cleanup hook cancels the paired session on
// every terminal outcome, success included, so no session is left with live
// timers after its future settles.
func (c *Controller) startSpeech(text string, cfg SpeechConfig, method string) *future.Future {
	sess := NewSession(SessionConfig{
		Text:       text,
		Marks:      cfg.Marks,
		MarkOffset: cfg.MarkOffset,
		UpdateRate: c.updateRate,
		Clock:      c.clock,
		Logger:     c.logger,
	})
	fut := future.New(nil, func() { sess.Cancel() })
	pair := &utterance{session: sess, future: fut}

	c.mu.Lock()
	prev := c.current
	c.current = pair
	c.mu.Unlock()

	if prev != nil && prev.future.Pending() {
		c.logger.Debug("superseding in-flight speech request",
			"host", c.name, "superseded", prev.session.ID())
		prev.future.Cancel(reasonSuperseded)
	}

	ready := c.gate.Resume()
	go func() {
		<-ready.Done()
		c.onReady(pair, ready, text, cfg, method)
	}()
	return fut
}

// onReady runs when the readiness future settles. It re-validates that this
// pair is still pending and still current before proceeding: last call wins.
func (c *Controller) onReady(pair *utterance, ready *future.Future, text string, cfg SpeechConfig, method string) {
	// The consumer already settled the future; nothing to do.
	if !pair.future.Pending() {
		return
	}
	// A later request superseded this one while the gate was resolving.
	if !c.isCurrent(pair) {
		pair.future.Cancel(reasonSuperseded)
		return
	}
	if err := ready.Err(); err != nil {
		pair.future.Reject(&ReadinessError{Host: c.name, Err: err})
		return
	}
	if !c.gate.Enabled() {
		// The resume attempt settled but output is still not permitted.
		pair.future.Reject(&NotPermittedError{Host: c.name})
		return
	}
	c.synthesizeAndStart(pair, text, cfg, method)
}

// synthesizeAndStart invokes the synthesis collaborator, binds the resulting
// audio resource, and starts the session's timeline. Synthesis is a
// suspension point, so currency and pendingness are re-validated after it
// settles.
func (c *Controller) synthesizeAndStart(pair *utterance, text string, cfg SpeechConfig, method string) {
	req := SynthesisRequest{
		Text:     text,
		Voice:    cfg.Voice,
		Resource: c.resourceCfg,
	}
	if c.platform == PlatformGestureRequired {
		req.Reuse = c.transport
	}

	syn, err := c.synth.Synthesize(context.Background(), req)
	if err != nil {
		if !pair.future.Pending() {
			return
		}
		if !c.isCurrent(pair) {
			pair.future.Cancel(reasonSuperseded)
			return
		}
		// Synthesis failures propagate to the caller unchanged.
		pair.future.Reject(err)
		return
	}

	if !pair.future.Pending() {
		return
	}
	if !c.isCurrent(pair) {
		pair.future.Cancel(reasonSuperseded)
		return
	}

	sess := pair.session
	sess.Bind(syn.Resource)
	syn.Resource.SetVolume(c.Volume())

	cb := Callbacks{
		OnFinish:    func() { pair.future.Resolve(sess) },
		OnError:     func(err error) { pair.future.Reject(err) },
		OnInterrupt: func() { pair.future.Cancel(reasonInterrupted) },
		OnMark:      cfg.OnMark,
	}

	var startErr error
	if method == methodResume {
		startErr = sess.Resume(cb)
	} else {
		startErr = sess.Play(cb)
	}
	if startErr != nil {
		cb.OnError(startErr)
		return
	}
	c.logger.Debug("speech started",
		"host", c.name, "session", sess.ID(), "method", method, "url", syn.URL)
}

// isCurrent reports whether pair still occupies the current slot.
func (c *Controller) isCurrent(pair *utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == pair
}

// EnableGestureControls binds a one-time arming listener to each designated
// start control. Binding is idempotent per control id. On unrestricted
// platforms this is a no-op.
func (c *Controller) EnableGestureControls(controls ...Control) {
	if c.platform != PlatformGestureRequired {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ctrl := range controls {
		id := ctrl.ID()
		if _, bound := c.unbinds[id]; bound {
			continue
		}
		c.unbinds[id] = ctrl.OnGesture(c.gestureHandler(id))
	}
}

// DisableGestureControls unbinds every gesture listener.
func (c *Controller) DisableGestureControls() {
	c.mu.Lock()
	unbinds := c.unbinds
	c.unbinds = make(map[string]func())
	c.mu.Unlock()
	for _, unbind := range unbinds {
		unbind()
	}
}

// Armed reports whether the control with the given id has been armed by a
// gesture.
func (c *Controller) Armed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed[id]
}

// gestureHandler arms the control once and primes the shared transport
// inside the gesture, so later programmatic restarts are permitted.
func (c *Controller) gestureHandler(id string) func() {
	return func() {
		c.mu.Lock()
		if c.armed[id] {
			c.mu.Unlock()
			return
		}
		c.armed[id] = true
		transport := c.transport
		c.mu.Unlock()

		c.logger.Debug("start control armed", "host", c.name, "control", id)

		if transport != nil {
			settle := transport.Play()
			go func() {
				<-settle
				c.mu.Lock()
				cur := c.current
				c.mu.Unlock()
				if cur == nil || !cur.session.Playing() {
					transport.Pause()
				}
			}()
		}
		// A gesture is also the moment to unlock the audio permission.
		c.gate.Resume()
	}
}
