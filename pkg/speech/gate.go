package speech

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/crowers/amazon-sumerian-hosts/pkg/future"
)

// Gate tracks whether audio output is currently permitted. It observes the
// underlying permission primitive and exposes a future-returning resume
// operation that playback requests can be gated on.
type Gate struct {
	mu      sync.Mutex
	perm    Permission
	enabled bool
	waiters []*future.Future
	logger  *log.Logger
}

// NewGate creates a gate over the given permission primitive and subscribes
// to its state-change notifications.
func NewGate(perm Permission, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	g := &Gate{
		perm:    perm,
		enabled: perm.State() == Running,
		logger:  logger,
	}
	perm.Subscribe(g.handleStateChange)
	return g
}

// Enabled reports whether audio output is currently permitted.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Resume returns a future that settles once the resume attempt completes:
// resolved when the attempt succeeds (even if the permission is still
// suspended pending a user gesture), rejected when the attempt itself fails.
// Futures from earlier calls that are still pending also resolve when the
// permission transitions to Running.
func (g *Gate) Resume() *future.Future {
	f := future.New(nil, nil)

	g.mu.Lock()
	if g.enabled {
		g.mu.Unlock()
		f.Resolve(nil)
		return f
	}
	g.waiters = append(g.waiters, f)
	g.mu.Unlock()

	go func() {
		if err := g.perm.Resume(); err != nil {
			g.removeWaiter(f)
			f.Reject(err)
			return
		}
		if g.perm.State() == Running {
			// Some primitives do not emit a notification when the
			// transition was initiated by this call.
			g.handleStateChange(Running)
			return
		}
		// The attempt succeeded but output stays suspended until a user
		// gesture arrives. The request settles; callers re-check Enabled.
		g.removeWaiter(f)
		f.Resolve(nil)
	}()
	return f
}

// handleStateChange reacts to permission state notifications. A transition
// to Running enables the gate and resolves pending resume futures; a
// transition to Suspended disables it with a warning, since this is a
// recoverable, gesture-dependent condition rather than an error.
func (g *Gate) handleStateChange(state ReadinessState) {
	g.mu.Lock()
	if state == Running {
		g.enabled = true
		waiters := g.waiters
		g.waiters = nil
		g.mu.Unlock()
		for _, w := range waiters {
			w.Resolve(nil)
		}
		g.logger.Debug("audio output enabled")
		return
	}
	g.enabled = false
	g.mu.Unlock()
	g.logger.Warn("audio output suspended; a user gesture is required to resume",
		"state", state)
}

// removeWaiter drops a future from the pending resume list.
func (g *Gate) removeWaiter(f *future.Future) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, w := range g.waiters {
		if w == f {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}
