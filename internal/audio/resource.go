package audio

import (
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/crowers/amazon-sumerian-hosts/pkg/speech"
)

// endedPollInterval is how often the watcher checks for natural end of
// playback. oto has no completion callback, so the drained state is polled.
const endedPollInterval = 50 * time.Millisecond

// trackedStream wraps the decoded PCM stream so the byte position and EOF
// state can be observed while the player consumes it from its own goroutine.
type trackedStream struct {
	mu  sync.Mutex
	src io.ReadSeeker
	pos int64
	eof bool
}

func (t *trackedStream) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	t.mu.Lock()
	t.pos += int64(n)
	if err == io.EOF {
		t.eof = true
	}
	t.mu.Unlock()
	return n, err
}

func (t *trackedStream) Seek(offset int64, whence int) (int64, error) {
	n, err := t.src.Seek(offset, whence)
	if err != nil {
		return n, err
	}
	t.mu.Lock()
	t.pos = n
	t.eof = false
	t.mu.Unlock()
	return n, nil
}

func (t *trackedStream) position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

func (t *trackedStream) atEOF() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eof
}

// pcmPlayer is the subset of *oto.Player the resource drives.
type pcmPlayer interface {
	Play()
	Pause()
	IsPlaying() bool
	Err() error
	Volume() float64
	SetVolume(v float64)
	BufferedSize() int
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Resource plays one decoded MP3 stream through an oto player. It implements
// speech.Resource: start attempts settle asynchronously, positions may be
// negative (a logical pre-roll offset held while the physical stream sits at
// zero), and the natural end of playback is reported through SetOnEnded.
type Resource struct {
	mu        sync.Mutex
	newPlayer func(io.Reader) pcmPlayer
	player    pcmPlayer
	tracker   *trackedStream

	length         int64
	bytesPerSecond int64

	loop bool
	// logical holds a pending negative position. The physical stream never
	// seeks before zero.
	logical time.Duration

	onEnded  func()
	endFired bool

	watchStop chan struct{}

	logger *log.Logger
}

// seekableStream is the decoded PCM source: a seekable reader with a known
// total length.
type seekableStream interface {
	io.ReadSeeker
	Length() int64
	SampleRate() int
}

func newResource(ctx *oto.Context, stream seekableStream, cfg speech.ResourceConfig, logger *log.Logger) *Resource {
	return newResourceWith(func(r io.Reader) pcmPlayer {
		return ctx.NewPlayer(r)
	}, stream, cfg, logger)
}

func newResourceWith(newPlayer func(io.Reader) pcmPlayer, stream seekableStream, cfg speech.ResourceConfig, logger *log.Logger) *Resource {
	tracker := &trackedStream{src: stream}
	return &Resource{
		newPlayer:      newPlayer,
		player:         newPlayer(tracker),
		tracker:        tracker,
		length:         stream.Length(),
		bytesPerSecond: int64(stream.SampleRate()) * bytesPerSample,
		loop:           cfg.Loop,
		logger:         logger,
	}
}

// Play implements speech.Resource. The returned channel settles with the
// player's error state once the start attempt has been issued.
func (r *Resource) Play() <-chan error {
	ch := make(chan error, 1)
	r.mu.Lock()
	if r.logical < 0 {
		r.logical = 0
	}
	r.endFired = false
	r.player.Play()
	r.startWatcherLocked()
	err := r.player.Err()
	r.mu.Unlock()
	ch <- err
	return ch
}

// Pause implements speech.Resource.
func (r *Resource) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.player.Pause()
}

// Playing implements speech.Resource.
func (r *Resource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player.IsPlaying()
}

// CurrentTime implements speech.Resource. While a negative pre-roll position
// is pending it is returned as-is; otherwise the position is derived from the
// bytes consumed minus what still sits in the player's buffer.
func (r *Resource) CurrentTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logical < 0 {
		return r.logical
	}
	consumed := r.tracker.position() - int64(r.player.BufferedSize())
	if consumed < 0 {
		consumed = 0
	}
	return time.Duration(consumed) * time.Second / time.Duration(r.bytesPerSecond)
}

// SetCurrentTime implements speech.Resource. Negative positions are recorded
// logically while the stream stays parked at zero; positive positions seek
// the stream, aligned down to a whole sample.
func (r *Resource) SetCurrentTime(pos time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos < 0 {
		r.logical = pos
		r.seekLocked(0)
		return
	}
	r.logical = 0
	offset := int64(pos) * r.bytesPerSecond / int64(time.Second)
	r.seekLocked(offset)
}

// seekLocked positions the player at a sample-aligned byte offset within the
// stream bounds.
func (r *Resource) seekLocked(offset int64) {
	offset -= offset % bytesPerSample
	if offset < 0 {
		offset = 0
	}
	if offset > r.length {
		offset = r.length
	}
	if _, err := r.player.Seek(offset, io.SeekStart); err != nil {
		r.logger.Warn("audio seek failed", "offset", offset, "error", err)
	}
}

// Volume implements speech.Resource.
func (r *Resource) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player.Volume()
}

// SetVolume implements speech.Resource.
func (r *Resource) SetVolume(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.player.SetVolume(v)
}

// SetOnEnded implements speech.Resource. A later call replaces the handler.
func (r *Resource) SetOnEnded(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnded = fn
}

// Load swaps in a freshly decoded MP3 stream, keeping the volume and ended
// handler. Persistent transports on gesture-restricted platforms are reloaded
// this way for each utterance instead of being replaced.
func (r *Resource) Load(mp3Data []byte) error {
	stream, err := DecodeMP3(mp3Data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.player
	volume := old.Volume()
	old.Pause()

	r.tracker = &trackedStream{src: stream}
	r.player = r.newPlayer(r.tracker)
	r.player.SetVolume(volume)
	r.length = stream.Length()
	r.bytesPerSecond = int64(stream.SampleRate()) * bytesPerSample
	r.logical = 0
	r.endFired = false

	if err := old.Close(); err != nil {
		r.logger.Warn("failed to close previous audio player", "error", err)
	}
	return nil
}

// Close stops the watcher and releases the player.
func (r *Resource) Close() error {
	r.mu.Lock()
	if r.watchStop != nil {
		close(r.watchStop)
		r.watchStop = nil
	}
	player := r.player
	r.mu.Unlock()
	return player.Close()
}

// startWatcherLocked launches the end-of-playback poller if it is not
// already running. A fresh start attempt after a completed playback relaunches
// it, since the previous watcher exits once it reports the end.
func (r *Resource) startWatcherLocked() {
	if r.watchStop != nil {
		return
	}
	stop := make(chan struct{})
	r.watchStop = stop
	go r.watch(stop)
}

// watch polls for the drained state: the stream fully consumed and the
// player's buffer empty. Looping resources rewind and restart; others fire
// the ended handler once and exit, so a finished utterance holds no ticker
// or goroutine.
func (r *Resource) watch(stop chan struct{}) {
	ticker := time.NewTicker(endedPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		drained := r.tracker.atEOF() && r.player.BufferedSize() == 0
		if !drained || r.endFired {
			r.mu.Unlock()
			continue
		}
		if r.loop {
			r.seekLocked(0)
			r.player.Play()
			r.mu.Unlock()
			continue
		}
		r.endFired = true
		r.player.Pause()
		onEnded := r.onEnded
		if r.watchStop == stop {
			r.watchStop = nil
		}
		r.mu.Unlock()

		if onEnded != nil {
			onEnded()
		}
		return
	}
}
