// Package audio provides the hardware-backed playback primitives: a Device
// wrapping an oto audio context that doubles as the output permission, and a
// Resource playing decoded MP3 streams through it.
package audio

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/crowers/amazon-sumerian-hosts/pkg/speech"
)

// Audio output format. go-mp3 decodes to signed 16-bit little-endian stereo,
// so the context is fixed to that layout.
const (
	DefaultSampleRate = 44100
	channelCount      = 2
	bytesPerSample    = 4 // 16-bit * 2 channels
)

// Config holds device initialization options.
type Config struct {
	// SampleRate of the output context. Decoded streams must match it.
	SampleRate int

	// BufferSize of the output context. Zero selects a platform default.
	BufferSize time.Duration

	Logger *log.Logger
}

// Device owns the process-wide audio context. The context is not created
// until Resume is called, so the device starts suspended; this mirrors
// autoplay-restricted environments where output stays locked until the host
// application deliberately unlocks it.
type Device struct {
	mu    sync.Mutex
	ctx   *oto.Context
	state speech.ReadinessState
	subs  []func(speech.ReadinessState)

	// initMu serializes context creation; oto allows one context per process.
	initMu sync.Mutex

	sampleRate int
	bufferSize time.Duration
	logger     *log.Logger
}

// NewDevice creates a suspended audio device.
func NewDevice(cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = platformBufferSize()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Device{
		state:      speech.Suspended,
		sampleRate: cfg.SampleRate,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
	}
}

// platformBufferSize picks a context buffer size for the current OS.
func platformBufferSize() time.Duration {
	switch runtime.GOOS {
	case "darwin":
		return 100 * time.Millisecond
	case "windows":
		return 80 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// State implements speech.Permission.
func (d *Device) State() speech.ReadinessState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Subscribe implements speech.Permission.
func (d *Device) Subscribe(fn func(speech.ReadinessState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

// Resume implements speech.Permission: it creates the audio context on first
// call and transitions the device to Running. Safe to call repeatedly.
func (d *Device) Resume() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	d.mu.Lock()
	initialized := d.ctx != nil
	d.mu.Unlock()
	if initialized {
		d.setState(speech.Running)
		return nil
	}

	opts := &oto.NewContextOptions{
		SampleRate:   d.sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   d.bufferSize,
	}
	d.logger.Debug("initializing audio context",
		"sampleRate", opts.SampleRate, "bufferSize", opts.BufferSize)

	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return fmt.Errorf("failed to create audio context: %w", err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("audio context initialization timeout")
	}

	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	d.setState(speech.Running)
	return nil
}

// Suspend marks the device suspended without tearing down the context, so a
// later Resume is cheap. Host applications call this when losing focus.
func (d *Device) Suspend() {
	d.setState(speech.Suspended)
}

// setState transitions the device and notifies subscribers outside the lock.
func (d *Device) setState(state speech.ReadinessState) {
	d.mu.Lock()
	if d.state == state {
		d.mu.Unlock()
		return
	}
	d.state = state
	subs := make([]func(speech.ReadinessState), len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	d.logger.Debug("audio device state changed", "state", state)
	for _, fn := range subs {
		fn(state)
	}
}

// SampleRate returns the output sample rate.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// NewResource decodes mp3Data and binds it to a player on this device. The
// device must be running.
func (d *Device) NewResource(mp3Data []byte, cfg speech.ResourceConfig) (*Resource, error) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return nil, fmt.Errorf("audio device not running: %w", speech.ErrNotPermitted)
	}

	stream, err := DecodeMP3(mp3Data)
	if err != nil {
		return nil, err
	}
	if sr := stream.SampleRate(); sr != d.sampleRate {
		return nil, fmt.Errorf("stream sample rate %d does not match device rate %d", sr, d.sampleRate)
	}
	return newResource(ctx, stream, cfg, d.logger), nil
}
