// Package synth implements the speech synthesis collaborator over HTTP: it
// posts utterance text to a synthesis service, downloads the full MP3 payload,
// and materializes it as a playable audio resource.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/crowers/amazon-sumerian-hosts/pkg/speech"
)

// ResourceFactory turns a fully downloaded MP3 payload into a playable
// resource.
type ResourceFactory func(mp3Data []byte, cfg speech.ResourceConfig) (speech.Resource, error)

// Reloader is a persistent transport that can accept a new audio stream in
// place, used on platforms where the resource must be reused across
// utterances.
type Reloader interface {
	speech.Resource
	Load(mp3Data []byte) error
}

// Config holds synthesis client options.
type Config struct {
	// Endpoint is the synthesis service URL.
	Endpoint string

	// APIKey, when set, is sent as an Api-Key authorization header.
	APIKey string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	Logger *log.Logger
}

// Client is an HTTP speech.Synthesizer. Synthesize does not return until the
// audio payload is fully downloaded, so a successful result is always safe to
// start immediately.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	factory  ResourceFactory
	logger   *log.Logger
}

// NewClient creates a synthesis client that builds resources with factory.
func NewClient(cfg Config, factory ResourceFactory) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("synthesis endpoint not set")
	}
	if factory == nil {
		return nil, errors.New("resource factory not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     cfg.HTTPClient,
		factory:  factory,
		logger:   cfg.Logger,
	}, nil
}

// synthesizePayload is the request body wire format.
type synthesizePayload struct {
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format"`
}

// Synthesize implements speech.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, req speech.SynthesisRequest) (*speech.Synthesis, error) {
	body, err := json.Marshal(synthesizePayload{
		Text:   req.Text,
		Voice:  req.Voice,
		Format: "mp3",
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return nil, fmt.Errorf("synthesis error: status=%d, body=%s", resp.StatusCode, bytes.TrimSpace(b))
	}

	// Download everything before returning: the caller may start playback
	// the moment Synthesize settles.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to download synthesized audio: %w", err)
	}
	c.logger.Debug("synthesized audio downloaded",
		"voice", req.Voice, "size", humanize.Bytes(uint64(len(data))))

	res, err := c.materialize(req, data)
	if err != nil {
		return nil, err
	}
	return &speech.Synthesis{URL: c.endpoint, Resource: res}, nil
}

// materialize either reloads the caller's persistent transport or builds a
// fresh disposable resource.
func (c *Client) materialize(req speech.SynthesisRequest, data []byte) (speech.Resource, error) {
	if req.Reuse != nil {
		rel, ok := req.Reuse.(Reloader)
		if !ok {
			return nil, fmt.Errorf("transport %T cannot load new audio", req.Reuse)
		}
		if err := rel.Load(data); err != nil {
			return nil, err
		}
		return rel, nil
	}
	return c.factory(data, req.Resource)
}
