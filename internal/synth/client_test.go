package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/crowers/amazon-sumerian-hosts/pkg/speech"
)

func passthroughFactory(captured *[]byte) ResourceFactory {
	return func(data []byte, cfg speech.ResourceConfig) (speech.Resource, error) {
		if captured != nil {
			*captured = data
		}
		return speech.NewMockResource(), nil
	}
}

func newTestClient(t *testing.T, endpoint string, factory ResourceFactory) *Client {
	t.Helper()
	c, err := NewClient(Config{Endpoint: endpoint, Logger: log.New(io.Discard)}, factory)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, passthroughFactory(nil)); err == nil {
		t.Fatal("empty endpoint accepted")
	}
	if _, err := NewClient(Config{Endpoint: "http://example.com"}, nil); err == nil {
		t.Fatal("nil factory accepted")
	}
}

func TestClientSynthesize(t *testing.T) {
	audio := []byte("fake mp3 payload")
	var gotBody synthesizePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	var captured []byte
	c := newTestClient(t, srv.URL, passthroughFactory(&captured))

	syn, err := c.Synthesize(context.Background(), speech.SynthesisRequest{
		Text:  "hello world",
		Voice: "Joanna",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if syn.Resource == nil {
		t.Fatal("no resource returned")
	}
	if syn.URL != srv.URL {
		t.Fatalf("synthesis URL: got %q, want %q", syn.URL, srv.URL)
	}
	if string(captured) != string(audio) {
		t.Fatalf("factory payload: got %q, want %q", captured, audio)
	}
	if gotBody.Text != "hello world" || gotBody.Voice != "Joanna" || gotBody.Format != "mp3" {
		t.Fatalf("request payload: %+v", gotBody)
	}
}

func TestClientSynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, passthroughFactory(nil))
	_, err := c.Synthesize(context.Background(), speech.SynthesisRequest{Text: "hello"})
	if err == nil {
		t.Fatal("error status produced no error")
	}
	if !strings.Contains(err.Error(), "status=400") || !strings.Contains(err.Error(), "voice not found") {
		t.Fatalf("error detail: %v", err)
	}
}

func TestClientSynthesizeContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, passthroughFactory(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Synthesize(ctx, speech.SynthesisRequest{Text: "hello"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context: got %v, want context.Canceled", err)
	}
}

// reloadableResource is a persistent transport for the reuse path.
type reloadableResource struct {
	*speech.MockResource
	loaded [][]byte
	err    error
}

func (r *reloadableResource) Load(data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.loaded = append(r.loaded, data)
	return nil
}

func TestClientSynthesizeReuse(t *testing.T) {
	audio := []byte("fake mp3 payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(audio)
	}))
	defer srv.Close()

	factoryCalls := 0
	c := newTestClient(t, srv.URL, func(data []byte, cfg speech.ResourceConfig) (speech.Resource, error) {
		factoryCalls++
		return speech.NewMockResource(), nil
	})

	transport := &reloadableResource{MockResource: speech.NewMockResource()}
	syn, err := c.Synthesize(context.Background(), speech.SynthesisRequest{
		Text:  "hello",
		Reuse: transport,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if syn.Resource != speech.Resource(transport) {
		t.Fatal("reuse request returned a different resource")
	}
	if len(transport.loaded) != 1 || string(transport.loaded[0]) != string(audio) {
		t.Fatalf("loaded payloads: %v", transport.loaded)
	}
	if factoryCalls != 0 {
		t.Fatalf("factory used despite reuse: %d calls", factoryCalls)
	}

	// A transport that cannot reload is an error, not a silent replacement.
	if _, err := c.Synthesize(context.Background(), speech.SynthesisRequest{
		Text:  "hello",
		Reuse: speech.NewMockResource(),
	}); err == nil {
		t.Fatal("non-reloadable transport accepted")
	}
}
