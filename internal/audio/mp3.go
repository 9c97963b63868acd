package audio

import (
	"bytes"
	"fmt"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 wraps fully buffered MP3 data in a seekable PCM decoder.
func DecodeMP3(data []byte) (*mp3.Decoder, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 stream: %w", err)
	}
	return dec, nil
}
