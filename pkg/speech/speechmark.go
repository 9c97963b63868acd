package speech

import (
	"encoding/json"
	"fmt"
	"time"
)

// Speechmark is a timestamped cue within an utterance used to drive external
// animation. Marks arrive as an ordered sequence; insertion order is
// chronological order.
type Speechmark struct {
	// Time is the offset from the utterance start.
	Time time.Duration
	// Type identifies the cue kind (viseme, word, sentence, ssml).
	Type string
	// Value is the cue payload.
	Value any
}

// speechmarkJSON is the wire format: time as a millisecond number.
type speechmarkJSON struct {
	Time  float64 `json:"time"`
	Type  string  `json:"type"`
	Value any     `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (m Speechmark) MarshalJSON() ([]byte, error) {
	return json.Marshal(speechmarkJSON{
		Time:  float64(m.Time) / float64(time.Millisecond),
		Type:  m.Type,
		Value: m.Value,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Speechmark) UnmarshalJSON(data []byte) error {
	var w speechmarkJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Time = time.Duration(w.Time * float64(time.Millisecond))
	m.Type = w.Type
	m.Value = w.Value
	return nil
}

// ParseMarks decodes an ordered speechmark array, preserving insertion
// order.
func ParseMarks(data []byte) ([]Speechmark, error) {
	var marks []Speechmark
	if err := json.Unmarshal(data, &marks); err != nil {
		return nil, fmt.Errorf("parse speechmarks: %w", err)
	}
	return marks, nil
}

// lastMarkTime returns the end time of the final mark, or zero when the
// sequence is empty.
func lastMarkTime(marks []Speechmark) time.Duration {
	if len(marks) == 0 {
		return 0
	}
	return marks[len(marks)-1].Time
}
