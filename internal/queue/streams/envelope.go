// Package streams carries performance events between the API surface and
// the feedback worker over Redis Streams with consumer groups.
package streams

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventPerformanceRecorded is published when engagement numbers arrive
// for previously delivered content.
const EventPerformanceRecorded = "performance.recorded"

// Envelope is the wire form of one stream entry.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// ValidateBasic checks the fields every entry must carry.
func (e Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("envelope event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("envelope event_type is required")
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope data is required")
	}
	return nil
}

// Marshal encodes the envelope for XADD.
func (e Envelope) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return raw, nil
}

// UnmarshalEnvelope decodes a consumed stream entry.
func UnmarshalEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
