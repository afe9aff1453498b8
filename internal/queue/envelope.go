// Package queue implements the job execution model: durable push, single
// in-flight consumption per worker, bounded retries and model status bookkeeping.
package queue

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire format of a queued job.
type Envelope struct {
	Args     []int64 `json:"args"`
	Attempts int     `json:"attempts"`
}

// Encode serializes the envelope to JSON.
func (e Envelope) Encode() ([]byte, error) {
	if e.Args == nil {
		e.Args = []int64{}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope parses a JSON envelope. An envelope without args is invalid.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if len(e.Args) == 0 {
		return Envelope{}, fmt.Errorf("envelope has no args")
	}
	if e.Attempts < 0 {
		return Envelope{}, fmt.Errorf("envelope has negative attempts %d", e.Attempts)
	}
	return e, nil
}
