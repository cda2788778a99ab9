package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted audit record of something that happened to a run.
// The same payloads are published to NATS; the table is the durable history.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	RunID     string          `json:"run_id"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
