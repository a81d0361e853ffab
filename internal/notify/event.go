// Package notify emits hash-chained run events so downstream consumers
// can detect missed or tampered runs.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event announces a committed dataset run.
type Event struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	EmittedAt time.Time `json:"emitted_at"`

	Namespace string `json:"namespace"`
	Dataset   string `json:"dataset"`
	Version   string `json:"version"`
	RunID     string `json:"run_id"`
	Procedure string `json:"procedure"`

	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
	Checksum string `json:"checksum"`
	URI      string `json:"uri"`

	Chain ChainInfo `json:"chain"`

	// EventHash is computed over the canonical JSON form of the event
	// with this field empty.
	EventHash string `json:"event_hash"`
}

// ChainInfo links an event to its predecessor.
type ChainInfo struct {
	Sequence uint64 `json:"sequence"`
	PrevHash string `json:"prev_hash"`
}

// EventTypeRunCommitted is emitted after every successful commit.
const EventTypeRunCommitted = "run.committed"

// ComputeEventHash returns the sha256 hex digest of the event's
// canonical JSON form, excluding the event_hash field itself.
func ComputeEventHash(ev Event) (string, error) {
	ev.EventHash = ""
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshaling event for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
