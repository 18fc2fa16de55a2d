package model

import "time"

// SnapshotOp is the archive operation carried by a queued snapshot record.
type SnapshotOp string

const (
	SnapshotOpUpsert SnapshotOp = "upsert"
	SnapshotOpDelete SnapshotOp = "delete"
)

// SnapshotRecord is one write to the durable snapshot archive. Payload is empty for deletes.
type SnapshotRecord struct {
	Op      SnapshotOp `json:"op"`
	Key     string     `json:"key"`
	Payload string     `json:"payload,omitempty"`
	At      time.Time  `json:"at"`
}
