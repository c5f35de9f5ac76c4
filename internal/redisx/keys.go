package redisx

import "time"

const (
	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Fast-path marker for completed restores: cancel:done:{order_id}.
	// The ledger's own event table stays the source of truth; this only
	// short-circuits obvious replays.
	KeyCancelDone = "cancel:done:%d"
)

var (
	TTLDedup      = 48 * time.Hour
	TTLCancelDone = 24 * time.Hour
)
