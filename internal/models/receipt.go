package models

import "time"

// Receipt records a successful ledger publication for a finalized session.
type Receipt struct {
	ID          string
	SessionID   string
	Digest      string
	LedgerID    string
	PublishedAt time.Time
}
