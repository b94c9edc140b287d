package models

import "time"

// SessionStatus represents the state of a recorded terminal session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusNotarized SessionStatus = "notarized"
	SessionStatusFailed    SessionStatus = "failed"
)

// Terminal reports whether the status is final. Terminal sessions never
// transition again.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusEnded, SessionStatusNotarized, SessionStatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusEnded, SessionStatusNotarized, SessionStatusFailed:
		return true
	}
	return false
}

// Command is a single transcript entry recovered from the terminal's
// history file. Timestamp is nil when the history line carried none.
type Command struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Command   string     `json:"command"`
}

// Session is one recorded terminal interaction bound to an identity.
// The JSON tags define the journal's on-disk record format.
type Session struct {
	ID           string        `json:"id"`
	Identity     string        `json:"identity"`
	Owner        string        `json:"owner"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	CommandCount int           `json:"command_count"`
	Commands     []Command     `json:"commands,omitempty"`
	Digest       string        `json:"digest,omitempty"`
	LedgerID     string        `json:"ledger_id,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Clone returns a deep copy of the session. Callers outside the manager
// always receive clones so index state cannot be mutated from outside.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		dup.EndedAt = &t
	}
	if s.Commands != nil {
		dup.Commands = make([]Command, len(s.Commands))
		for i, c := range s.Commands {
			dup.Commands[i] = c
			if c.Timestamp != nil {
				t := *c.Timestamp
				dup.Commands[i].Timestamp = &t
			}
		}
	}
	return &dup
}
