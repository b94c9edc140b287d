package manager

import (
	"sort"
	"sync"

	"github.com/anspn/iota-service/internal/models"
)

// Filter selects sessions for List. Zero-value fields match everything.
type Filter struct {
	Owner    string
	Identity string
	Status   models.SessionStatus
	Limit    int
}

// DefaultListLimit caps List results when the filter gives no limit.
const DefaultListLimit = 100

// Index is the process-wide in-memory session map. Reads are served
// concurrently under an RWMutex and never wait on the manager's mutation
// queue; all writes go through the manager. Lookups return deep copies so
// callers can never mutate indexed state.
type Index struct {
	mu   sync.RWMutex
	byID map[string]*models.Session
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]*models.Session)}
}

// Get returns a copy of the session, or nil if unknown.
func (ix *Index) Get(id string) *models.Session {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.byID[id].Clone()
}

// Put inserts or replaces a session record. The index stores its own copy.
func (ix *Index) Put(s *models.Session) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byID[s.ID] = s.Clone()
}

// List returns copies of the sessions matching the filter, sorted by start
// time descending.
func (ix *Index) List(f Filter) []*models.Session {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ix.mu.RLock()
	var matched []*models.Session
	for _, s := range ix.byID {
		if f.Owner != "" && s.Owner != f.Owner {
			continue
		}
		if f.Identity != "" && s.Identity != f.Identity {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*models.Session, len(matched))
	for i, s := range matched {
		out[i] = s.Clone()
	}
	ix.mu.RUnlock()

	return out
}

// Counts returns the number of sessions per status plus the total.
func (ix *Index) Counts() (total, active, ended, notarized, failed int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, s := range ix.byID {
		total++
		switch s.Status {
		case models.SessionStatusActive:
			active++
		case models.SessionStatusEnded:
			ended++
		case models.SessionStatusNotarized:
			notarized++
		case models.SessionStatusFailed:
			failed++
		}
	}
	return
}
