package notary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anspn/iota-service/internal/models"
)

// ErrNotConfigured is returned by Publish when no ledger node is configured.
// Local notarization is optional: the session still finalizes with its
// digest, just without an on-chain anchor.
var ErrNotConfigured = errors.New("ledger publication not configured")

// Metadata accompanies a digest when it is anchored on the ledger.
type Metadata struct {
	SessionID string    `json:"session_id"`
	Identity  string    `json:"identity"`
	Owner     string    `json:"owner"`
	EndedAt   time.Time `json:"ended_at"`
}

// Client hashes session documents and optionally anchors digests on a
// distributed ledger. Hash is deterministic and pure; Publish performs a
// network round trip bounded by ctx.
type Client interface {
	Hash(payload []byte) (string, error)
	Publish(ctx context.Context, digest string, meta Metadata) (string, error)
}

// Document is the canonical session document covered by the digest. It
// includes identity and timestamps, so even a zero-command session produces
// a meaningful digest.
type Document struct {
	ID        string           `json:"id"`
	Identity  string           `json:"identity"`
	Owner     string           `json:"owner"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Commands  []models.Command `json:"commands"`
}

// BuildDocument serializes the finalized session into its document form.
// EndedAt must already be set.
func BuildDocument(s *models.Session) ([]byte, error) {
	if s.EndedAt == nil {
		return nil, fmt.Errorf("session %s has no end time", s.ID)
	}
	commands := s.Commands
	if commands == nil {
		commands = []models.Command{}
	}
	doc := Document{
		ID:        s.ID,
		Identity:  s.Identity,
		Owner:     s.Owner,
		StartedAt: s.StartedAt,
		EndedAt:   *s.EndedAt,
		Commands:  commands,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal session document: %w", err)
	}
	return data, nil
}
