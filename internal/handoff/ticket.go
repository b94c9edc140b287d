package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoTicket is returned by ClaimLatest when no unclaimed ticket exists.
var ErrNoTicket = errors.New("no pending ticket")

// Ticket is the one-shot claim record conveying a new session's id and
// identity to the terminal process.
type Ticket struct {
	SessionID string
	Identity  string
}

// Channel hands sessions off to an independently started terminal process
// through one-shot ticket files. The manager writes a ticket at session
// start; the terminal process, on launch, claims (consumes) the newest one.
// The protocol is at most once, best effort: the manager never waits for or
// verifies the claim.
type Channel struct {
	dir string
}

// New creates a handoff channel rooted at dir, creating it if needed.
func New(dir string) (*Channel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tickets directory: %w", err)
	}
	return &Channel{dir: dir}, nil
}

func (c *Channel) path(sessionID string) string {
	return filepath.Join(c.dir, sessionID+".ticket")
}

// WriteTicket writes the ticket for a new session and returns its path.
// The format is two plain lines — session id, then identity — so a shell
// hook can consume it without a JSON parser.
func (c *Channel) WriteTicket(sessionID, identity string) (string, error) {
	p := c.path(sessionID)
	body := sessionID + "\n" + identity + "\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write handoff ticket: %w", err)
	}
	return p, nil
}

// Remove deletes an unclaimed ticket. Used to roll back a failed Start;
// a ticket already claimed by a terminal is simply gone, which is fine.
func (c *Channel) Remove(sessionID string) error {
	err := os.Remove(c.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove handoff ticket: %w", err)
	}
	return nil
}

// ClaimLatest consumes the most recently created ticket and returns its
// contents. Returns ErrNoTicket when the directory holds none.
func (c *Channel) ClaimLatest() (*Ticket, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("scan tickets directory: %w", err)
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ticket") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().UnixNano() > newestMod {
			newest = entry.Name()
			newestMod = info.ModTime().UnixNano()
		}
	}
	if newest == "" {
		return nil, ErrNoTicket
	}

	p := filepath.Join(c.dir, newest)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read handoff ticket: %w", err)
	}

	// Consume before returning: the ticket is one-shot.
	if err := os.Remove(p); err != nil {
		return nil, fmt.Errorf("consume handoff ticket: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	t := &Ticket{SessionID: strings.TrimSpace(lines[0])}
	if len(lines) > 1 {
		t.Identity = strings.TrimSpace(lines[1])
	}
	if t.SessionID == "" {
		return nil, fmt.Errorf("malformed handoff ticket: %s", newest)
	}
	return t, nil
}
