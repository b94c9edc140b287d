package handoff

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteClaimRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	p, err := c.WriteTicket("sess-1", "did:iota:abc")
	require.NoError(t, err)
	assert.FileExists(t, p)

	ticket, err := c.ClaimLatest()
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ticket.SessionID)
	assert.Equal(t, "did:iota:abc", ticket.Identity)

	// Claim consumed the ticket file.
	assert.NoFileExists(t, p)

	_, err = c.ClaimLatest()
	assert.ErrorIs(t, err, ErrNoTicket)
}

func TestClaimLatestPicksNewest(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	p1, err := c.WriteTicket("old", "did:iota:old")
	require.NoError(t, err)
	_, err = c.WriteTicket("new", "did:iota:new")
	require.NoError(t, err)

	// Make mtimes unambiguous regardless of filesystem resolution.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(p1, past, past))

	ticket, err := c.ClaimLatest()
	require.NoError(t, err)
	assert.Equal(t, "new", ticket.SessionID)
}

func TestRemoveMissingTicketIsNoop(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Remove("never-written"))
}

func TestClaimIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	_, err = c.ClaimLatest()
	assert.ErrorIs(t, err, ErrNoTicket)
}
