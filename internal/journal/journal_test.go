package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anspn/iota-service/internal/models"
)

func TestWriteReadRoundTrip(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)

	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ended := started.Add(5 * time.Minute)
	ts := started.Add(time.Minute)

	sess := &models.Session{
		ID:           "01HSESSION1",
		Identity:     "did:iota:abc123",
		Owner:        "alice",
		Status:       models.SessionStatusNotarized,
		StartedAt:    started,
		EndedAt:      &ended,
		CommandCount: 2,
		Commands: []models.Command{
			{Timestamp: &ts, Command: "ls -la"},
			{Command: "git status"},
		},
		Digest:   "deadbeef",
		LedgerID: "block-42",
	}

	require.NoError(t, j.Write(sess))

	got, err := j.Read("01HSESSION1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestWriteOverwritesPreviousSnapshot(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)

	sess := &models.Session{ID: "sess-1", Identity: "did:iota:x", Owner: "bob", Status: models.SessionStatusActive, StartedAt: time.Now().UTC()}
	require.NoError(t, j.Write(sess))

	sess.Status = models.SessionStatusEnded
	sess.Digest = "abc"
	require.NoError(t, j.Write(sess))

	got, err := j.Read("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, got.Status)
	assert.Equal(t, "abc", got.Digest)
}

func TestReadMissing(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = j.Read("nope")
	require.Error(t, err)
}

func TestLoadAllSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, j.Write(&models.Session{ID: "a", Identity: "did:iota:a", Owner: "alice", Status: models.SessionStatusActive, StartedAt: time.Now().UTC()}))
	require.NoError(t, j.Write(&models.Session{ID: "b", Identity: "did:iota:b", Owner: "bob", Status: models.SessionStatusEnded, StartedAt: time.Now().UTC()}))

	// Files the scan must ignore: leftover temp, corrupt record, unrelated file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.123.tmp"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0o644))

	sessions, err := j.LoadAll()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
