package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHistory(t *testing.T, sessionsDir, id, content string) {
	t.Helper()
	dir := filepath.Join(sessionsDir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFile), []byte(content), 0o644))
}

func fastReader(sessionsDir, pointerFile string) *Reader {
	r := NewReader(sessionsDir, pointerFile)
	r.SetRetryDelays(time.Millisecond, 2*time.Millisecond)
	return r
}

func TestRecoverParsesHistory(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "sess-1", `# started
    1  1741236000  ls -la
    2  1741236030  git status
    3  echo "no timestamp"
`)

	r := fastReader(dir, "")
	cmds, err := r.Recover(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	assert.Equal(t, "ls -la", cmds[0].Command)
	require.NotNil(t, cmds[0].Timestamp)
	assert.Equal(t, time.Unix(1741236000, 0).UTC(), *cmds[0].Timestamp)

	assert.Equal(t, "git status", cmds[1].Command)

	assert.Equal(t, `echo "no timestamp"`, cmds[2].Command)
	assert.Nil(t, cmds[2].Timestamp)
}

func TestRecoverKeepsMalformedLinesVerbatim(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, "sess-2", "not a history line at all\n42\n")

	r := fastReader(dir, "")
	cmds, err := r.Recover(context.Background(), "sess-2")
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "not a history line at all", cmds[0].Command)
	assert.Equal(t, "42", cmds[1].Command)
}

func TestRecoverEmptyIsNotAnError(t *testing.T) {
	r := fastReader(t.TempDir(), "")
	cmds, err := r.Recover(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestRecoverRetriesUntilFlushed(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(dir, "")
	r.SetRetryDelays(50*time.Millisecond, 200*time.Millisecond)

	// Simulate the terminal flushing its history after disconnect.
	go func() {
		time.Sleep(20 * time.Millisecond)
		sessDir := filepath.Join(dir, "sess-3")
		_ = os.MkdirAll(sessDir, 0o755)
		_ = os.WriteFile(filepath.Join(sessDir, HistoryFile), []byte("    1  whoami\n"), 0o644)
	}()

	cmds, err := r.Recover(context.Background(), "sess-3")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "whoami", cmds[0].Command)
}

func TestRecoverFallsBackToPointerFile(t *testing.T) {
	dir := t.TempDir()
	pointer := filepath.Join(t.TempDir(), "current_session")

	// The ticket was never claimed: the terminal minted its own id and the
	// commands live under that id instead.
	writeHistory(t, dir, "self-minted", "    1  make test\n")
	require.NoError(t, os.WriteFile(pointer, []byte("self-minted\n"), 0o644))

	r := fastReader(dir, pointer)
	cmds, err := r.Recover(context.Background(), "sess-4")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "make test", cmds[0].Command)
}

func TestRecoverIgnoresPointerToSameSession(t *testing.T) {
	dir := t.TempDir()
	pointer := filepath.Join(t.TempDir(), "current_session")
	require.NoError(t, os.WriteFile(pointer, []byte("sess-5"), 0o644))

	r := fastReader(dir, pointer)
	cmds, err := r.Recover(context.Background(), "sess-5")
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestRecoverHonorsContextCancellation(t *testing.T) {
	r := NewReader(t.TempDir(), "")
	r.SetRetryDelays(10*time.Second, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Recover(ctx, "sess-6")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
