package transcript

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anspn/iota-service/internal/models"
)

const (
	// HistoryFile is the per-session command history written by the
	// terminal process under <sessionsDir>/<id>/.
	HistoryFile = "history"

	defaultFirstDelay  = 300 * time.Millisecond
	defaultSecondDelay = 1200 * time.Millisecond
)

// Reader recovers a session's transcript from the shared directory tree the
// terminal process writes into. The terminal flushes its history
// asynchronously, so recovery retries with delays before giving up and
// consulting the "current session" pointer file.
type Reader struct {
	sessionsDir string
	pointerFile string
	firstDelay  time.Duration
	secondDelay time.Duration
}

// NewReader creates a transcript reader over the shared session tree.
func NewReader(sessionsDir, pointerFile string) *Reader {
	return &Reader{
		sessionsDir: sessionsDir,
		pointerFile: pointerFile,
		firstDelay:  defaultFirstDelay,
		secondDelay: defaultSecondDelay,
	}
}

// SetRetryDelays overrides the two retry delays (for config and tests).
func (r *Reader) SetRetryDelays(first, second time.Duration) {
	r.firstDelay = first
	r.secondDelay = second
}

// HistoryPath returns the transcript path for a session id.
func (r *Reader) HistoryPath(id string) string {
	return filepath.Join(r.sessionsDir, id, HistoryFile)
}

// Recover locates the transcript for a session and parses it into ordered
// commands. An empty result is valid — the terminal may have recorded
// nothing, or its ticket may never have been claimed. The only error
// condition is context cancellation during the retry window.
func (r *Reader) Recover(ctx context.Context, id string) ([]models.Command, error) {
	if cmds := r.readHistory(id); len(cmds) > 0 {
		return cmds, nil
	}

	// The terminal's exit and its history flush are not ordered with
	// respect to each other. Wait twice, briefly then longer.
	for _, delay := range []time.Duration{r.firstDelay, r.secondDelay} {
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		if cmds := r.readHistory(id); len(cmds) > 0 {
			return cmds, nil
		}
	}

	// Fallback: the pointer file names the session the terminal actually
	// ran under. If the ticket was never claimed in time the terminal
	// minted its own id, and the commands live under that id instead.
	if alt := r.currentSessionID(); alt != "" && alt != id {
		if cmds := r.readHistory(alt); len(cmds) > 0 {
			return cmds, nil
		}
	}

	return nil, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// currentSessionID reads the pointer file the terminal updates on every
// launch. Missing or empty is fine.
func (r *Reader) currentSessionID() string {
	if r.pointerFile == "" {
		return ""
	}
	data, err := os.ReadFile(r.pointerFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (r *Reader) readHistory(id string) []models.Command {
	f, err := os.Open(r.HistoryPath(id))
	if err != nil {
		return nil
	}
	defer f.Close()

	var cmds []models.Command
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmds = append(cmds, parseHistoryLine(line))
	}
	return cmds
}

// parseHistoryLine parses one history entry of the form
// "<index> <timestamp> <command>" or "<index> <command>". Lines that do not
// match are kept verbatim as commands — dropping them would silently lose
// transcript data.
func parseHistoryLine(line string) models.Command {
	index, rest := splitToken(line)
	if !isDigits(index) || rest == "" {
		return models.Command{Command: line}
	}

	tok, remainder := splitToken(rest)
	// History timestamps are epoch seconds; ten digits covers 2001-2286.
	if len(tok) == 10 && isDigits(tok) && remainder != "" {
		epoch, err := strconv.ParseInt(tok, 10, 64)
		if err == nil {
			ts := time.Unix(epoch, 0).UTC()
			return models.Command{Timestamp: &ts, Command: remainder}
		}
	}

	return models.Command{Command: rest}
}

// splitToken returns the first whitespace-delimited token and the trimmed
// remainder of the line.
func splitToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
