package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anspn/iota-service/internal/models"
)

// Journal is the durable per-session record store. Every state transition
// writes a full JSON snapshot of the session to <dir>/<id>.json; on startup
// the directory is scanned to rebuild the in-memory index.
type Journal struct {
	dir string
}

// New creates a journal rooted at dir, creating the directory if needed.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

// Write persists a full snapshot of the session. The snapshot is written to
// a temp file and renamed into place so a crash mid-write never leaves a
// truncated record behind.
func (j *Journal) Write(s *models.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	tmp, err := os.CreateTemp(j.dir, s.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create journal temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write journal record %s: %w", s.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close journal temp file: %w", err)
	}

	if err := os.Rename(tmpName, j.path(s.ID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit journal record %s: %w", s.ID, err)
	}
	return nil
}

// Read loads a single session record by id.
func (j *Journal) Read(id string) (*models.Session, error) {
	data, err := os.ReadFile(j.path(id))
	if err != nil {
		return nil, fmt.Errorf("read journal record %s: %w", id, err)
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse journal record %s: %w", id, err)
	}
	return &s, nil
}

// LoadAll scans the journal directory and returns every session record.
// Leftover temp files and foreign files are skipped; a corrupt record is
// skipped rather than failing the whole reload.
func (j *Journal) LoadAll() ([]*models.Session, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("scan journal directory: %w", err)
	}

	var sessions []*models.Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		s, err := j.Read(id)
		if err != nil {
			continue
		}
		if s.ID == "" {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
