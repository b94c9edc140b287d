package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/anspn/iota-service/internal/handoff"
	"github.com/anspn/iota-service/internal/journal"
	"github.com/anspn/iota-service/internal/models"
	"github.com/anspn/iota-service/internal/notary"
	"github.com/anspn/iota-service/internal/transcript"
)

// ErrNotFound is returned when a session id is unknown to the index.
var ErrNotFound = errors.New("session not found")

// Notary is the subset of notary.Client the manager needs.
type Notary interface {
	Hash(payload []byte) (string, error)
	Publish(ctx context.Context, digest string, meta notary.Metadata) (string, error)
}

// ReceiptRecorder records successful ledger publications. Optional; the
// manager tolerates a nil recorder and recording failures.
type ReceiptRecorder interface {
	Record(ctx context.Context, r *models.Receipt) error
}

// Config holds the manager's filesystem layout and timing knobs.
type Config struct {
	JournalDir  string
	SessionsDir string
	TicketsDir  string
	PointerFile string

	// Transcript retry delays; zero values use the reader defaults.
	FirstRetryDelay  time.Duration
	SecondRetryDelay time.Duration

	// EndTimeout bounds the whole finalization, including the ledger
	// round trip. A session must never stay active after End was accepted.
	EndTimeout time.Duration
}

const defaultEndTimeout = 45 * time.Second

// Stats aggregates index counts with the manager's cumulative counters.
type Stats struct {
	Total     int   `json:"total"`
	Active    int   `json:"active"`
	Ended     int   `json:"ended"`
	Notarized int   `json:"notarized"`
	Failed    int   `json:"failed"`
	Started   int64 `json:"started_total"`
	Finalized int64 `json:"finalized_total"`
}

// Manager owns the session lifecycle: it hands fresh session ids off to the
// terminal process, recovers transcripts at end-of-life, runs the
// finalization state machine, and keeps the in-memory index consistent with
// the on-disk journal. Mutations (Start, End) are serialized through one
// mutex — the manager behaves as a single-threaded actor — while Lookup,
// List, and Stats read the index concurrently without waiting.
type Manager struct {
	cfg      Config
	journal  *journal.Journal
	tickets  *handoff.Channel
	reader   *transcript.Reader
	notary   Notary
	receipts ReceiptRecorder

	idx *Index

	mu        sync.Mutex   // the mutation queue
	started   atomic.Int64 // cumulative Start count
	finalized atomic.Int64 // cumulative finalizations

	entropy *rand.Rand // ULID entropy, guarded by mu
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithReceipts attaches a receipt recorder for successful publications.
func WithReceipts(r ReceiptRecorder) Option {
	return func(m *Manager) { m.receipts = r }
}

// New creates a manager, prepares its directories, and rebuilds the index
// from the journal. Sessions that were active at the last shutdown stay
// active — reload never transitions state.
func New(cfg Config, n Notary, opts ...Option) (*Manager, error) {
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = defaultEndTimeout
	}

	j, err := journal.New(cfg.JournalDir)
	if err != nil {
		return nil, err
	}
	tickets, err := handoff.New(cfg.TicketsDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.SessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	reader := transcript.NewReader(cfg.SessionsDir, cfg.PointerFile)
	if cfg.FirstRetryDelay > 0 && cfg.SecondRetryDelay > 0 {
		reader.SetRetryDelays(cfg.FirstRetryDelay, cfg.SecondRetryDelay)
	}

	m := &Manager{
		cfg:     cfg,
		journal: j,
		tickets: tickets,
		reader:  reader,
		notary:  n,
		idx:     NewIndex(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}

	sessions, err := j.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		m.idx.Put(s)
	}

	return m, nil
}

func (m *Manager) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(m.entropy, 0)).String()
}

// Start creates a new active session bound to an identity, writes the
// handoff ticket for the terminal process, persists the journal entry, and
// inserts the record into the index — in that order. A storage failure is
// surfaced to the caller with no session registered; a ticket already
// written is removed best-effort.
func (m *Manager) Start(_ context.Context, identity, owner string) (*models.Session, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := &models.Session{
		ID:        m.newID(),
		Identity:  identity,
		Owner:     owner,
		Status:    models.SessionStatusActive,
		StartedAt: time.Now().UTC(),
	}

	if _, err := m.tickets.WriteTicket(sess.ID, identity); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := m.journal.Write(sess); err != nil {
		if rerr := m.tickets.Remove(sess.ID); rerr != nil {
			slog.Warn("failed to roll back handoff ticket", "session", sess.ID, "error", rerr)
		}
		return nil, fmt.Errorf("start session: %w", err)
	}
	m.idx.Put(sess)
	m.started.Add(1)

	return sess.Clone(), nil
}

// End finalizes a session. The first call for an active session performs
// finalization exactly once; any later call — concurrent or not — returns
// the existing terminal record unchanged, because callers retry after
// network timeouts and duplicate UI triggers. Unknown ids return
// ErrNotFound with no side effects.
func (m *Manager) End(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.idx.Get(id)
	if sess == nil {
		return nil, ErrNotFound
	}
	if sess.Status.Terminal() {
		return sess, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.EndTimeout)
	defer cancel()

	m.finalize(ctx, sess)
	m.finalized.Add(1)

	// Journal before reply: a crash after this write still leaves durable,
	// recoverable state for the caller to re-discover via Lookup.
	if err := m.journal.Write(sess); err != nil {
		slog.Error("failed to journal finalized session", "session", sess.ID, "error", err)
	}
	m.idx.Put(sess)

	return sess.Clone(), nil
}

// finalize runs the terminal-state machine on an active session: recover
// the transcript, build and hash the session document, attempt ledger
// publication, and pick the terminal status. It always leaves the session
// terminal with a digest; the only caller-visible failure shape is a failed
// session with a reason string.
func (m *Manager) finalize(ctx context.Context, sess *models.Session) {
	cmds, err := m.reader.Recover(ctx, sess.ID)
	if err != nil {
		// Retry window cut short by the deadline; an empty transcript is
		// valid, so finalization continues with what we have.
		slog.Warn("transcript recovery interrupted", "session", sess.ID, "error", err)
	}

	now := time.Now().UTC()
	sess.EndedAt = &now
	sess.Commands = cmds
	sess.CommandCount = len(cmds)

	doc, err := notary.BuildDocument(sess)
	if err != nil {
		sess.Status = models.SessionStatusFailed
		sess.Error = fmt.Sprintf("build session document: %v", err)
		return
	}
	digest, err := m.notary.Hash(doc)
	if err != nil {
		sess.Status = models.SessionStatusFailed
		sess.Error = fmt.Sprintf("hash session document: %v", err)
		return
	}
	// The digest is the cheapest-to-recompute but most valuable artifact
	// of the session; once computed it is never discarded.
	sess.Digest = digest

	meta := notary.Metadata{
		SessionID: sess.ID,
		Identity:  sess.Identity,
		Owner:     sess.Owner,
		EndedAt:   now,
	}
	ledgerID, err := m.notary.Publish(ctx, digest, meta)
	switch {
	case err == nil:
		sess.Status = models.SessionStatusNotarized
		sess.LedgerID = ledgerID
		m.recordReceipt(sess)
	case errors.Is(err, notary.ErrNotConfigured):
		sess.Status = models.SessionStatusEnded
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		sess.Status = models.SessionStatusFailed
		sess.Error = fmt.Sprintf("ledger publication timed out: %v", err)
	default:
		sess.Status = models.SessionStatusFailed
		sess.Error = err.Error()
	}
}

// recordReceipt stores a publication receipt, best effort. Receipt storage
// is audit support, not part of the finalization contract.
func (m *Manager) recordReceipt(sess *models.Session) {
	if m.receipts == nil {
		return
	}
	rec := &models.Receipt{
		SessionID:   sess.ID,
		Digest:      sess.Digest,
		LedgerID:    sess.LedgerID,
		PublishedAt: *sess.EndedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.receipts.Record(ctx, rec); err != nil {
		slog.Warn("failed to record publication receipt", "session", sess.ID, "error", err)
	}
}

// Lookup returns a copy of the session record. It reads only the index and
// never waits on finalization work.
func (m *Manager) Lookup(id string) (*models.Session, error) {
	sess := m.idx.Get(id)
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns sessions matching the filter, newest first.
func (m *Manager) List(f Filter) []*models.Session {
	return m.idx.List(f)
}

// Stats returns aggregate counts per status plus cumulative counters for
// the life of the process.
func (m *Manager) Stats() Stats {
	total, active, ended, notarized, failed := m.idx.Counts()
	return Stats{
		Total:     total,
		Active:    active,
		Ended:     ended,
		Notarized: notarized,
		Failed:    failed,
		Started:   m.started.Load(),
		Finalized: m.finalized.Load(),
	}
}

// TranscriptPath returns where the terminal process is expected to write
// the transcript for a session id.
func (m *Manager) TranscriptPath(id string) string {
	return m.reader.HistoryPath(id)
}
