package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anspn/iota-service/internal/manager"
	"github.com/anspn/iota-service/internal/models"
	"github.com/anspn/iota-service/internal/notary"
	"github.com/anspn/iota-service/internal/receipts"
)

// scriptedNotary hashes for real and returns a fixed publish outcome.
type scriptedNotary struct {
	mu           sync.Mutex
	publishCalls int
	ledgerID     string
	publishErr   error
}

func (n *scriptedNotary) Hash(payload []byte) (string, error) {
	return notary.DigestJCS(payload)
}

func (n *scriptedNotary) Publish(_ context.Context, _ string, _ notary.Metadata) (string, error) {
	n.mu.Lock()
	n.publishCalls++
	n.mu.Unlock()
	if n.publishErr != nil {
		return "", n.publishErr
	}
	if n.ledgerID == "" {
		return "", notary.ErrNotConfigured
	}
	return n.ledgerID, nil
}

func newTestServer(t *testing.T, n manager.Notary) (*httptest.Server, receipts.Store) {
	t.Helper()
	base := t.TempDir()

	store, err := receipts.NewSQLiteStore(filepath.Join(base, "receipts.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	cfg := manager.Config{
		JournalDir:       filepath.Join(base, "journal"),
		SessionsDir:      filepath.Join(base, "sessions"),
		TicketsDir:       filepath.Join(base, "tickets"),
		PointerFile:      filepath.Join(base, "current_session"),
		FirstRetryDelay:  time.Millisecond,
		SecondRetryDelay: 2 * time.Millisecond,
	}
	mgr, err := manager.New(cfg, n, manager.WithReceipts(store))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(mgr, store).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) *models.Session {
	t.Helper()
	defer resp.Body.Close()
	var s models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return &s
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	n := &scriptedNotary{ledgerID: "block-1"}
	srv, _ := newTestServer(t, n)

	// Start
	resp := postJSON(t, srv.URL+"/api/v1/sessions", StartSessionRequest{Identity: "did:iota:abc", Owner: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decodeSession(t, resp)
	assert.Equal(t, models.SessionStatusActive, sess.Status)

	// Lookup
	resp2, err := http.Get(srv.URL + "/api/v1/sessions/" + sess.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, sess.ID, decodeSession(t, resp2).ID)

	// End (no transcript written — still finalizes with a digest)
	resp3 := postJSON(t, srv.URL+"/api/v1/sessions/"+sess.ID+"/end", nil)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	ended := decodeSession(t, resp3)
	assert.Equal(t, models.SessionStatusNotarized, ended.Status)
	assert.Equal(t, "block-1", ended.LedgerID)
	assert.NotEmpty(t, ended.Digest)
	assert.Zero(t, ended.CommandCount)

	// Receipt recorded for the publication
	resp4, err := http.Get(srv.URL + "/api/v1/sessions/" + sess.ID + "/receipt")
	require.NoError(t, err)
	defer resp4.Body.Close()
	require.Equal(t, http.StatusOK, resp4.StatusCode)
	var rec receiptResponse
	require.NoError(t, json.NewDecoder(resp4.Body).Decode(&rec))
	assert.Equal(t, ended.Digest, rec.Digest)
	assert.Equal(t, "block-1", rec.LedgerID)

	// Repeated end is idempotent and does not publish again
	resp5 := postJSON(t, srv.URL+"/api/v1/sessions/"+sess.ID+"/end", nil)
	require.Equal(t, http.StatusOK, resp5.StatusCode)
	again := decodeSession(t, resp5)
	assert.Equal(t, ended, again)
	assert.Equal(t, 1, n.publishCalls)
}

func TestStartValidation(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedNotary{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"owner": "alice"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"identity": "did:iota:abc"})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestEndUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedNotary{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/nope/end", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessionsFilters(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedNotary{})

	for i, owner := range []string{"alice", "alice", "bob"} {
		resp := postJSON(t, srv.URL+"/api/v1/sessions", StartSessionRequest{
			Identity: fmt.Sprintf("did:iota:%d", i),
			Owner:    owner,
		})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/sessions?owner=alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sessions []*models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	assert.Len(t, sessions, 2)

	// Unknown status is rejected
	resp2, err := http.Get(srv.URL + "/api/v1/sessions?status=bogus")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedNotary{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions", StartSessionRequest{Identity: "did:iota:x", Owner: "alice"})
	resp.Body.Close()

	resp2, err := http.Get(srv.URL + "/api/v1/stats")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var stats manager.Stats
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, int64(1), stats.Started)
}

func TestReceiptNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedNotary{})

	resp, err := http.Get(srv.URL + "/api/v1/sessions/unknown/receipt")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
