package notary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is the default Client implementation. Hashing is local;
// publication POSTs the digest to an IOTA-style node's anchor endpoint.
// An empty node URL means publication is not configured.
type HTTPClient struct {
	nodeURL   string
	authToken string
	httpc     *http.Client
}

// NewHTTPClient creates a notarization client. nodeURL may be empty, in
// which case Publish returns ErrNotConfigured.
func NewHTTPClient(nodeURL, authToken string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		nodeURL:   strings.TrimRight(nodeURL, "/"),
		authToken: authToken,
		httpc:     &http.Client{Timeout: timeout},
	}
}

// Hash returns the sha256 hex digest of the JCS-canonicalized payload.
func (c *HTTPClient) Hash(payload []byte) (string, error) {
	return DigestJCS(payload)
}

// anchorRequest is the node's anchor submission body.
type anchorRequest struct {
	Digest   string   `json:"digest"`
	Metadata Metadata `json:"metadata"`
}

type anchorResponse struct {
	LedgerID string `json:"ledger_id"`
	Error    string `json:"error"`
}

// Publish anchors a digest on the ledger and returns the node's ledger id.
func (c *HTTPClient) Publish(ctx context.Context, digest string, meta Metadata) (string, error) {
	if c.nodeURL == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(anchorRequest{Digest: digest, Metadata: meta})
	if err != nil {
		return "", fmt.Errorf("marshal anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+"/api/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read anchor response: %w", err)
	}

	var parsed anchorResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("node returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != "" {
			return "", fmt.Errorf("node rejected anchor: %s", parsed.Error)
		}
		return "", fmt.Errorf("node returned status %d", resp.StatusCode)
	}
	if parsed.LedgerID == "" {
		return "", fmt.Errorf("node response missing ledger_id")
	}
	return parsed.LedgerID, nil
}
