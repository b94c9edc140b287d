package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/anspn/iota-service/internal/manager"
	"github.com/anspn/iota-service/internal/models"
)

// Server wraps the session manager and exposes it as MCP tools.
type Server struct {
	mgr *manager.Manager
}

// NewServer creates the MCP server wrapper around a session manager.
func NewServer(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("iotas", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.startSessionTool())
	srv.AddTool(s.endSessionTool())
	srv.AddTool(s.getSessionTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// iotas_start_session
func (s *Server) startSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("iotas_start_session",
		mcp.WithDescription("Start a new recorded session bound to a decentralized identity. Returns the session as JSON, including its generated id."),
		mcp.WithString("identity", mcp.Required(), mcp.Description("DID the session is bound to")),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Human-readable owner of the session")),
	)
	return tool, s.handleStartSession
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := request.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, err := request.RequireString("owner")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.mgr.Start(ctx, identity, owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start session: %v", err)), nil
	}
	return sessionResult(sess)
}

// iotas_end_session
func (s *Server) endSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("iotas_end_session",
		mcp.WithDescription("End a session: recover its transcript, compute the canonical digest, and publish it to the configured ledger. Idempotent; ending a finalized session returns the existing record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleEndSession
}

func (s *Server) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.mgr.End(ctx, id)
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
	}
	return sessionResult(sess)
}

// iotas_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("iotas_get_session",
		mcp.WithDescription("Fetch a session by id. Returns the full session record including commands, digest, and ledger id when present."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.mgr.Lookup(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	}
	return sessionResult(sess)
}

// iotas_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("iotas_list_sessions",
		mcp.WithDescription("List sessions, newest first. Returns a JSON array of session records without their command lists."),
		mcp.WithString("owner", mcp.Description("Filter by owner")),
		mcp.WithString("identity", mcp.Description("Filter by DID")),
		mcp.WithString("status", mcp.Description("Filter by status: active, ended, notarized, or failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 100)")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := manager.Filter{
		Owner:    request.GetString("owner", ""),
		Identity: request.GetString("identity", ""),
		Limit:    request.GetInt("limit", 0),
	}
	if status := request.GetString("status", ""); status != "" {
		st := models.SessionStatus(status)
		if !st.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", status)), nil
		}
		f.Status = st
	}

	sessions := s.mgr.List(f)

	type sessionOut struct {
		ID           string `json:"id"`
		Identity     string `json:"identity"`
		Owner        string `json:"owner"`
		Status       string `json:"status"`
		StartedAt    string `json:"started_at"`
		EndedAt      string `json:"ended_at,omitempty"`
		CommandCount int    `json:"command_count"`
		Digest       string `json:"digest,omitempty"`
		LedgerID     string `json:"ledger_id,omitempty"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:           sess.ID,
			Identity:     sess.Identity,
			Owner:        sess.Owner,
			Status:       string(sess.Status),
			StartedAt:    sess.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			CommandCount: sess.CommandCount,
			Digest:       sess.Digest,
			LedgerID:     sess.LedgerID,
		}
		if sess.EndedAt != nil {
			out[i].EndedAt = sess.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// iotas_session_stats
func (s *Server) sessionStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("iotas_session_stats",
		mcp.WithDescription("Aggregate session counts by status plus cumulative started/finalized totals."),
	)
	return tool, s.handleSessionStats
}

func (s *Server) handleSessionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.mgr.Stats()
	data, err := json.Marshal(stats)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func sessionResult(sess *models.Session) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
