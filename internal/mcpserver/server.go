// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes chatsync operations for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/syncer"
)

// Service is the part of the sync orchestrator exposed as tools.
type Service interface {
	States() map[string]syncer.State
	RestoreFromCloud(ctx context.Context) (syncer.State, error)
	RestoreSettingsFromCloud(ctx context.Context) (syncer.State, error)
	RestoreAllFromCloud(ctx context.Context) (syncer.State, error)
	UploadSettingsToCloud(ctx context.Context) (syncer.State, error)
	CloudConversationCount(ctx context.Context) (int, error)
	ListBackups(ctx context.Context) ([]backup.Item, error)
	CreateBackup(ctx context.Context) (backup.Item, error)
	RestoreBackup(ctx context.Context, name string) (syncer.State, error)
	ImportChatbox(ctx context.Context, data []byte) (int, error)
}

var _ Service = (*syncer.Orchestrator)(nil)

const guideURI = "chatsync://sync-guide"

// Server wraps the MCP server with chatsync tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all chatsync tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"chatsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_states",
		mcp.WithDescription("Current status of auto-sync and of every on-demand sync operation."),
	), s.syncStates)

	s.mcp.AddTool(mcp.NewTool("restore_from_cloud",
		mcp.WithDescription("Insert cloud conversations that are missing locally. "+
			"Existing and deleted conversations are skipped; nothing local is overwritten."),
	), s.restoreFromCloud)

	s.mcp.AddTool(mcp.NewTool("restore_settings",
		mcp.WithDescription("Replace local providers, assistants and display settings with the cloud copy."),
	), s.restoreSettings)

	s.mcp.AddTool(mcp.NewTool("restore_all",
		mcp.WithDescription("Restore settings and conversations from the cloud in one call."),
	), s.restoreAll)

	s.mcp.AddTool(mcp.NewTool("upload_settings",
		mcp.WithDescription("Push providers, assistants and settings to the cloud now."),
	), s.uploadSettings)

	s.mcp.AddTool(mcp.NewTool("cloud_conversation_count",
		mcp.WithDescription("Number of non-deleted conversations stored in the cloud."),
	), s.cloudConversationCount)

	s.mcp.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List WebDAV backups, newest first."),
	), s.listBackups)

	s.mcp.AddTool(mcp.NewTool("create_backup",
		mcp.WithDescription("Upload a new backup of settings and conversations to WebDAV."),
	), s.createBackup)

	s.mcp.AddTool(mcp.NewTool("restore_backup",
		mcp.WithDescription("Replace ALL local settings and conversations with a WebDAV backup. "+
			"Use list_backups to find the name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Backup name as returned by list_backups")),
	), s.restoreBackup)

	s.mcp.AddTool(mcp.NewTool("import_chatbox",
		mcp.WithDescription("Prepend the AI providers found in a Chatbox settings export. "+
			"Existing providers are kept; duplicates are not removed."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Export JSON, or a base64 data URI of it")),
	), s.importChatbox)

	s.mcp.AddTool(mcp.NewTool("get_sync_guide",
		mcp.WithDescription("Returns how the sync operations behave and what their results mean. "+
			"Read it before restoring anything."),
	), s.getSyncGuide)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Sync Guide",
			mcp.WithResourceDescription("Semantics of chatsync operations and their states."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		return mcp.NewToolResultError("not logged in: sign in to the cloud account first")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) stateResult(st syncer.State, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(st), nil
}

func (s *Server) syncStates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.States()), nil
}

func (s *Server) restoreFromCloud(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(s.svc.RestoreFromCloud(ctx))
}

func (s *Server) restoreSettings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(s.svc.RestoreSettingsFromCloud(ctx))
}

func (s *Server) restoreAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(s.svc.RestoreAllFromCloud(ctx))
}

func (s *Server) uploadSettings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(s.svc.UploadSettingsToCloud(ctx))
}

func (s *Server) cloudConversationCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.CloudConversationCount(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d", n)), nil
}

func (s *Server) listBackups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListBackups(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no backups found"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) createBackup(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	item, err := s.svc.CreateBackup(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", item.Name)), nil
}

func (s *Server) restoreBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.stateResult(s.svc.RestoreBackup(ctx, name))
}

func (s *Server) getSyncGuide(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SyncGuide), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     SyncGuide,
		},
	}, nil
}
