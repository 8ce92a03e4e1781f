package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/viper"

	"github.com/cexll/session-notes/internal/app"
	"github.com/cexll/session-notes/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = ""

func main() {
	// MCP speaks over stdout; keep logs on stderr.
	log.SetOutput(os.Stderr)

	// 1. Load configuration
	_ = godotenv.Load()
	v := viper.New()
	if err := config.Init(v, os.Getenv("SESSION_NOTES_CONFIG")); err != nil {
		log.Fatalf("[MCP Notes Server] %v", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		log.Fatalf("[MCP Notes Server] Failed to load configuration: %v", err)
	}
	a := app.New(cfg, version)

	log.Printf("[MCP Notes Server] Starting session-notes MCP server %s", a.GeneratorVersion())

	// 2. Create MCP server and register tools
	server := newServer(a)

	// 3. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[MCP Notes Server] Received shutdown signal")
		cancel()
	}()

	// 4. Start server with stdio transport
	log.Println("[MCP Notes Server] Starting on stdio transport...")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Notes Server] Server error: %v", err)
	}
	log.Println("[MCP Notes Server] Server stopped gracefully")
}

func newServer(a *app.App) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "session-notes",
		Version: a.GeneratorVersion(),
	}, nil)

	tools := newNotesTools(a)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "upsert_session_notes",
		Description: "Merge this session's summary into the pull request's single SESSION NOTES comment, creating it when absent",
	}, tools.HandleUpsertNotes)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List recent Codex and Claude Code sessions for a project, newest first",
	}, tools.HandleListSessions)
	log.Println("[MCP Notes Server] Registered tools: upsert_session_notes, list_sessions")
	return server
}
