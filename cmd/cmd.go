// Package cmd provides the quill CLI commands.
//
// Commands:
//   - ask: answer a single question against the indexed corpus
//   - chat: interactive question loop with conversation memory
//   - ingest: index markdown documents
//   - facts: manage the curated fact store
//   - sweep: purge expired cache entries and conversations
//   - stats: show corpus and store counts
//
// All commands run against the configured PostgreSQL instance and shut
// down gracefully on SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quill0/quill/internal/config"
	"github.com/quill0/quill/internal/log"
)

// Execute is the main entry point for the quill CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	}

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "ask":
		return runAsk(ctx, cfg, logger, args)
	case "chat":
		return runChat(ctx, cfg, logger)
	case "ingest":
		return runIngest(ctx, cfg, logger, args)
	case "facts":
		return runFacts(ctx, cfg, logger, args)
	case "sweep":
		return runSweep(ctx, cfg, logger)
	case "stats":
		return runStats(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Quill - RAG pipeline over your document corpus")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  quill ask <question>         Answer one question")
	fmt.Println("  quill chat                   Interactive question loop")
	fmt.Println("  quill ingest <file>...       Index markdown documents")
	fmt.Println("  quill facts set <q> <a>      Store a curated fact")
	fmt.Println("  quill facts get <q>          Look up a fact")
	fmt.Println("  quill facts del <q>          Delete a fact")
	fmt.Println("  quill facts list             List all facts")
	fmt.Println("  quill sweep                  Purge expired cache entries and conversations")
	fmt.Println("  quill stats                  Show corpus and store counts")
	fmt.Println("  quill --version              Show version information")
	fmt.Println("  quill --help                 Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.quill/config.yaml or ./config.yaml;")
	fmt.Println("QUILL_* environment variables override file values.")
}
