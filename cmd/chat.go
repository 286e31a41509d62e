package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
	"github.com/quill0/quill/internal/pipeline"
)

// extractEvery is how many exchanges pass between memory extractions.
const extractEvery = 5

// runChat runs the interactive loop. One conversation spans the whole
// session; durable memories are mined from it periodically.
func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Expired cache entries accumulate while the session runs.
	go a.Sweeper.Run(ctx)

	conversationID := uuid.New()
	fmt.Println("Quill interactive mode. /help for commands, Ctrl+D to exit.")

	reader := bufio.NewReader(os.Stdin)
	turns := 0
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := handleSlashCommand(a, line); quit {
				return nil
			}
			continue
		}

		resp, err := a.Pipeline.HandleQuery(ctx, conversationID, line, "")
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResponse(resp)

		turns++
		if turns%extractEvery == 0 {
			if n, err := a.Pipeline.ExtractMemories(ctx, conversationID); err != nil {
				logger.Warn("memory extraction failed", "error", err)
			} else if n > 0 {
				logger.Debug("extracted memories", "count", n)
			}
		}
	}
}

func printResponse(resp pipeline.Response) {
	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Printf("(sources: %s)\n", strings.Join(resp.Sources, ", "))
	}
	fmt.Println()
}

// handleSlashCommand executes an interactive command. Returns true when
// the session should end.
func handleSlashCommand(a *app.App, line string) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/stats":
		snap := a.Pipeline.Stats().Snapshot()
		fmt.Printf("queries: %d  cache hits: %d  fact hits: %d  fallbacks: %d  exhausted: %d\n",
			snap.Queries, snap.ResponseHits, snap.FactHits, snap.Fallbacks, snap.Exhausted)
		fmt.Printf("indexed chunks: %d\n", a.Index.Len())
	case "/help":
		fmt.Println("  /stats           Show session statistics")
		fmt.Println("  /help            Show this help")
		fmt.Println("  /exit, /quit     Exit")
	default:
		fmt.Printf("unknown command %s (try /help)\n", line)
	}
	return false
}
