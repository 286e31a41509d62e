package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
)

// runAsk answers a single question in a fresh conversation.
func runAsk(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("usage: quill ask <question>")
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Pipeline.HandleQuery(ctx, uuid.New(), question, "")
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range resp.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}
