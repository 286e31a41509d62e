package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
)

// runStats shows the persisted corpus and store counts.
func runStats(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.SetupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Chunks.ListDocuments(ctx)
	if err != nil {
		return err
	}
	chunks, err := a.Chunks.CountChunks(ctx)
	if err != nil {
		return err
	}
	facts, err := a.Facts.List(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("documents: %d  chunks: %d  facts: %d\n", len(docs), chunks, len(facts))
	if len(docs) > 0 {
		fmt.Println()
		for _, d := range docs {
			fmt.Printf("  %-40s %4d chunks  ingested %s\n",
				d.Source, d.Chunks, d.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
