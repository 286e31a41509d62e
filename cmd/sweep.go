package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
)

// runSweep purges expired cache entries and conversations once.
func runSweep(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.SetupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Cache.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweeping cache: %w", err)
	}
	conversations, err := a.Convs.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("deleting expired conversations: %w", err)
	}

	fmt.Printf("removed %d expired cache entries, %d expired conversations\n",
		entries, conversations)
	return nil
}
