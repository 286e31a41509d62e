package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
)

const factsUsage = `usage:
  quill facts set <question> <answer>
  quill facts get <question>
  quill facts del <question>
  quill facts list`

// runFacts manages the curated fact store.
func runFacts(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", factsUsage)
	}

	a, err := app.SetupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("%s", factsUsage)
		}
		if err := a.Facts.Set(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Println("fact stored")
		return nil

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("%s", factsUsage)
		}
		answer, ok := a.Facts.Lookup(ctx, args[1])
		if !ok {
			return fmt.Errorf("no fact stored for %q", args[1])
		}
		fmt.Println(answer)
		return nil

	case "del":
		if len(args) != 2 {
			return fmt.Errorf("%s", factsUsage)
		}
		if err := a.Facts.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println("fact deleted")
		return nil

	case "list":
		all, err := a.Facts.List(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("no facts stored")
			return nil
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, all[k])
		}
		return nil

	default:
		return fmt.Errorf("unknown facts subcommand %q\n%s", args[0], factsUsage)
	}
}
