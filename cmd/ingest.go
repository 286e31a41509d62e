package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/quill0/quill/internal/app"
	"github.com/quill0/quill/internal/config"
)

// runIngest indexes the given markdown files or directories.
func runIngest(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: quill ingest <file-or-directory>...")
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	files, err := collectMarkdownFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no markdown files found in %s", strings.Join(args, ", "))
	}

	total := 0
	for _, path := range files {
		n, err := a.Ingester.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks\n", path, n)
		total += n
	}
	fmt.Printf("ingested %d chunks from %d files, index now holds %d chunks\n",
		total, len(files), a.Index.Len())
	return nil
}

// collectMarkdownFiles expands the arguments into a flat list of
// markdown file paths, walking directories recursively.
func collectMarkdownFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".md", ".markdown":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return files, nil
}
