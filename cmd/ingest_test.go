package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectMarkdownFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.md", "b.markdown", "ignore.txt", "nested/c.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# doc"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectMarkdownFiles([]string{dir})
	if err != nil {
		t.Fatalf("collectMarkdownFiles() error = %v", err)
	}
	if len(files) != 3 {
		t.Errorf("found %d files, want 3: %v", len(files), files)
	}

	// A single file argument works too.
	files, err = collectMarkdownFiles([]string{filepath.Join(dir, "a.md")})
	if err != nil {
		t.Fatalf("collectMarkdownFiles(file) error = %v", err)
	}
	if len(files) != 1 {
		t.Errorf("found %d files for a direct path, want 1", len(files))
	}

	if _, err := collectMarkdownFiles([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("collectMarkdownFiles() with a missing path did not error")
	}
}
