package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/knowledge"
)

func runIndex(logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: feelori index <file> [title]")
	}
	path := args[0]

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("%s is empty", path)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(args) > 1 {
		title = args[1]
	}

	ctx := context.Background()
	a, cleanup, err := buildApp(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := a.Indexer.Index(ctx, knowledge.Document{
		Title:   title,
		Content: string(content),
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}

	fmt.Printf("Indexed %q as document %s\n", title, doc.ID)
	return nil
}
