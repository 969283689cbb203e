package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/config"
	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/database"
)

func runMigrate(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := database.Migrate(cfg.ConnString()); err != nil {
		return err
	}

	logger.Info("migrations applied",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	fmt.Println("Database is up to date.")
	return nil
}
