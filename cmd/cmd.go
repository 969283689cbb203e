// Package cmd provides the CLI commands for the Feelori assistant.
//
// Commands:
//   - chat: interactive terminal conversation with the engine
//   - index: add a knowledge document from a file
//   - migrate: apply database migrations
//   - version: show version information
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/log"
)

// Execute is the main entry point for the CLI.
func Execute() error {
	logger := log.New(log.Config{Level: logLevel()})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "chat":
		return runChat(logger)
	case "index":
		return runIndex(logger, os.Args[2:])
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func runHelp() {
	fmt.Println("Feelori - AI shopping assistant for WhatsApp")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  feelori chat                Start an interactive conversation")
	fmt.Println("  feelori index <file> [title] Add a knowledge document")
	fmt.Println("  feelori migrate             Apply database migrations")
	fmt.Println("  feelori --version           Show version information")
	fmt.Println("  feelori --help              Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GEMINI_API_KEY   Primary model provider key (required)")
	fmt.Println("  OPENAI_API_KEY   Secondary provider key (optional, enables failover)")
	fmt.Println("  DEBUG            Enable debug logging")
}
