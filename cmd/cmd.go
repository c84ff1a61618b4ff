// Package cmd provides CLI commands for Sprout.
//
// Commands:
//   - serve: HTTP API server for the greenhouse assistant
//   - seed: ingest crop seed documents into the vector store
//
// Signal handling and graceful shutdown are implemented for all commands via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tinygreenhouse/sprout/internal/log"
)

// Execute is the main entry point for the Sprout CLI application.
func Execute() error {
	logger := log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("LOG_JSON") != "",
	})

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger, os.Args[2:])
	case "seed":
		return runSeed(logger, os.Args[2:])
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

// firstArg returns the first positional argument, or fallback when none was
// given.
func firstArg(args []string, fallback string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return fallback
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Sprout - Tiny Greenhouse assistant service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sprout serve [addr]  Start the HTTP API server (addr overrides listen_addr)")
	fmt.Println("  sprout seed [root]   Ingest seed documents (root overrides seed_root)")
	fmt.Println("  sprout --version     Show version information")
	fmt.Println("  sprout --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY     Required: OpenAI API key")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* config")
	fmt.Println("  SPROUT_SEED_ROOT   Optional: seed document root (default: data/rag)")
	fmt.Println("  RAG_DEBUG          Optional: expose POST /api/rag/search")
	fmt.Println("  DEBUG              Optional: enable debug logging")
}
