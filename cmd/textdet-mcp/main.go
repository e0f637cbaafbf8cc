package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ironsheep/textdet/internal/config"
	"github.com/ironsheep/textdet/internal/ocr"
	"github.com/ironsheep/textdet/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("textdet-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("textdet-mcp - MCP server for text detection in images, PDFs and web pages")
			fmt.Println()
			fmt.Println("Usage: textdet-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  TEXTDET_LOG_LEVEL=debug       Log level: debug, info, warn, error")
			fmt.Println("  TEXTDET_CONFIG=path.yaml      YAML configuration file")
			fmt.Println("  TEXTDET_ENV_FILE=path         Env file to load instead of ./.env")
			fmt.Println("  TEXTDET_MODEL=contrast        Detection model: contrast or tesseract")
			fmt.Println("  TEXTDET_GEOMETRY=straight     Box shape: straight, rotated or polygon")
			fmt.Println("  TEXTDET_LANGUAGE=eng          Tesseract language")
			fmt.Println("  TEXTDET_DPI=144               PDF rendering resolution")
			fmt.Println("  TESSDATA_PREFIX=dir           Tesseract language data directory")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			return
		}
	}

	// Log to stderr; stdout is for MCP protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("TEXTDET_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Debug("starting textdet MCP server",
		"version", Version, "built", BuildTime, "commit", GitCommit,
		"model", cfg.Model.Name, "geometry", cfg.Postprocess.Geometry,
		"input_size", cfg.Preprocess.OutputSize)

	info := ocr.Probe(cfg.Model.Tesseract.Engine)
	if !info.Available {
		if cfg.Model.Name == config.ModelTesseract {
			return fmt.Errorf("tesseract model selected but Tesseract is unavailable: %s", info.Error)
		}
		logger.Warn("Tesseract unavailable, text_recognize will fail", "language", info.Language, "error", info.Error)
	} else {
		logger.Debug("Tesseract ready", "version", info.Version, "language", info.Language)
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

// parseLevel maps a level name to a slog level, defaulting to info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
