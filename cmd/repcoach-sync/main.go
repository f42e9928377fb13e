package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "repcoach server URL (e.g. https://repcoach.tail1234.ts.net)")
	dir := flag.String("path", "", "directory of workout definitions (.yaml, .yml, .json)")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "server API key (default $REPCOACH_AUTH_API_KEY)")
	stateDir := flag.String("state-dir", "", "sync state directory (default ~/.repcoach-sync)")
	dryRun := flag.Bool("dry-run", false, "validate definitions but don't send to server")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-sync", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-sync -server <URL> -path <definitions dir> [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		log.Error("definitions directory not found", "path", *dir)
		os.Exit(1)
	}

	// Open state database
	if *stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		*stateDir = filepath.Join(homeDir, ".repcoach-sync")
	}
	state, err := upload.OpenStateDB(*stateDir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	if last, err := state.GetSyncState(upload.LastSyncKey); err == nil && last != "" {
		log.Info("previous sync", "at", last)
	}
	if *dryRun {
		log.Info("DRY RUN mode, definitions will be validated but not sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	uploader := upload.New(upload.NewClient(*serverURL, *apiKey), state, *dir, models.DefaultSettings(), *dryRun, log)
	stats, err := uploader.Run(ctx)
	printStats(stats)
	if err != nil {
		log.Error("sync failed", "error", err)
		os.Exit(1)
	}
	log.Info("sync complete")
}

func printStats(stats *upload.Stats) {
	fmt.Println()
	fmt.Println("=== Sync Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:    %d (unchanged)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)

	if len(stats.Invalid) > 0 {
		fmt.Printf("\n  Invalid definitions:\n")
		for _, f := range stats.Invalid {
			fmt.Printf("    - %s\n", f)
		}
	}
	fmt.Println()
}
