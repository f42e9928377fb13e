package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	baseURL := flag.String("url", "", "repcoach server URL; tools read through the REST API")
	configPath := flag.String("config", "", "config file; tools read the database directly")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-mcp", Version)
		return
	}

	// stdout carries the protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		ds       mcp.DataSource
		defaults = models.DefaultSettings()
	)
	switch {
	case *baseURL != "":
		ds = mcp.NewHTTPClient(*baseURL)
		log.Info("mcp using REST API", "url", *baseURL)
	case *configPath != "":
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		db, err := storage.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = db
		defaults = cfg.Session.Defaults
		log.Info("mcp using database", "host", cfg.Database.Host, "name", cfg.Database.Name)
	default:
		fmt.Fprintf(os.Stderr, "Usage: repcoach-mcp -url <server URL> | -config config.yaml\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	s := mcp.New(ds, defaults, Version, log)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
