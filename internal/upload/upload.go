// Package upload syncs a directory of workout definition files to a
// repcoach server. Files are validated locally first and a SQLite ledger
// keeps unchanged files from being re-sent.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/timeline"
)

// LastSyncKey is the sync_state key holding the time of the last completed run.
const LastSyncKey = "last_sync"

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	// Invalid lists files that failed local validation or were rejected by
	// the server, relative to the sync root.
	Invalid []string
}

// Sender is the server side of a sync.
type Sender interface {
	SendDefinition(ctx context.Context, name, format string, data []byte) (models.WorkoutRow, error)
}

// Uploader walks a directory of .yaml, .yml and .json definitions and sends
// new or changed ones to the server.
type Uploader struct {
	sender   Sender
	state    *StateDB
	root     string
	settings models.Settings
	dryRun   bool
	log      *slog.Logger
	stats    Stats
}

// New creates a new Uploader. settings are used for local validation only.
func New(sender Sender, state *StateDB, root string, settings models.Settings, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		sender:   sender,
		state:    state,
		root:     root,
		settings: settings.WithDefaults(),
		dryRun:   dryRun,
		log:      log,
	}
}

// Run executes the sync. A transport failure aborts the run; bad files are
// counted and skipped.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	err := filepath.WalkDir(u.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != u.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isDefinitionFile(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return u.processFile(ctx, path)
	})
	if err != nil {
		return &u.stats, fmt.Errorf("walking %s: %w", u.root, err)
	}

	if !u.dryRun {
		if err := u.state.SetSyncState(LastSyncKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			u.log.Warn("failed to save sync state", "error", err)
		}
	}
	return &u.stats, nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func (u *Uploader) processFile(ctx context.Context, path string) error {
	u.stats.FilesTotal++

	relPath, _ := filepath.Rel(u.root, path)
	data, err := os.ReadFile(path)
	if err != nil {
		u.log.Warn("read failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	hash, err := HashFile(path)
	if err != nil {
		u.log.Warn("hash failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	size := int64(len(data))

	uploaded, err := u.state.IsUploaded(relPath, size, hash)
	if err != nil {
		u.log.Warn("state check failed", "file", relPath, "error", err)
		u.stats.FilesErrored++
		return nil
	}
	if uploaded {
		u.stats.FilesSkipped++
		return nil
	}

	format := timeline.FormatForPath(path)
	def, err := timeline.LoadDefinition(bytes.NewReader(data), format)
	if err == nil {
		_, err = timeline.Build(def, u.settings)
	}
	if err != nil {
		u.log.Warn("invalid definition", "file", relPath, "error", err)
		u.stats.FilesErrored++
		u.stats.Invalid = append(u.stats.Invalid, relPath)
		return nil
	}

	name := def.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if u.dryRun {
		u.log.Info("dry-run: would send", "file", relPath, "workout", name)
		u.stats.FilesUploaded++
		return nil
	}

	row, err := u.sender.SendDefinition(ctx, name, format, data)
	if errors.Is(err, ErrRejected) {
		u.log.Warn("server rejected definition", "file", relPath, "error", err)
		u.stats.FilesErrored++
		u.stats.Invalid = append(u.stats.Invalid, relPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sending %s: %w", relPath, err)
	}

	if err := u.state.MarkUploaded(relPath, size, hash, row.ID.String()); err != nil {
		u.log.Warn("failed to mark uploaded", "file", relPath, "error", err)
	}
	u.stats.FilesUploaded++
	u.log.Info("uploaded definition", "file", relPath, "workout", name, "id", row.ID)
	return nil
}
