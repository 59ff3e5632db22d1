// Package watch imports CSV files dropped into an inbox directory.
//
// Files are picked up on fsnotify events, with a periodic scan as backup for
// missed events. After an import the file is moved to processed/ or, if the
// import was rejected, to failed/ next to a .error.txt describing why.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/importer"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Importer runs one CSV import into a binder.
type Importer interface {
	Run(ctx context.Context, binderID, text string, format csvimport.Format, progress importer.ProgressFunc) (*importer.Summary, error)
}

// Config configures a Watcher.
type Config struct {
	InboxDir string
	BinderID string

	// Format forces an import format; empty detects it per file.
	Format string

	// PollInterval is the backup scan interval. Zero disables polling.
	PollInterval time.Duration

	// Settle is how long a file must go unmodified before it is read, so
	// files still being written are left alone.
	Settle time.Duration

	Logger *zap.Logger
}

// Watcher imports CSV files from an inbox directory.
type Watcher struct {
	cfg      Config
	importer Importer
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Watcher and the inbox directories it needs.
func New(cfg Config, imp Importer) (*Watcher, error) {
	if cfg.InboxDir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if cfg.BinderID == "" {
		return nil, errors.New("binder id is required")
	}
	if cfg.Format != "" {
		if _, err := csvimport.Select(cfg.Format, ""); err != nil {
			return nil, err
		}
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	for _, dir := range []string{cfg.InboxDir, filepath.Join(cfg.InboxDir, processedDir), filepath.Join(cfg.InboxDir, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &Watcher{
		cfg:      cfg,
		importer: imp,
		logger:   cfg.Logger.With(zap.String("inbox", cfg.InboxDir)),
		now:      time.Now,
	}, nil
}

// Run watches the inbox until ctx is cancelled. Files already present are
// imported first.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(w.cfg.InboxDir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	w.logger.Info("Watching inbox", zap.String("binder_id", w.cfg.BinderID))
	w.scan(ctx)

	var poll <-chan time.Time
	if w.cfg.PollInterval > 0 {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	// Events are debounced: a burst of writes triggers one scan once the
	// directory has been quiet for Settle.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isCSV(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(w.cfg.Settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		case <-debounce.C:
			w.scan(ctx)
		case <-poll:
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	if _, err := w.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("Inbox scan failed", zap.Error(err))
	}
}

// ScanOnce imports every settled CSV currently in the inbox, oldest name
// first, and returns how many files were handled.
func (w *Watcher) ScanOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	handled := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if entry.IsDir() || !isCSV(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if w.now().Sub(info.ModTime()) < w.cfg.Settle {
			continue
		}

		if err := w.importFile(ctx, filepath.Join(w.cfg.InboxDir, entry.Name())); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

// importFile imports one file and moves it out of the inbox. Only errors
// that should stop the scan are returned.
func (w *Watcher) importFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	logger := w.logger.With(zap.String("file", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	text := string(data)

	format, err := csvimport.Select(w.cfg.Format, text)
	if err != nil {
		return err
	}

	summary, err := w.importer.Run(ctx, w.cfg.BinderID, text, format, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Inbox import rejected", zap.Error(err))
		dest, moveErr := w.move(path, failedDir)
		if moveErr != nil {
			return moveErr
		}
		return writeFile(dest+".error.txt", []byte(err.Error()+"\n"))
	}

	logger.Info("Inbox import finished",
		zap.String("format", format.Name),
		zap.Int("created", summary.Created),
		zap.Int("failed", len(summary.Failed)))

	dest, err := w.move(path, processedDir)
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		report, err := json.MarshalIndent(summary.Failed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode import report: %w", err)
		}
		return writeFile(dest+".failures.json", report)
	}
	return nil
}

// move renames path into the named inbox subdirectory, prefixing a
// timestamp when the name is already taken.
func (w *Watcher) move(path, subdir string) (string, error) {
	name := filepath.Base(path)
	dest := filepath.Join(w.cfg.InboxDir, subdir, name)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(w.cfg.InboxDir, subdir, fmt.Sprintf("%d-%s", w.now().UnixNano(), name))
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", name, subdir, err)
	}
	return dest, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func isCSV(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".csv") && !strings.HasPrefix(base, ".")
}
