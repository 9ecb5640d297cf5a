package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/academe-ai/academe/internal/store"
)

// ingestor is the slice of the ingestion pipeline the watcher uses.
type ingestor interface {
	Upload(ctx context.Context, userID, title, sourcePath, content string) (string, error)
	Delete(ctx context.Context, docID string) error
}

// documentLister resolves a deleted file back to its document.
type documentLister interface {
	ListDocuments(ctx context.Context, userID string) ([]*store.Document, error)
}

// DropBox watches a directory tree and ingests dropped files. The
// first path segment under the root names the owning user.
type DropBox struct {
	root    string
	opts    Options
	ingest  ingestor
	docs    documentLister
	logger  *slog.Logger
	fs      *fsnotify.Watcher
	deb     *Debouncer
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewDropBox creates a drop-box watcher rooted at dir.
func NewDropBox(dir string, opts Options, ing ingestor, docs documentLister, logger *slog.Logger) *DropBox {
	if logger == nil {
		logger = slog.Default()
	}
	return &DropBox{
		root:   dir,
		opts:   opts.WithDefaults(),
		ingest: ing,
		docs:   docs,
		logger: logger,
	}
}

// Start begins watching. The watcher runs until Stop is called or the
// context is cancelled.
func (d *DropBox) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("watcher already started")
	}

	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create drop-box root: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.fs = fs
	d.deb = NewDebouncer(d.opts.DebounceWindow)

	if err := fs.Add(d.root); err != nil {
		_ = fs.Close()
		return fmt.Errorf("watch %s: %w", d.root, err)
	}
	// Watch user directories that already exist.
	entries, err := os.ReadDir(d.root)
	if err != nil {
		_ = fs.Close()
		return fmt.Errorf("read drop-box root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := fs.Add(filepath.Join(d.root, e.Name())); err != nil {
				d.logger.Warn("watch_user_dir_failed",
					slog.String("dir", e.Name()),
					slog.String("error", err.Error()))
			}
		}
	}

	d.started = true
	d.wg.Add(2)
	go d.rawLoop(ctx)
	go d.batchLoop(ctx)

	d.logger.Info("dropbox_started",
		slog.String("dir", d.root),
		slog.Duration("debounce", d.opts.DebounceWindow))
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (d *DropBox) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	_ = d.fs.Close()
	d.deb.Stop()
	d.wg.Wait()
}

// rawLoop translates fsnotify events into debounced file events.
func (d *DropBox) rawLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.fs.Events:
			if !ok {
				return
			}
			d.handleRaw(event)
		case err, ok := <-d.fs.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (d *DropBox) handleRaw(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			d.watchNewDir(event.Name)
			return
		}
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return // chmod and friends
	}

	if skipFile(filepath.Base(event.Name)) {
		return
	}
	d.deb.Add(FileEvent{Path: event.Name, Operation: op, Timestamp: time.Now()})
}

// watchNewDir registers a freshly created user directory and enqueues
// any files already inside it; writes can land before the watch is
// registered.
func (d *DropBox) watchNewDir(dir string) {
	if err := d.fs.Add(dir); err != nil {
		d.logger.Warn("watch_user_dir_failed",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || skipFile(e.Name()) {
			continue
		}
		d.deb.Add(FileEvent{
			Path:      filepath.Join(dir, e.Name()),
			Operation: OpCreate,
			Timestamp: time.Now(),
		})
	}
}

// batchLoop processes debounced event batches.
func (d *DropBox) batchLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-d.deb.Output():
			if !ok {
				return
			}
			for _, event := range batch {
				d.handleEvent(ctx, event)
			}
		}
	}
}

func (d *DropBox) handleEvent(ctx context.Context, event FileEvent) {
	userID, ok := d.userFor(event.Path)
	if !ok {
		d.logger.Debug("dropbox_skip_outside_user_dir", slog.String("path", event.Path))
		return
	}

	switch event.Operation {
	case OpCreate, OpModify:
		d.uploadFile(ctx, userID, event.Path)
	case OpDelete:
		d.removeFile(ctx, userID, event.Path)
	}
}

func (d *DropBox) uploadFile(ctx context.Context, userID, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return // already gone
	}
	if info.IsDir() {
		return
	}
	if info.Size() > d.opts.MaxFileBytes {
		d.logger.Warn("dropbox_file_too_large",
			slog.String("path", path),
			slog.Int64("size_bytes", info.Size()))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn("dropbox_read_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	// Re-dropping a file replaces the previous version.
	if docID := d.findBySource(ctx, userID, path); docID != "" {
		if err := d.ingest.Delete(ctx, docID); err != nil {
			d.logger.Warn("dropbox_replace_failed",
				slog.String("doc_id", docID),
				slog.String("error", err.Error()))
		}
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	docID, err := d.ingest.Upload(ctx, userID, title, path, string(data))
	if err != nil {
		d.logger.Warn("dropbox_upload_failed",
			slog.String("user_id", userID),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Info("dropbox_uploaded",
		slog.String("user_id", userID),
		slog.String("doc_id", docID),
		slog.String("path", path))
}

func (d *DropBox) removeFile(ctx context.Context, userID, path string) {
	docID := d.findBySource(ctx, userID, path)
	if docID == "" {
		return
	}
	if err := d.ingest.Delete(ctx, docID); err != nil {
		d.logger.Warn("dropbox_delete_failed",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Info("dropbox_deleted",
		slog.String("user_id", userID),
		slog.String("doc_id", docID),
		slog.String("path", path))
}

// findBySource returns the ID of the user's document ingested from
// path, or empty.
func (d *DropBox) findBySource(ctx context.Context, userID, path string) string {
	if d.docs == nil {
		return ""
	}
	docs, err := d.docs.ListDocuments(ctx, userID)
	if err != nil {
		return ""
	}
	for _, doc := range docs {
		if doc.SourcePath == path {
			return doc.ID
		}
	}
	return ""
}

// userFor extracts the owning user from a path under the root.
func (d *DropBox) userFor(path string) (string, bool) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", false // file directly in the root has no owner
	}
	return parts[0], true
}

// skipFile reports whether a file name is editor noise.
func skipFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".part", ".swp", ".swx":
		return true
	}
	return strings.HasSuffix(name, "~")
}
