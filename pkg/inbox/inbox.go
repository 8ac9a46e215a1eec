// Package inbox ingests contract documents dropped into a watched directory.
// Files are expected at <dir>/<owner-uuid>/<file>.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

// DefaultSettle is how long a file must stay unchanged before it is ingested.
const DefaultSettle = 2 * time.Second

// Ingester creates contracts from stored documents.
type Ingester interface {
	Ingest(ctx context.Context, req services.IngestRequest) (*models.Contract, error)
}

// Watcher turns new files under the inbox directory into contracts.
type Watcher struct {
	dir      string
	ingester Ingester
	getScope services.ScopeFunc
	settle   time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	pending map[string]time.Time
	seen    map[string]struct{}
}

// New creates a Watcher on dir, creating the directory when missing.
func New(dir string, ingester Ingester, getScope services.ScopeFunc, m *metrics.Metrics, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		dir:      abs,
		ingester: ingester,
		getScope: getScope,
		settle:   DefaultSettle,
		metrics:  m,
		logger:   logger.Named("inbox"),
		watcher:  fw,
		pending:  make(map[string]time.Time),
		seen:     make(map[string]struct{}),
	}

	if err := w.watchTree(); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// watchTree watches the root and every owner directory already present.
func (w *Watcher) watchTree() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list inbox directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchOwnerDir(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) watchOwnerDir(path string) {
	if _, err := uuid.Parse(filepath.Base(path)); err != nil {
		w.logger.Warn("Ignoring inbox directory that is not a user id", zap.String("dir", path))
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Error("Failed to watch owner directory", zap.String("dir", path), zap.Error(err))
	}
}

// Run processes file events until ctx is done. Files already present when
// Run starts are not ingested.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	w.logger.Info("Watching inbox", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Inbox watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if filepath.Dir(event.Name) == w.dir {
			w.watchOwnerDir(event.Name)
		}
		return
	}
	if _, done := w.seen[event.Name]; done {
		return
	}
	w.pending[event.Name] = time.Now()
}

// flush ingests every pending file that has been quiet for the settle time.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)
		w.seen[path] = struct{}{}

		req, err := w.requestFor(path)
		if err != nil {
			w.logger.Debug("Skipping inbox file", zap.String("path", path), zap.Error(err))
			continue
		}

		err = w.ingest(ctx, req)
		w.metrics.RecordInboxFile(err)
		if err != nil {
			w.logger.Error("Failed to ingest inbox file", zap.String("path", path), zap.Error(err))
		}
	}
}

// errSkipped marks files that are not contract documents.
var errSkipped = errors.New("not an inbox document")

func (w *Watcher) ingest(ctx context.Context, req services.IngestRequest) error {
	ctx, cleanup, err := w.getScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	c, err := w.ingester.Ingest(ctx, req)
	if err != nil {
		return err
	}
	w.logger.Info("Inbox file ingested",
		zap.String("path", req.FilePath),
		zap.String("contract_id", c.ID.String()))
	return nil
}

// requestFor maps <dir>/<owner>/<file> to an ingest request.
func (w *Watcher) requestFor(path string) (services.IngestRequest, error) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return services.IngestRequest{}, fmt.Errorf("%w: %v", errSkipped, err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || ignoredName(parts[1]) {
		return services.IngestRequest{}, errSkipped
	}

	owner, err := uuid.Parse(parts[0])
	if err != nil {
		return services.IngestRequest{}, fmt.Errorf("%w: invalid owner directory %q", errSkipped, parts[0])
	}

	return services.IngestRequest{
		UserID:   owner,
		FilePath: path,
	}, nil
}

func ignoredName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".tmp", ".crdownload", ".swp":
		return true
	}
	return false
}
