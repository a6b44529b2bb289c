// Package ingest watches a drop directory and hands newly arrived dataset
// files to the pipeline.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// Handler is invoked once per settled file. A handler error is logged and
// the file is left in place for inspection.
type Handler func(ctx context.Context, path string) error

// Options configures the watcher.
type Options struct {
	// Dir is the directory to watch. Files already present on start are
	// picked up first.
	Dir string
	// SettleDelay is how long a file must be quiet before it is considered
	// fully written. Exporters copy large CSVs in chunks.
	SettleDelay time.Duration
	// Extensions filters by file suffix, lowercase with dot. Empty means
	// ".csv" only.
	Extensions []string
}

// Watcher turns filesystem events into Handler calls.
type Watcher struct {
	opts    Options
	handler Handler
	logger  logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewWatcher(opts Options, handler Handler, logger logging.Logger) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.InvalidParam("watch directory cannot be empty")
	}
	if handler == nil {
		return nil, errors.InvalidParam("handler cannot be nil")
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".csv"}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Watcher{
		opts:    opts,
		handler: handler,
		logger:  logger.Named("ingest"),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled. Existing files are processed first so
// a restart never loses drops that arrived while the watcher was down.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "create filesystem watcher")
	}
	defer fw.Close()

	if err := fw.Add(w.opts.Dir); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidParam, "watch %s", w.opts.Dir)
	}
	w.logger.Info("watching for dataset drops", logging.String("dir", w.opts.Dir))

	if err := w.processExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", logging.Err(err))
		}
	}
}

func (w *Watcher) processExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInvalidParam, "read %s", w.opts.Dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.opts.Dir, e.Name())
		if w.accepts(path) {
			w.schedule(ctx, path)
		}
	}
	return nil
}

func (w *Watcher) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.opts.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// schedule debounces repeated write events: every new event resets the
// settle timer, and the handler fires only once the file has been quiet for
// SettleDelay.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.opts.SettleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.SettleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.logger.Info("processing dataset drop", logging.String("path", path))
		if err := w.handler(ctx, path); err != nil {
			w.logger.Error("dataset drop failed",
				logging.String("path", path),
				logging.Err(err),
			)
		}
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
