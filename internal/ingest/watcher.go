package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// debounceDelay coalesces the write bursts editors produce when saving.
const debounceDelay = 500 * time.Millisecond

// Watcher re-ingests files in a corpus directory as they are created or
// modified, keeping a client's collection current without manual runs.
type Watcher struct {
	service  *Service
	clientID string
	dir      string
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	stop    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher that ingests changed files under dir into
// the client's collection.
func NewWatcher(service *Service, clientID, dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		service:  service,
		clientID: clientID,
		dir:      dir,
		logger:   logger.With(zap.String("client_id", clientID), zap.String("dir", dir)),
		watcher:  fw,
		stop:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Event processing runs in a background goroutine
// until Stop is called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.logger.Info("corpus watcher started")
	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, timer := range w.pending {
		timer.Stop()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !textExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		n, err := w.service.IngestFile(ctx, w.clientID, path)
		if err != nil {
			w.logger.Warn("re-ingestion failed", zap.String("path", path), zap.Error(err))
			return
		}
		w.logger.Info("file re-ingested", zap.String("path", path), zap.Int("chunks", n))
	})
}
