package inbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	debounceDefault = 200 * time.Millisecond
	pollDefault     = 5 * time.Second
	// maxQueueSize bounds paths waiting for the worker.
	maxQueueSize = 200
)

// Handler processes one job file.
type Handler func(ctx context.Context, path string)

// Watcher reports new job files in a directory using fsnotify.
// Paths are handed to a single worker in arrival order per debounce batch.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates an fsnotify-based watcher.
func NewWatcher(dir string, handler Handler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, handler: handler, debounce: debounceDefault, logger: logger}
}

// Run blocks until ctx is cancelled. Queued paths are drained before it
// returns.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.dir); err != nil {
		return err
	}

	queue := make(chan string, maxQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range queue {
			w.handle(ctx, path)
		}
	}()

	// ready accumulates paths until the single debounce timer fires.
	var ready []string
	seen := make(map[string]bool)
	flush := func() {
		for _, p := range ready {
			select {
			case queue <- p:
			case <-ctx.Done():
			}
		}
		ready = ready[:0]
		clear(seen)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer func() {
		timer.Stop()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			flush()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isJobFile(event.Name) || seen[event.Name] {
				continue
			}
			seen[event.Name] = true
			ready = append(ready, event.Name)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("inbox handler panic", zap.String("file", filepath.Base(path)), zap.Any("panic", r))
		}
	}()
	w.handler(ctx, path)
}

// PollWatcher scans the directory on an interval. Used where fsnotify is
// unavailable, such as network filesystems.
type PollWatcher struct {
	dir      string
	handler  Handler
	interval time.Duration
	seen     map[string]bool
}

// NewPollWatcher creates a polling watcher.
func NewPollWatcher(dir string, handler Handler, interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = pollDefault
	}
	return &PollWatcher{dir: dir, handler: handler, interval: interval, seen: make(map[string]bool)}
}

// Run polls until ctx is cancelled.
func (w *PollWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PollWatcher) scan(ctx context.Context) {
	paths, err := listJobs(w.dir)
	if err != nil {
		return
	}
	for _, path := range paths {
		if w.seen[path] {
			continue
		}
		w.seen[path] = true
		w.handler(ctx, path)
	}
}

// ScanExisting hands every job file already in dir to handler, in name
// order. A missing directory is not an error.
func ScanExisting(ctx context.Context, dir string, handler Handler) error {
	paths, err := listJobs(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, p := range paths {
		if ctx.Err() != nil {
			return nil
		}
		handler(ctx, p)
	}
	return nil
}

func listJobs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if p := filepath.Join(dir, e.Name()); isJobFile(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// isJobFile reports whether path is a finished .json file.
func isJobFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
