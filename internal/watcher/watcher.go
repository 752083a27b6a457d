// Package watcher reports batches of file changes under a set of directories.
// Changes are debounced: a burst of writes produces one batch once the tree
// has been quiet for the configured delay. Directories created while the
// watcher runs are watched too.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/sitekit/internal/fileset"
	"github.com/conneroisu/sitekit/internal/logging"
)

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    logging.Logger
	filters   []FileFilter
	skipDirs  []FileFilter
	handlers  []ChangeHandler
	mutex     sync.RWMutex

	stopOnce sync.Once
	stopErr  error
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path is of interest.
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of changes.
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	done    chan struct{}
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

func newDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 16),
		done:    make(chan struct{}),
		pending: make([]ChangeEvent, 0),
	}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: newDebouncer(debounceDelay),
		logger:    logger.WithComponent("watcher"),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
	}, nil
}

// AddFilter adds a file filter. A change is reported only if every filter
// accepts its path.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// SkipDir makes AddRecursive, and the automatic watch of new directories,
// leave out directories the filter accepts.
func (fw *FileWatcher) SkipDir(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.skipDirs = append(fw.skipDirs, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a single directory.
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != cleanRoot && fw.skipped(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// WatchList returns the watched directories.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

func (fw *FileWatcher) skipped(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	name := fileset.Normalize(path)
	for _, skip := range fw.skipDirs {
		if skip(name) {
			return true
		}
	}
	return false
}

// validatePath cleans path and checks it is an existing directory.
func validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path %s is not a directory", path)
	}
	return cleanPath, nil
}

// Start starts the file watcher. It returns immediately; the watcher runs
// until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources. It is safe to call
// more than once.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		fw.debouncer.stop()
		fw.stopErr = fw.watcher.Close()
	})
	return fw.stopErr
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64
	if err == nil {
		modTime = info.ModTime()
		size = info.Size()

		// New directories are watched as they appear so files created in
		// them later are seen.
		if info.IsDir() {
			if event.Op&fsnotify.Create == fsnotify.Create && !fw.skipped(event.Name) {
				if err := fw.AddRecursive(event.Name); err != nil {
					fw.logger.Warn(ctx, err, "failed to watch new directory", "path", event.Name)
				}
			}
			return
		}
	}

	name := fileset.Normalize(event.Name)
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()
	for _, filter := range filters {
		if !filter(name) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    name,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case fw.debouncer.events <- changeEvent:
	case <-ctx.Done():
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Warn(ctx, err, "file watcher handler error")
				}
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case <-d.done:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}

	// Last event per path wins.
	eventMap := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}
	d.pending = d.pending[:0]
	d.mutex.Unlock()

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	case <-d.done:
	}
}

// Paths returns the paths of events.
func Paths(events []ChangeEvent) []string {
	paths := make([]string, len(events))
	for i, e := range events {
		paths[i] = e.Path
	}
	return paths
}

// MatcherFilter accepts paths matched by m.
func MatcherFilter(m *fileset.Matcher) FileFilter {
	return m.Match
}

// UnderFilter accepts paths inside dir, or dir itself.
func UnderFilter(dir string) FileFilter {
	dir = fileset.Normalize(dir)
	return func(path string) bool {
		path = fileset.Normalize(path)
		return path == dir || strings.HasPrefix(path, dir+"/")
	}
}

// NoHiddenFilter rejects dot files and anything under a dot directory, such
// as editor swap files and .git.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(fileset.Normalize(path), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return false
		}
	}
	return true
}

// NoBackupFilter rejects editor backup and temporary files.
func NoBackupFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".tmp") &&
		!(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"))
}
