// Package build implements the category tasks of the asset pipeline: clean,
// html, styles, scripts, images and fonts. Each task matches its source
// globs, hands the bytes to a library transform and writes the result under
// the category's output directory.
package build

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/tdewolff/minify/v2"

	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
	"github.com/conneroisu/sitekit/internal/logging"
	"github.com/conneroisu/sitekit/internal/renderer"
)

// Task names.
const (
	TaskClean   = "clean"
	TaskHTML    = "html"
	TaskStyles  = "styles"
	TaskScripts = "scripts"
	TaskImages  = "images"
	TaskFonts   = "fonts"
)

// CategoryTasks maps each asset category to the task that builds it.
var CategoryTasks = map[config.Category]string{
	config.CategoryHTML:    TaskHTML,
	config.CategoryStyles:  TaskStyles,
	config.CategoryScripts: TaskScripts,
	config.CategoryImages:  TaskImages,
	config.CategoryFonts:   TaskFonts,
}

// EventKind says what a browser should do after a task run.
type EventKind int

const (
	// EventReload asks for a full page reload.
	EventReload EventKind = iota
	// EventCSS asks for the stylesheets to be swapped in place.
	EventCSS
	// EventError reports a failed run.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReload:
		return "reload"
	case EventCSS:
		return "css"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted after every category task run.
type Event struct {
	Task     string
	Kind     EventKind
	Files    []string
	Errors   []*sitekiterrors.BuildError
	Duration time.Duration
	// Recovered is set on a successful run that follows a failed one.
	Recovered bool
}

// EventCallback is called when a task run completes.
type EventCallback func(Event)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSassCompiler replaces the libsass compiler.
func WithSassCompiler(c SassCompiler) Option {
	return func(p *Pipeline) { p.sass = c }
}

// WithCallback registers cb before the first run.
func WithCallback(cb EventCallback) Option {
	return func(p *Pipeline) { p.callbacks = append(p.callbacks, cb) }
}

// Pipeline runs the category tasks against a filesystem.
type Pipeline struct {
	fs       afero.Fs
	cfg      *config.Config
	logger   logging.Logger
	minifier *minify.M
	renderer *renderer.Renderer
	sass     SassCompiler
	engines  []api.Engine
	target   api.Target
	errors   *sitekiterrors.ErrorCollector

	mu        sync.RWMutex
	callbacks []EventCallback
	stats     map[string]*TaskStats
}

// New creates a pipeline for cfg. fsys is usually afero.NewOsFs() rooted at
// the project directory.
func New(fsys afero.Fs, cfg *config.Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	engines, err := styleEngines(cfg.Styles.Targets)
	if err != nil {
		return nil, err
	}
	target, err := scriptTarget(cfg.Scripts.Target)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		fs:       fsys,
		cfg:      cfg,
		logger:   logger.WithComponent("build"),
		minifier: newMinifier(cfg.HTML),
		renderer: renderer.New(fsys, renderer.Options{
			Layouts:       cfg.HTML.Layouts,
			Partials:      cfg.HTML.Partials,
			DefaultLayout: cfg.HTML.DefaultLayout,
		}),
		engines: engines,
		target:  target,
		errors:  sitekiterrors.NewErrorCollector(),
		stats:   make(map[string]*TaskStats),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sass == nil {
		p.sass = NewLibSass(fsys, sassIncludePaths(cfg))
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Errors returns the collector holding the latest failure of each task.
func (p *Pipeline) Errors() *sitekiterrors.ErrorCollector { return p.errors }

// AddCallback registers cb for every later task run.
func (p *Pipeline) AddCallback(cb EventCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// run wraps a category task: it resets the task's stats, records the outcome
// in the error collector and fans the event out to callbacks.
func (p *Pipeline) run(ctx context.Context, task string, kind EventKind, fn func(ctx context.Context, st *TaskStats) error) error {
	start := time.Now()
	st := &TaskStats{Task: task}
	err := fn(ctx, st)
	st.Duration = time.Since(start)
	st.LastRun = start

	p.mu.Lock()
	p.stats[task] = st
	callbacks := append([]EventCallback(nil), p.callbacks...)
	p.mu.Unlock()

	if err != nil && ctx.Err() != nil {
		return err
	}

	ev := Event{Task: task, Kind: kind, Files: st.Written, Duration: st.Duration}
	if err != nil {
		errs := sitekiterrors.AsBuildErrors(task, err)
		p.errors.Set(task, errs)
		ev.Kind = EventError
		ev.Errors = errs
	} else {
		ev.Recovered = p.hadErrors(task)
		p.errors.Clear(task)
	}
	for _, cb := range callbacks {
		cb(ev)
	}
	return err
}

func (p *Pipeline) hadErrors(task string) bool {
	for _, e := range p.errors.GetErrors() {
		if e.Task == task {
			return true
		}
	}
	return false
}

// output returns the destination of a file relative to its category output.
func (p *Pipeline) output(c config.Category, rel string) string {
	return path.Join(p.cfg.Paths.For(c).Output, rel)
}

func (p *Pipeline) writeFile(st *TaskStats, name string, data []byte) error {
	dir := filepath.Dir(filepath.FromSlash(name))
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := afero.WriteFile(p.fs, filepath.FromSlash(name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	st.wrote(name, len(data))
	return nil
}

func (p *Pipeline) readFile(name string) ([]byte, error) {
	data, err := afero.ReadFile(p.fs, filepath.FromSlash(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// TaskStats describes the last run of a task.
type TaskStats struct {
	Task         string        `json:"task"`
	LastRun      time.Time     `json:"last_run"`
	Duration     time.Duration `json:"duration"`
	FilesWritten int           `json:"files_written"`
	FilesSkipped int           `json:"files_skipped"`
	BytesWritten int64         `json:"bytes_written"`
	BytesSaved   int64         `json:"bytes_saved"`
	Written      []string      `json:"-"`
}

func (st *TaskStats) wrote(name string, n int) {
	st.FilesWritten++
	st.BytesWritten += int64(n)
	st.Written = append(st.Written, name)
}

// Stats returns the stats of every task that has run, sorted by task.
func (p *Pipeline) Stats() []TaskStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]TaskStats, 0, len(p.stats))
	for _, st := range p.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}

// LastStats returns the stats of the last run of task.
func (p *Pipeline) LastStats(task string) (TaskStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.stats[task]
	if !ok {
		return TaskStats{}, false
	}
	return *st, true
}

func exists(fsys afero.Fs, name string) bool {
	_, err := fsys.Stat(filepath.FromSlash(name))
	return err == nil || !os.IsNotExist(err)
}
