// Package services assembles a sitekit project: it registers the category
// tasks of the pipeline with the task runner, composes them into build and
// watch, and connects the pipeline to the dev server and notifications.
package services

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/logging"
	"github.com/conneroisu/sitekit/internal/notify"
	"github.com/conneroisu/sitekit/internal/server"
	"github.com/conneroisu/sitekit/internal/tasks"
)

// Composite task names. Category task names live in the build package.
const (
	TaskBuild   = "build"
	TaskWatch   = "watch"
	TaskBrowser = "browser"
	TaskServe   = "serve"
)

// Option configures a Project.
type Option func(*projectOptions)

type projectOptions struct {
	pipeline []build.Option
	notifier build.EventCallback
}

// WithPipelineOptions passes opts to the build pipeline.
func WithPipelineOptions(opts ...build.Option) Option {
	return func(o *projectOptions) { o.pipeline = append(o.pipeline, opts...) }
}

// WithNotifier replaces the desktop notifier used when
// development.desktop_notify is set.
func WithNotifier(cb build.EventCallback) Option {
	return func(o *projectOptions) { o.notifier = cb }
}

// Project is a configured site: its pipeline, task registry and dev server.
type Project struct {
	config   *config.Config
	fs       afero.Fs
	logger   logging.Logger
	pipeline *build.Pipeline
	registry *tasks.Registry
	metrics  *tasks.Metrics
	server   *server.DevServer
	notifier build.EventCallback
}

// NewProject builds the pipeline for cfg on fsys and registers every task.
func NewProject(cfg *config.Config, fsys afero.Fs, logger logging.Logger, opts ...Option) (*Project, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	var o projectOptions
	for _, opt := range opts {
		opt(&o)
	}

	pipeline, err := build.New(fsys, cfg, logger, o.pipeline...)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	p := &Project{
		config:   cfg,
		fs:       fsys,
		logger:   logger,
		pipeline: pipeline,
		metrics:  tasks.NewMetrics(),
		notifier: o.notifier,
	}
	p.registry = tasks.NewRegistry(tasks.NewObserver(logger, p.metrics))
	p.server = server.New(fsys, cfg, logger,
		server.WithErrors(pipeline.Errors()),
		server.WithStatus(p.status),
	)
	pipeline.AddCallback(p.server.Notify)

	if p.notifier == nil && cfg.Development.DesktopNotify {
		p.notifier = notify.NewDesktop(logger).Notify
	}

	if err := p.register(); err != nil {
		return nil, err
	}
	return p, nil
}

// register wires the task graph:
//
//	build   = clean, then html, styles, scripts, images and fonts in parallel
//	watch   = build, then the file watchers and the browser in parallel
//	browser = the dev server (alias serve)
func (p *Project) register() error {
	r := p.registry
	clean, err := r.Register(tasks.New(build.TaskClean, p.pipeline.Clean))
	if err != nil {
		return err
	}

	categories := make([]tasks.Task, 0, 5)
	for _, t := range []tasks.Task{
		tasks.New(build.TaskHTML, p.pipeline.HTML),
		tasks.New(build.TaskStyles, p.pipeline.Styles),
		tasks.New(build.TaskScripts, p.pipeline.Scripts),
		tasks.New(build.TaskImages, p.pipeline.Images),
		tasks.New(build.TaskFonts, p.pipeline.Fonts),
	} {
		registered, err := r.Register(t)
		if err != nil {
			return err
		}
		categories = append(categories, registered)
	}

	buildTask, err := r.Register(tasks.Series(TaskBuild, clean, tasks.Parallel("assets", categories...)))
	if err != nil {
		return err
	}
	browser, err := r.Register(tasks.New(TaskBrowser, p.Serve))
	if err != nil {
		return err
	}
	if err := r.Alias(TaskServe, TaskBrowser); err != nil {
		return err
	}
	watch := tasks.Series(TaskWatch,
		buildTask,
		tasks.Parallel("develop", tasks.New("watch-files", p.WatchFiles), browser),
	)
	if _, err := r.Register(watch); err != nil {
		return err
	}
	return r.SetDefault(TaskWatch)
}

// Run runs the named tasks in series, or the default task.
func (p *Project) Run(ctx context.Context, names ...string) error {
	return p.registry.Run(ctx, names...)
}

// Serve runs the dev server until ctx is done.
func (p *Project) Serve(ctx context.Context) error {
	return p.server.Start(ctx)
}

// Config returns the project configuration.
func (p *Project) Config() *config.Config { return p.config }

// Registry returns the task registry.
func (p *Project) Registry() *tasks.Registry { return p.registry }

// Pipeline returns the build pipeline.
func (p *Project) Pipeline() *build.Pipeline { return p.pipeline }

// Server returns the dev server.
func (p *Project) Server() *server.DevServer { return p.server }

// Metrics returns the run metrics of every task.
func (p *Project) Metrics() *tasks.Metrics { return p.metrics }

// TaskStatus is the status endpoint's view of a task.
type TaskStatus struct {
	tasks.TaskMetrics
	Output *build.TaskStats `json:"output,omitempty"`
}

func (p *Project) status() interface{} {
	snapshot := p.metrics.Snapshot()
	out := make([]TaskStatus, 0, len(snapshot))
	for _, m := range snapshot {
		st := TaskStatus{TaskMetrics: m}
		if stats, ok := p.pipeline.LastStats(m.Name); ok {
			st.Output = &stats
		}
		out = append(out, st)
	}
	return out
}
