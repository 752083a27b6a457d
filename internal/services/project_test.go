package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/fileset"
	"github.com/conneroisu/sitekit/internal/tasks"
)

type fakeSass struct {
	err error
}

func (f fakeSass) Compile(entry, src string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return ".page { color: red; }\n", nil
}

var siteFiles = map[string]string{
	"src/index.html":            "---\ntitle: Home\n---\n<h1>{{title}}</h1>\n",
	"src/about.html":            "<p>About</p>\n",
	"src/layouts/default.html":  "<html><head><title>{{title}}</title></head><body>{{> header}}{{> body}}</body></html>",
	"src/partials/header.html":  "<header>Site</header>",
	"src/scss/main.scss":        ".page { color: red; }",
	"src/scss/_vars.scss":       "$brand: red;",
	"src/js/a.js":               "function a() { return 1 }",
	"src/js/b.js":               "function b() { return a() }",
	"src/images/logo.svg":       `<svg xmlns="http://www.w3.org/2000/svg"><!-- c --><rect width="1" height="1"/></svg>`,
	"src/fonts/sans/sans.woff2": "font",
	"dist/stale.html":           "old",
}

func newTestProject(t *testing.T, sass build.SassCompiler, opts ...Option) (*Project, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range siteFiles {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	opts = append(opts, WithPipelineOptions(build.WithSassCompiler(sass)))
	p, err := NewProject(config.Default(), fs, nil, opts...)
	require.NoError(t, err)
	return p, fs
}

func TestRegisteredTasks(t *testing.T) {
	p, _ := newTestProject(t, fakeSass{})

	assert.Equal(t, []string{
		"browser", "build", "clean", "fonts", "html", "images", "scripts", "serve", "styles", "watch",
	}, p.Registry().Names())
	assert.Equal(t, TaskWatch, p.Registry().Default())

	buildTask, ok := p.Registry().Get(TaskBuild)
	require.True(t, ok)
	assert.Equal(t, "series", tasks.Describe(buildTask))
	children := tasks.Children(buildTask)
	require.Len(t, children, 2)
	assert.Equal(t, build.TaskClean, children[0].Name())
	assert.Equal(t, "parallel", tasks.Describe(children[1]))
	assert.Len(t, tasks.Children(children[1]), 5)

	serve, ok := p.Registry().Get(TaskServe)
	require.True(t, ok)
	assert.Equal(t, TaskBrowser, serve.Name())
}

func TestBuildCleansThenWritesEveryCategory(t *testing.T) {
	p, fs := newTestProject(t, fakeSass{})

	require.NoError(t, p.Run(context.Background(), TaskBuild))

	exists := func(name string) bool {
		ok, err := afero.Exists(fs, name)
		require.NoError(t, err)
		return ok
	}
	assert.False(t, exists("dist/stale.html"))
	for _, name := range []string{
		"dist/index.html",
		"dist/about.html",
		"dist/css/style.min.css",
		"dist/js/script.min.js",
		"dist/images/logo.svg",
		"dist/fonts/sans/sans.woff2",
	} {
		assert.True(t, exists(name), name)
	}
	for name := range siteFiles {
		if filepath.Dir(name) != "dist" {
			assert.True(t, exists(name), "source %s removed", name)
		}
	}

	for _, name := range []string{TaskBuild, build.TaskClean, build.TaskHTML, build.TaskStyles, build.TaskScripts, build.TaskImages, build.TaskFonts} {
		m, ok := p.Metrics().Get(name)
		require.True(t, ok, name)
		assert.Equal(t, int64(1), m.Runs, name)
		assert.Zero(t, m.Failures, name)
	}
}

func TestBuildFailureIsReturned(t *testing.T) {
	p, _ := newTestProject(t, fakeSass{err: errors.New("Undefined variable")})

	err := p.Run(context.Background(), TaskBuild)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable")
	assert.True(t, p.Pipeline().Errors().HasErrors())

	m, ok := p.Metrics().Get(TaskBuild)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Failures)
}

func TestRunUnknownTask(t *testing.T) {
	p, _ := newTestProject(t, fakeSass{})

	err := p.Run(context.Background(), "deploy")
	var unknown *tasks.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "deploy", unknown.Name)
}

func TestRunSeveralTasksInOrder(t *testing.T) {
	p, fs := newTestProject(t, fakeSass{})

	require.NoError(t, p.Run(context.Background(), build.TaskClean, build.TaskScripts))
	stale, _ := afero.Exists(fs, "dist/stale.html")
	assert.False(t, stale)
	script, _ := afero.Exists(fs, "dist/js/script.min.js")
	assert.True(t, script)
	html, _ := afero.Exists(fs, "dist/index.html")
	assert.False(t, html)
}

func TestDispatchRoutesByCategory(t *testing.T) {
	p, _ := newTestProject(t, fakeSass{})
	ctx := context.Background()
	routes, err := p.routes(ctx)
	require.NoError(t, err)

	wait := func() {
		for _, r := range routes {
			r.serial.Wait()
		}
	}

	tests := []struct {
		paths []string
		want  []string
	}{
		{paths: []string{"src/scss/_vars.scss"}, want: []string{build.TaskStyles}},
		{paths: []string{"src/layouts/default.html"}, want: []string{build.TaskHTML}},
		{paths: []string{"src/partials/header.html"}, want: []string{build.TaskHTML}},
		{paths: []string{"src/js/lib/util.js", "src/fonts/a.ttf"}, want: []string{build.TaskScripts, build.TaskFonts}},
		{paths: []string{"src/js/script.min.js"}},
		{paths: []string{"README.md", "dist/index.html"}},
		{paths: []string{"src/images/icons/x.png"}, want: []string{build.TaskImages}},
	}
	for _, tt := range tests {
		got := p.dispatch(ctx, routes, tt.paths)
		wait()
		assert.Equal(t, tt.want, got, "%v", tt.paths)
	}

	styles, ok := p.Metrics().Get(build.TaskStyles)
	require.True(t, ok)
	assert.Equal(t, int64(1), styles.Runs)
	_, ok = p.Metrics().Get(build.TaskClean)
	assert.False(t, ok, "watch runs must not clean")
}

func TestStatusReportsTaskOutput(t *testing.T) {
	p, _ := newTestProject(t, fakeSass{})
	require.NoError(t, p.Run(context.Background(), build.TaskScripts))

	status, ok := p.status().([]TaskStatus)
	require.True(t, ok)
	require.Len(t, status, 1)
	assert.Equal(t, build.TaskScripts, status[0].Name)
	require.NotNil(t, status[0].Output)
	assert.Equal(t, 1, status[0].Output.FilesWritten)
}

func TestWatchRootsFoldNestedDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, d := range []string{"src/js", "src/scss", "src-extra", "assets"} {
		require.NoError(t, fs.MkdirAll(d, 0o755))
	}
	require.NoError(t, afero.WriteFile(fs, "notadir", []byte("x"), 0o644))

	m := func(patterns ...string) *route {
		r := &route{}
		var err error
		r.matcher, err = fileset.NewMatcher(patterns...)
		require.NoError(t, err)
		return r
	}
	roots := watchRoots(fs, []*route{
		m("src/js/**/*.js"),
		m("notadir/*.js"),
		m("src/**/*.html"),
		m("src-extra/*.scss"),
		m("missing/**/*"),
		m("assets/**/*", "!assets/tmp/**"),
	})
	assert.Equal(t, []string{"assets", "src", "src-extra"}, roots)
}

func TestWatchFilesRebuildsChangedCategory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	for name, content := range map[string]string{
		"src/js/app.js":      "function app() { return 1 }",
		"src/scss/main.scss": ".a { color: red; }",
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Development.Debounce = 20 * time.Millisecond

	var mu sync.Mutex
	var notified []build.Event
	p, err := NewProject(cfg, afero.NewOsFs(), nil,
		WithPipelineOptions(build.WithSassCompiler(fakeSass{})),
		WithNotifier(func(ev build.Event) {
			mu.Lock()
			defer mu.Unlock()
			notified = append(notified, ev)
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.WatchFiles(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile("src/js/app.js", []byte("function app() { return 2 }"), 0o644)
		_, err := os.Stat("dist/js/script.min.js")
		return err == nil
	}, 10*time.Second, 100*time.Millisecond)

	_, err = os.Stat("dist/css/style.min.css")
	assert.True(t, os.IsNotExist(err), "a script change must not rebuild styles")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WatchFiles did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, notified)
	assert.Equal(t, build.TaskScripts, notified[0].Task)
}
