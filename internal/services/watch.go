package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/fileset"
	"github.com/conneroisu/sitekit/internal/tasks"
	"github.com/conneroisu/sitekit/internal/watcher"
)

// route re-runs one category task when a watched path matches.
type route struct {
	category config.Category
	matcher  *fileset.Matcher
	serial   *tasks.Serial
}

// routes builds one route per category from its watch globs. Layout and
// partial changes re-render the pages.
func (p *Project) routes(ctx context.Context) ([]*route, error) {
	out := make([]*route, 0, len(config.Categories))
	for _, c := range config.Categories {
		name := build.CategoryTasks[c]
		t, ok := p.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("no task for category %s", c)
		}

		patterns := append([]string(nil), p.config.Paths.For(c).Watch...)
		if c == config.CategoryHTML {
			patterns = append(patterns,
				path.Join(p.config.HTML.Layouts, "**", "*"),
				path.Join(p.config.HTML.Partials, "**", "*"),
			)
		}
		m, err := fileset.NewMatcher(patterns...)
		if err != nil {
			return nil, fmt.Errorf("%s watch globs: %w", c, err)
		}

		task := name
		out = append(out, &route{
			category: c,
			matcher:  m,
			serial: tasks.NewSerial(t, func(err error) {
				p.logger.Debug(ctx, "watch run failed, waiting for changes", "task", task, "error", err.Error())
			}),
		})
	}
	return out, nil
}

// dispatch triggers every route matching one of paths and returns the names
// of the triggered tasks.
func (p *Project) dispatch(ctx context.Context, routes []*route, paths []string) []string {
	var triggered []string
	for _, r := range routes {
		var changed []string
		for _, name := range paths {
			if r.matcher.Match(name) {
				changed = append(changed, name)
			}
		}
		if len(changed) == 0 {
			continue
		}
		p.logger.Info(ctx, fmt.Sprintf("Changed: %s", strings.Join(changed, ", ")), "task", r.serial.Name())
		r.serial.Trigger(ctx)
		triggered = append(triggered, r.serial.Name())
	}
	return triggered
}

// watchRoots returns the existing directories to watch: the static bases of
// every route, with nested directories folded into their parents.
func watchRoots(fsys afero.Fs, routes []*route) []string {
	var bases []string
	for _, r := range routes {
		bases = append(bases, r.matcher.Bases()...)
	}
	sort.Strings(bases)

	var roots []string
next:
	for _, b := range bases {
		if info, err := fsys.Stat(filepath.FromSlash(b)); err != nil || !info.IsDir() {
			continue
		}
		for _, root := range roots {
			if within(b, root) {
				continue next
			}
		}
		roots = append(roots, b)
	}
	return roots
}

func within(name, dir string) bool {
	return dir == "." || name == dir || strings.HasPrefix(name, dir+"/")
}

// WatchFiles watches the source tree and re-runs the category task of every
// changed file until ctx is done. Task failures are reported, not returned.
func (p *Project) WatchFiles(ctx context.Context) error {
	routes, err := p.routes(ctx)
	if err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(p.config.Development.Debounce, p.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoBackupFilter)
	fw.SkipDir(watcher.UnderFilter(p.config.Paths.Dist))
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		p.dispatch(ctx, routes, watcher.Paths(events))
		return nil
	})

	roots := watchRoots(p.fs, routes)
	for _, root := range roots {
		if err := fw.AddRecursive(root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}
	if p.notifier != nil {
		p.pipeline.AddCallback(p.notifier)
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	p.logger.Info(ctx, fmt.Sprintf("Watching %s for changes", strings.Join(roots, ", ")),
		"directories", len(fw.WatchList()))

	<-ctx.Done()
	for _, r := range routes {
		r.serial.Wait()
	}
	return nil
}
