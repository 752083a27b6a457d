package build

import (
	"context"
	"fmt"

	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
	"github.com/conneroisu/sitekit/internal/fileset"
	"github.com/conneroisu/sitekit/internal/renderer"
)

// HTML renders every page into its layout and minifies the result. A page
// that fails does not stop the others, but fails the task.
func (p *Pipeline) HTML(ctx context.Context) error {
	return p.run(ctx, TaskHTML, EventReload, p.html)
}

func (p *Pipeline) html(ctx context.Context, st *TaskStats) error {
	if err := p.renderer.Refresh(); err != nil {
		return sitekiterrors.NewBuildError(TaskHTML, p.cfg.HTML.Partials, err)
	}

	files, err := fileset.Expand(p.fs, p.cfg.Paths.HTML.Source...)
	if err != nil {
		return fmt.Errorf("expanding html sources: %w", err)
	}

	var failed sitekiterrors.BuildErrors
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.page(st, f); err != nil {
			failed = append(failed, sitekiterrors.AsBuildErrors(TaskHTML, err)...)
		}
	}
	if len(failed) > 0 {
		return failed
	}
	return nil
}

func (p *Pipeline) page(st *TaskStats, f fileset.File) error {
	src, err := p.readFile(f.Path)
	if err != nil {
		return err
	}
	page, err := renderer.ParsePage(f.Path, f.Rel, src)
	if err != nil {
		return err
	}
	out, err := p.renderer.Render(page)
	if err != nil {
		return err
	}
	minified, err := p.minifier.Bytes(mediaHTML, []byte(out))
	if err != nil {
		return sitekiterrors.NewBuildError(TaskHTML, f.Path, fmt.Errorf("minifying: %w", err))
	}
	return p.writeFile(st, p.output(config.CategoryHTML, f.Rel), minified)
}
