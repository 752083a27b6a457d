package build

import (
	"context"
	"fmt"
	"path"

	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/fileset"
)

// Scripts concatenates the matched scripts in path order, minifies the
// bundle and writes it as scripts.output. A previous bundle sitting next to
// the sources is never fed back in. No sources means no output.
func (p *Pipeline) Scripts(ctx context.Context) error {
	return p.run(ctx, TaskScripts, EventReload, p.scripts)
}

func (p *Pipeline) scripts(ctx context.Context, st *TaskStats) error {
	files, err := fileset.Expand(p.fs, p.cfg.Paths.JS.Source...)
	if err != nil {
		return fmt.Errorf("expanding script sources: %w", err)
	}

	bundle := &concatenation{}
	for _, f := range files {
		if path.Base(f.Path) == p.cfg.Scripts.Output {
			continue
		}
		src, err := p.readFile(f.Path)
		if err != nil {
			return err
		}
		bundle.Add(f.Path, src)
	}
	if bundle.Len() == 0 {
		p.logger.Debug(ctx, "no scripts matched", "globs", p.cfg.Paths.JS.Source)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := []byte(bundle.String())
	if p.cfg.Scripts.Minify {
		if out, err = p.minifyJS(bundle); err != nil {
			return err
		}
	}
	return p.writeFile(st, path.Join(p.cfg.Paths.For(config.CategoryScripts).Output, p.cfg.Scripts.Output), out)
}
