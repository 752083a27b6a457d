package build

import (
	"context"
	"path"

	"github.com/conneroisu/sitekit/internal/config"
)

// Styles compiles the stylesheet entry, prefixes and minifies it and writes
// a single file named after styles.basename and styles.suffix. A missing
// entry writes nothing.
func (p *Pipeline) Styles(ctx context.Context) error {
	kind := EventReload
	if p.cfg.Development.CSSInjection {
		kind = EventCSS
	}
	return p.run(ctx, TaskStyles, kind, p.styles)
}

func (p *Pipeline) styles(ctx context.Context, st *TaskStats) error {
	entry := p.cfg.Styles.Entry
	if !exists(p.fs, entry) {
		p.logger.Debug(ctx, "no stylesheet entry", "entry", entry)
		return nil
	}
	src, err := p.readFile(entry)
	if err != nil {
		return err
	}

	css, err := p.sass.Compile(entry, string(src))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := p.minifyCSS(entry, css)
	if err != nil {
		return err
	}
	return p.writeFile(st, path.Join(p.cfg.Paths.For(config.CategoryStyles).Output, p.cfg.Styles.OutputName()), out)
}
