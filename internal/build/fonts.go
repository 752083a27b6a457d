package build

import (
	"context"
	"fmt"

	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/fileset"
)

// Fonts copies the matched fonts, keeping their sub directories.
func (p *Pipeline) Fonts(ctx context.Context) error {
	return p.run(ctx, TaskFonts, EventReload, p.fonts)
}

func (p *Pipeline) fonts(ctx context.Context, st *TaskStats) error {
	files, err := fileset.Expand(p.fs, p.cfg.Paths.Fonts.Source...)
	if err != nil {
		return fmt.Errorf("expanding font sources: %w", err)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := p.readFile(f.Path)
		if err != nil {
			return err
		}
		if err := p.writeFile(st, p.output(config.CategoryFonts, f.Rel), data); err != nil {
			return err
		}
	}
	return nil
}
