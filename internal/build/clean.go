package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/conneroisu/sitekit/internal/fileset"
)

// Clean removes everything under the output directory that matches the clean
// glob. The output directory itself is kept. A missing output directory is
// not an error.
func (p *Pipeline) Clean(ctx context.Context) error {
	pattern, err := fileset.Compile(p.cfg.Paths.Clean)
	if err != nil {
		return fmt.Errorf("clean glob: %w", err)
	}

	root := filepath.FromSlash(pattern.Base())
	if _, err := p.fs.Stat(root); os.IsNotExist(err) {
		return nil
	}

	var targets []string
	err = afero.Walk(p.fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if name == root {
			return nil
		}
		if !pattern.Match(fileset.Normalize(name)) {
			return nil
		}
		targets = append(targets, name)
		if info.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}

	var errs error
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.fs.RemoveAll(name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("removing %s: %w", name, err))
		}
	}
	if errs == nil {
		p.logger.Debug(ctx, "cleaned output", "dir", pattern.Base(), "removed", len(targets))
	}
	return errs
}
