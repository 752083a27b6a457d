package build

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/bep/golibsass/libsass"
	"github.com/bep/golibsass/libsass/libsasserrors"
	"github.com/spf13/afero"

	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
)

// SassCompiler turns SCSS source into CSS. entry is the path of src and is
// used to resolve relative imports.
type SassCompiler interface {
	Compile(entry, src string) (string, error)
}

// LibSass compiles SCSS with libsass. Imports are resolved against the
// afero filesystem so the compiler sees the same files as the tasks.
type LibSass struct {
	fs           afero.Fs
	includePaths []string
}

// NewLibSass returns a libsass compiler searching includePaths after the
// importing file's own directory.
func NewLibSass(fsys afero.Fs, includePaths []string) *LibSass {
	return &LibSass{fs: fsys, includePaths: includePaths}
}

func sassIncludePaths(cfg *config.Config) []string {
	paths := []string{path.Dir(cfg.Styles.Entry)}
	for _, p := range cfg.Styles.IncludePaths {
		if p != "" && p != paths[0] {
			paths = append(paths, p)
		}
	}
	return paths
}

func (l *LibSass) Compile(entry, src string) (string, error) {
	transpiler, err := libsass.New(libsass.Options{
		IncludePaths: l.includePaths,
		OutputStyle:  libsass.ExpandedStyle,
		ImportResolver: func(url, prev string) (string, string, bool) {
			if prev == "stdin" || prev == "" {
				prev = entry
			}
			return l.resolve(url, prev)
		},
	})
	if err != nil {
		return "", err
	}

	result, err := transpiler.Execute(src)
	if err != nil {
		return "", sassError(entry, err)
	}
	return result.CSS, nil
}

// resolve finds url the way Sass does: relative to the importing file first,
// then along the include paths, trying partials and index files.
func (l *LibSass) resolve(url, prev string) (string, string, bool) {
	if strings.Contains(url, "://") || strings.HasPrefix(url, "//") || strings.HasSuffix(url, ".css") {
		return "", "", false
	}

	dirs := append([]string{path.Dir(filepath.ToSlash(prev))}, l.includePaths...)
	for _, dir := range dirs {
		for _, candidate := range importCandidates(path.Join(dir, url)) {
			data, err := afero.ReadFile(l.fs, filepath.FromSlash(candidate))
			if err == nil {
				return candidate, string(data), true
			}
		}
	}
	return "", "", false
}

func importCandidates(name string) []string {
	dir, base := path.Split(name)
	if ext := path.Ext(base); ext == ".scss" {
		return []string{name, dir + "_" + base}
	}
	return []string{
		name + ".scss",
		dir + "_" + base + ".scss",
		name + ".css",
		path.Join(name, "_index.scss"),
		path.Join(name, "index.scss"),
	}
}

func sassError(entry string, err error) error {
	var sErr libsasserrors.Error
	if errors.As(err, &sErr) {
		file := sErr.File
		if file == "" || file == "stdin" {
			file = entry
		}
		be := sitekiterrors.NewBuildError(TaskStyles, file, err)
		be.Line = sErr.Line
		be.Column = sErr.Column
		be.Message = sErr.Message
		return be
	}
	return sitekiterrors.NewBuildError(TaskStyles, entry, err)
}
