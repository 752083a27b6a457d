// Package scaffolding writes the starter tree of a new site and its
// configuration file.
package scaffolding

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitekit/internal/config"
)

// ConfigFileName is the configuration file init writes and sitekit reads.
const ConfigFileName = ".sitekit.yml"

// Options controls Init.
type Options struct {
	// Dir is the project directory, "." when empty.
	Dir string
	// Force overwrites files that already exist.
	Force bool
	// Config supplies the source root and the values written to the
	// configuration file. config.Default() when nil.
	Config *config.Config
}

// Result lists what Init did, by path relative to Dir.
type Result struct {
	Created []string
	Skipped []string
}

// Init writes the starter source tree and the configuration file. Existing
// files are left alone unless opts.Force is set.
func Init(fsys afero.Fs, opts Options) (*Result, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	files := make(map[string][]byte, len(starterFiles)+1)
	for name, content := range starterFiles {
		files[path.Join(cfg.Paths.Src, name)] = []byte(content)
	}
	data, err := ConfigYAML(cfg)
	if err != nil {
		return nil, err
	}
	files[ConfigFileName] = data

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &Result{}
	for _, name := range names {
		target := filepath.Join(dir, filepath.FromSlash(name))
		exists, err := afero.Exists(fsys, target)
		if err != nil {
			return result, fmt.Errorf("checking %s: %w", name, err)
		}
		if exists && !opts.Force {
			result.Skipped = append(result.Skipped, name)
			continue
		}
		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return result, fmt.Errorf("creating directory for %s: %w", name, err)
		}
		if err := afero.WriteFile(fsys, target, files[name], 0o644); err != nil {
			return result, fmt.Errorf("writing %s: %w", name, err)
		}
		result.Created = append(result.Created, name)
	}
	return result, nil
}

var sectionComments = map[string]string{
	"paths":       "Source and output roots. Per-category globs (paths.html, paths.js, ...)\nare derived from these unless set explicitly.",
	"html":        "Handlebars pages: layouts, partials and minification.",
	"styles":      "SCSS entry point, output name and browser targets for prefixing.",
	"scripts":     "Scripts are concatenated in name order into one file.",
	"images":      "Image optimisation.",
	"server":      "Development server.",
	"development": "Live reload and watch behaviour.",
	"log":         "Log level (debug, info, warn, error) and format (text, json).",
}

// ConfigYAML renders cfg as a commented configuration file. Derived
// per-category paths are left out so they keep following paths.src and
// paths.dist.
func ConfigYAML(cfg *config.Config) ([]byte, error) {
	out := *cfg
	out.Paths = config.PathsConfig{Src: cfg.Paths.Src, Dist: cfg.Paths.Dist}

	var doc yaml.Node
	if err := doc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	doc.HeadComment = "sitekit configuration. Every key can be overridden with a SITEKIT_\nenvironment variable, e.g. SITEKIT_SERVER_PORT=8080."

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
