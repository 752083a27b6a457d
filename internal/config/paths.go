package config

import (
	"path"
)

// Category names an asset category. The string values are the keys used in
// the paths section of the config file.
type Category string

const (
	CategoryHTML    Category = "html"
	CategoryScripts Category = "js"
	CategoryStyles  Category = "css"
	CategoryImages  Category = "images"
	CategoryFonts   Category = "fonts"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryHTML, CategoryScripts, CategoryStyles, CategoryImages, CategoryFonts}

// PathSpec is the path configuration of one category.
type PathSpec struct {
	Source []string `mapstructure:"source" yaml:"source"`
	Output string   `mapstructure:"output" yaml:"output"`
	Watch  []string `mapstructure:"watch" yaml:"watch"`
}

// PathsConfig maps categories to their globs and output directories.
type PathsConfig struct {
	Src    string   `mapstructure:"src" yaml:"src"`
	Dist   string   `mapstructure:"dist" yaml:"dist"`
	Clean  string   `mapstructure:"clean" yaml:"clean,omitempty"`
	HTML   PathSpec `mapstructure:"html" yaml:"html,omitempty"`
	JS     PathSpec `mapstructure:"js" yaml:"js,omitempty"`
	CSS    PathSpec `mapstructure:"css" yaml:"css,omitempty"`
	Images PathSpec `mapstructure:"images" yaml:"images,omitempty"`
	Fonts  PathSpec `mapstructure:"fonts" yaml:"fonts,omitempty"`
}

const (
	imageExts = "{jpg,png,svg,gif,ico,webp,webmanifest,xml,json}"
	fontExts  = "{eot,woff,woff2,ttf,svg}"
)

// DefaultPaths returns the standard layout for the given source and output
// roots.
func DefaultPaths(src, dist string) PathsConfig {
	images := path.Join(src, "images", "**", "*."+imageExts)
	fonts := path.Join(src, "fonts", "**", "*."+fontExts)

	return PathsConfig{
		Src:   src,
		Dist:  dist,
		Clean: path.Join(dist, "**", "*"),
		HTML: PathSpec{
			Source: []string{path.Join(src, "*.html")},
			Output: dist,
			Watch:  []string{path.Join(src, "**", "*.html")},
		},
		JS: PathSpec{
			Source: []string{path.Join(src, "js", "*.js")},
			Output: path.Join(dist, "js"),
			Watch: []string{
				path.Join(src, "js", "**", "*.js"),
				"!" + path.Join(src, "js", "script.min.js"),
			},
		},
		CSS: PathSpec{
			Source: []string{path.Join(src, "scss", "*.scss")},
			Output: path.Join(dist, "css"),
			Watch:  []string{path.Join(src, "scss", "**", "*.scss")},
		},
		Images: PathSpec{
			Source: []string{images},
			Output: path.Join(dist, "images"),
			Watch:  []string{images},
		},
		Fonts: PathSpec{
			Source: []string{fonts},
			Output: path.Join(dist, "fonts"),
			Watch:  []string{fonts},
		},
	}
}

// For returns the path spec of category c.
func (p PathsConfig) For(c Category) PathSpec {
	switch c {
	case CategoryHTML:
		return p.HTML
	case CategoryScripts:
		return p.JS
	case CategoryStyles:
		return p.CSS
	case CategoryImages:
		return p.Images
	case CategoryFonts:
		return p.Fonts
	default:
		return PathSpec{}
	}
}

func (p *PathsConfig) spec(c Category) *PathSpec {
	switch c {
	case CategoryHTML:
		return &p.HTML
	case CategoryScripts:
		return &p.JS
	case CategoryStyles:
		return &p.CSS
	case CategoryImages:
		return &p.Images
	case CategoryFonts:
		return &p.Fonts
	default:
		return nil
	}
}

// fill copies defaults into every field left empty by the user.
func (p *PathsConfig) fill() {
	def := DefaultPaths(p.Src, p.Dist)
	if p.Clean == "" {
		p.Clean = def.Clean
	}
	for _, c := range Categories {
		have, want := p.spec(c), def.spec(c)
		customSource := len(have.Source) > 0
		if !customSource {
			have.Source = want.Source
		}
		if have.Output == "" {
			have.Output = want.Output
		} else {
			have.Output = cleanDir(have.Output)
		}
		if len(have.Watch) == 0 {
			if customSource {
				have.Watch = have.Source
			} else {
				have.Watch = want.Watch
			}
		}
	}
}
