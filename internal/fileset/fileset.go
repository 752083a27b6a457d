// Package fileset expands source globs into the files a task reads and
// decides whether a changed path belongs to a set of watch globs.
//
// Patterns always use '/' as separator. They support '*', '?', character
// classes, '{a,b}' alternation and '**' for any number of directories
// (including none). A leading '!' negates a pattern.
package fileset

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
)

// Pattern is a compiled glob.
type Pattern struct {
	raw    string
	base   string
	negate bool
	globs  []glob.Glob
}

// File is a file matched by Expand.
type File struct {
	// Path is the slash separated path as found under the walked root.
	Path string
	// Rel is Path relative to the static base of the pattern that matched it.
	Rel string
}

// Compile parses a pattern.
func Compile(pattern string) (*Pattern, error) {
	raw := pattern
	negate := false
	if strings.HasPrefix(pattern, "!") {
		negate = true
		pattern = pattern[1:]
	}
	pattern = Normalize(pattern)
	if pattern == "" || pattern == "." {
		return nil, fmt.Errorf("empty glob %q", raw)
	}

	p := &Pattern{raw: raw, base: staticBase(pattern), negate: negate}
	for _, variant := range globstarVariants(pattern) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", raw, err)
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.raw }

// Negated reports whether the pattern started with '!'.
func (p *Pattern) Negated() bool { return p.negate }

// Base is the longest leading directory of the pattern without glob syntax.
func (p *Pattern) Base() string { return p.base }

// Match reports whether name matches the pattern, ignoring negation.
func (p *Pattern) Match(name string) bool {
	name = Normalize(name)
	for _, g := range p.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Normalize converts a path to the cleaned, slash separated form patterns are
// matched against.
func Normalize(name string) string {
	name = filepath.ToSlash(name)
	name = path.Clean(name)
	return strings.TrimPrefix(name, "./")
}

// Matcher combines include patterns with '!' excludes.
type Matcher struct {
	include []*Pattern
	exclude []*Pattern
}

// NewMatcher compiles patterns into a Matcher.
func NewMatcher(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		if p.negate {
			m.exclude = append(m.exclude, p)
		} else {
			m.include = append(m.include, p)
		}
	}
	return m, nil
}

// Match reports whether name is matched by an include and by no exclude.
func (m *Matcher) Match(name string) bool {
	return m.matchingInclude(name) != nil
}

func (m *Matcher) matchingInclude(name string) *Pattern {
	for _, ex := range m.exclude {
		if ex.Match(name) {
			return nil
		}
	}
	for _, in := range m.include {
		if in.Match(name) {
			return in
		}
	}
	return nil
}

// Bases returns the distinct base directories of the include patterns.
func (m *Matcher) Bases() []string {
	seen := make(map[string]bool)
	var bases []string
	for _, in := range m.include {
		if !seen[in.base] {
			seen[in.base] = true
			bases = append(bases, in.base)
		}
	}
	sort.Strings(bases)
	return bases
}

// Expand walks the base directories of patterns on fsys and returns the
// regular files they match, sorted by path. Bases that do not exist yield
// nothing, the same as a source glob with no matches.
func Expand(fsys afero.Fs, patterns ...string) ([]File, error) {
	m, err := NewMatcher(patterns...)
	if err != nil {
		return nil, err
	}

	found := make(map[string]File)
	for _, base := range m.Bases() {
		root := filepath.FromSlash(base)
		if _, err := fsys.Stat(root); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		err := afero.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			name := Normalize(p)
			if _, dup := found[name]; dup {
				return nil
			}
			in := m.matchingInclude(name)
			if in == nil {
				return nil
			}
			found[name] = File{Path: name, Rel: relTo(in.base, name)}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}

	files := make([]File, 0, len(found))
	for _, f := range found {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func relTo(base, name string) string {
	if base == "." {
		return name
	}
	return strings.TrimPrefix(name, base+"/")
}

// staticBase returns the directory portion of pattern before the first
// segment that holds glob syntax.
func staticBase(pattern string) string {
	segments := strings.Split(pattern, "/")
	var static []string
	for i, seg := range segments {
		if strings.ContainsAny(seg, "*?[{") || i == len(segments)-1 {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	return strings.Join(static, "/")
}

// globstarVariants expands every "**/" into both itself and nothing, so that
// "a/**/*.js" also matches "a/x.js". gobwas/glob needs the literal separator
// after "**" otherwise.
func globstarVariants(pattern string) []string {
	idx := strings.Index(pattern, "**/")
	if idx < 0 {
		return []string{pattern}
	}
	if idx > 0 && pattern[idx-1] != '/' {
		rest := globstarVariants(pattern[idx+3:])
		out := make([]string, len(rest))
		for i, r := range rest {
			out[i] = pattern[:idx+3] + r
		}
		return out
	}

	head := pattern[:idx]
	var out []string
	for _, r := range globstarVariants(pattern[idx+3:]) {
		out = append(out, head+"**/"+r, head+r)
	}
	return out
}
