// Package renderer renders Handlebars pages into layouts.
//
// A page is an HTML file with an optional YAML front matter block. Its body
// becomes the "body" partial of a layout taken from the layouts directory
// (front matter key "layout", or the default layout). Every file in the
// partials directory is available as a partial under its base name. The
// layouts and partials are re-read by Refresh, which the html task calls at
// the start of every run so edits are picked up in watch mode.
package renderer

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
)

// BodyPartial is the partial name a layout uses to include the page.
const BodyPartial = "body"

var templateExts = map[string]bool{".html": true, ".hbs": true, ".handlebars": true}

// Options locate the layouts and partials.
type Options struct {
	Layouts       string
	Partials      string
	DefaultLayout string
}

// Renderer renders pages. It is safe for concurrent use.
type Renderer struct {
	fs   afero.Fs
	opts Options

	mu       sync.RWMutex
	layouts  map[string]string
	partials map[string]string
}

// New creates a renderer reading templates from fsys. Refresh must be called
// before the first Render.
func New(fsys afero.Fs, opts Options) *Renderer {
	if opts.DefaultLayout == "" {
		opts.DefaultLayout = "default"
	}
	return &Renderer{
		fs:       fsys,
		opts:     opts,
		layouts:  make(map[string]string),
		partials: make(map[string]string),
	}
}

// Refresh reloads every layout and partial. Missing directories are treated
// as empty.
func (r *Renderer) Refresh() error {
	layouts, err := r.load(r.opts.Layouts, false)
	if err != nil {
		return fmt.Errorf("loading layouts: %w", err)
	}
	partials, err := r.load(r.opts.Partials, true)
	if err != nil {
		return fmt.Errorf("loading partials: %w", err)
	}
	if _, ok := partials[BodyPartial]; ok {
		return fmt.Errorf("partial name %q is reserved for the page body", BodyPartial)
	}

	r.mu.Lock()
	r.layouts = layouts
	r.partials = partials
	r.mu.Unlock()
	return nil
}

func (r *Renderer) load(dir string, recursive bool) (map[string]string, error) {
	out := make(map[string]string)
	if dir == "" {
		return out, nil
	}
	if _, err := r.fs.Stat(dir); os.IsNotExist(err) {
		return out, nil
	}

	err := afero.Walk(r.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(p)
		if !templateExts[ext] {
			return nil
		}
		data, err := afero.ReadFile(r.fs, p)
		if err != nil {
			return err
		}
		out[strings.TrimSuffix(filepath.Base(p), ext)] = joinPageArgs(string(data))
		return nil
	})
	return out, err
}

// Layouts returns the names of the loaded layouts.
func (r *Renderer) Layouts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.layouts))
	for name := range r.layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Page is a page ready to render.
type Page struct {
	// Path is the source path, used in error messages.
	Path string
	// Rel is the path relative to the source base, e.g. "blog/post.html".
	Rel string
	// Body is the page source without front matter.
	Body string
	// BodyLine is the line of the source the body starts on.
	BodyLine int
	// Data is the decoded front matter.
	Data map[string]interface{}
}

// Name is the page name helpers compare against: the base name without
// extension.
func (p *Page) Name() string {
	base := path.Base(p.Rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Root is the relative path from the page back to the site root, "" for
// top-level pages and "../" per directory level otherwise.
func (p *Page) Root() string {
	dir := path.Dir(p.Rel)
	if dir == "." || dir == "" {
		return ""
	}
	return strings.Repeat("../", strings.Count(dir, "/")+1)
}

var frontMatterDelim = []byte("---")

// ParsePage splits src into front matter and body.
func ParsePage(filePath, rel string, src []byte) (*Page, error) {
	page := &Page{Path: filePath, Rel: rel, Body: string(src), BodyLine: 1, Data: map[string]interface{}{}}

	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	first, rest, found := bytes.Cut(src, []byte("\n"))
	if !found || !bytes.Equal(bytes.TrimRight(first, " \t\r"), frontMatterDelim) {
		page.Body = string(src)
		return page, nil
	}

	lines := 1
	var matter []byte
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = bytes.Cut(rest, []byte("\n"))
		lines++
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), frontMatterDelim) {
			if len(bytes.TrimSpace(matter)) > 0 {
				if err := yaml.Unmarshal(matter, &page.Data); err != nil {
					return nil, frontMatterError(filePath, err)
				}
			}
			if page.Data == nil {
				page.Data = map[string]interface{}{}
			}
			page.Body = string(rest)
			page.BodyLine = lines + 1
			return page, nil
		}
		matter = append(matter, line...)
		matter = append(matter, '\n')
	}

	return nil, &sitekiterrors.BuildError{
		Task:     "html",
		File:     filePath,
		Line:     1,
		Message:  "front matter is not closed",
		Severity: sitekiterrors.ErrorSeverityError,
	}
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func frontMatterError(file string, err error) error {
	be := sitekiterrors.NewBuildError("html", file, err)
	be.Message = "front matter: " + err.Error()
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		// +1 for the opening delimiter.
		be.Line = n + 1
	}
	return be
}

// Render renders page into its layout.
func (r *Renderer) Render(page *Page) (string, error) {
	layoutName := r.opts.DefaultLayout
	if v, ok := page.Data["layout"]; ok {
		layoutName = fmt.Sprint(v)
	}

	r.mu.RLock()
	layoutSrc, ok := r.layouts[layoutName]
	partials := r.partials
	r.mu.RUnlock()
	if !ok {
		return "", &sitekiterrors.BuildError{
			Task:     "html",
			File:     page.Path,
			Message:  fmt.Sprintf("layout %q does not exist in %s", layoutName, r.opts.Layouts),
			Severity: sitekiterrors.ErrorSeverityError,
		}
	}

	body := joinPageArgs(page.Body)

	// Parse the body on its own first so syntax errors point at the page.
	if _, err := raymond.Parse(body); err != nil {
		return "", templateError(page.Path, page.BodyLine, err)
	}

	tpl, err := raymond.Parse(layoutSrc)
	if err != nil {
		return "", templateError(path.Join(r.opts.Layouts, layoutName), 1, err)
	}
	tpl.RegisterPartials(partials)
	tpl.RegisterPartial(BodyPartial, body)
	registerHelpers(tpl, page.Name())

	data := make(map[string]interface{}, len(page.Data)+3)
	for k, v := range page.Data {
		data[k] = v
	}
	data["page"] = page.Name()
	data["root"] = page.Root()
	data["layout"] = layoutName

	out, err := tpl.Exec(data)
	if err != nil {
		return "", templateError(page.Path, page.BodyLine, err)
	}
	return out, nil
}

var raymondLine = regexp.MustCompile(`(?i)line (\d+)`)

func templateError(file string, offset int, err error) error {
	be := sitekiterrors.NewBuildError("html", file, err)
	if m := raymondLine.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		be.Line = n + offset - 1
	}
	return be
}

func registerHelpers(tpl *raymond.Template, page string) {
	// {{#ifpage "index,about"}} or {{#ifpage "index" "about"}}, see joinPageArgs.
	tpl.RegisterHelper("ifpage", func(pages string, options *raymond.Options) string {
		if matchesPage(page, pages) {
			return options.Fn()
		}
		return options.Inverse()
	})
	tpl.RegisterHelper("unlesspage", func(pages string, options *raymond.Options) string {
		if !matchesPage(page, pages) {
			return options.Fn()
		}
		return options.Inverse()
	})
	tpl.RegisterHelper("titlecase", func(s string) string {
		return cases.Title(language.English).String(s)
	})
	tpl.RegisterHelper("year", func() string {
		return strconv.Itoa(time.Now().Year())
	})
}

var (
	pageHelperCall = regexp.MustCompile(`\{\{(~?#?)\s*(ifpage|unlesspage)((?:\s+(?:"[^"]*"|'[^']*')){2,})\s*(~?)\}\}`)
	quotedArg      = regexp.MustCompile(`"[^"]*"|'[^']*'`)
)

// joinPageArgs rewrites {{#ifpage 'a' 'b'}} into {{#ifpage "a,b"}}. Helpers
// have a fixed arity, so every page list reaches them as one argument.
func joinPageArgs(src string) string {
	return pageHelperCall.ReplaceAllStringFunc(src, func(call string) string {
		m := pageHelperCall.FindStringSubmatch(call)
		args := quotedArg.FindAllString(m[3], -1)
		pages := make([]string, len(args))
		for i, a := range args {
			pages[i] = a[1 : len(a)-1]
		}
		return "{{" + m[1] + m[2] + ` "` + strings.Join(pages, ",") + `"` + m[4] + "}}"
	})
}

func matchesPage(page, pages string) bool {
	for _, p := range strings.Split(pages, ",") {
		if strings.TrimSpace(p) == page {
			return true
		}
	}
	return false
}
