package renderer

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
)

func newTestRenderer(t *testing.T, files map[string]string) *Renderer {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	r := New(fs, Options{Layouts: "src/layouts", Partials: "src/partials"})
	require.NoError(t, r.Refresh())
	return r
}

func TestParsePage(t *testing.T) {
	src := "---\ntitle: Hello\nlayout: post\ntags: [a, b]\n---\n<h1>{{title}}</h1>\n"
	page, err := ParsePage("src/index.html", "index.html", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Hello", page.Data["title"])
	assert.Equal(t, "post", page.Data["layout"])
	assert.Equal(t, []interface{}{"a", "b"}, page.Data["tags"])
	assert.Equal(t, "<h1>{{title}}</h1>\n", page.Body)
	assert.Equal(t, 6, page.BodyLine)
	assert.Equal(t, "index", page.Name())
	assert.Equal(t, "", page.Root())
}

func TestParsePageWithoutFrontMatter(t *testing.T) {
	page, err := ParsePage("src/about.html", "about.html", []byte("<p>about</p>"))
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, "<p>about</p>", page.Body)
	assert.Equal(t, 1, page.BodyLine)
}

func TestParsePageErrors(t *testing.T) {
	_, err := ParsePage("src/a.html", "a.html", []byte("---\ntitle: x\n<p>never closed</p>\n"))
	var be *sitekiterrors.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "src/a.html", be.File)
	assert.Contains(t, be.Message, "not closed")

	_, err = ParsePage("src/b.html", "b.html", []byte("---\ntitle: [unterminated\n---\nbody"))
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "src/b.html", be.File)
	assert.Contains(t, be.Message, "front matter")
}

func TestPageRoot(t *testing.T) {
	tests := []struct {
		rel  string
		root string
	}{
		{"index.html", ""},
		{"blog/post.html", "../"},
		{"blog/2024/post.html", "../../"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			p := &Page{Rel: tt.rel}
			assert.Equal(t, tt.root, p.Root())
		})
	}
}

func TestRenderWrapsPageInLayout(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"src/layouts/default.html":     "<html><head><title>{{title}}</title></head><body>{{> header}}{{> body}}</body></html>",
		"src/partials/header.html":     "<header>{{titlecase title}}</header>",
		"src/partials/nav/links.html":  "<nav>links</nav>",
		"src/partials/ignored.txt":     "not a template",
		"src/layouts/nested/skip.html": "skipped",
	})

	assert.Equal(t, []string{"default"}, r.Layouts())

	page, err := ParsePage("src/index.html", "index.html", []byte("---\ntitle: hello world\n---\n<main>{{> links}} {{page}}</main>"))
	require.NoError(t, err)

	out, err := r.Render(page)
	require.NoError(t, err)
	assert.Equal(t,
		"<html><head><title>hello world</title></head><body><header>Hello World</header><main><nav>links</nav> index</main></body></html>",
		out)
}

func TestRenderHelpers(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"src/layouts/default.html": `{{#ifpage "index,about"}}home{{else}}other{{/ifpage}}|{{#unlesspage "index"}}not-index{{/unlesspage}}|{{year}}|{{root}}`,
	})

	index, err := ParsePage("src/index.html", "index.html", []byte("x"))
	require.NoError(t, err)
	out, err := r.Render(index)
	require.NoError(t, err)
	assert.Equal(t, "home||"+strconv.Itoa(time.Now().Year())+"|", out)

	post, err := ParsePage("src/blog/post.html", "blog/post.html", []byte("x"))
	require.NoError(t, err)
	out, err = r.Render(post)
	require.NoError(t, err)
	assert.Equal(t, "other|not-index|"+strconv.Itoa(time.Now().Year())+"|../", out)
}

func TestRenderPageHelpersTakeSeveralPages(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"src/layouts/default.html": `{{#ifpage 'index' 'about'}}NAV{{/ifpage}}{{> body}}{{> footer}}`,
		"src/partials/footer.html": `{{#unlesspage "index" "about"}}|foot{{/unlesspage}}`,
	})

	tests := []struct {
		file string
		body string
		want string
	}{
		{"about.html", `:{{#unlesspage 'index' 'blog'}}not-listed{{/unlesspage}}`, "NAV:not-listed"},
		{"index.html", `:{{#ifpage "contact" "index"}}home{{/ifpage}}`, "NAV:home"},
		{"contact.html", `:x`, ":x|foot"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			page, err := ParsePage("src/"+tt.file, tt.file, []byte(tt.body))
			require.NoError(t, err)
			out, err := r.Render(page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestJoinPageArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{{#ifpage 'index' 'about'}}`, `{{#ifpage "index,about"}}`},
		{`{{~#unlesspage "a"  'b' "c" ~}}`, `{{~#unlesspage "a,b,c"~}}`},
		{`{{#ifpage "index,about"}}`, `{{#ifpage "index,about"}}`},
		{`{{#ifpage 'index'}}`, `{{#ifpage 'index'}}`},
		{`{{#if a}}{{title}}{{/if}}`, `{{#if a}}{{title}}{{/if}}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPageArgs(tt.in), tt.in)
	}
}

func TestRenderSelectsLayoutFromFrontMatter(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"src/layouts/default.html": "default:{{> body}}",
		"src/layouts/post.html":    "post:{{> body}}:{{layout}}",
	})

	page, err := ParsePage("src/a.html", "a.html", []byte("---\nlayout: post\n---\nbody"))
	require.NoError(t, err)
	out, err := r.Render(page)
	require.NoError(t, err)
	assert.Equal(t, "post:body:post", out)
}

func TestRenderMissingLayout(t *testing.T) {
	r := newTestRenderer(t, map[string]string{})
	page, err := ParsePage("src/a.html", "a.html", []byte("body"))
	require.NoError(t, err)

	_, err = r.Render(page)
	var be *sitekiterrors.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "src/a.html", be.File)
	assert.Contains(t, be.Message, `layout "default" does not exist`)
}

func TestRenderTemplateSyntaxError(t *testing.T) {
	r := newTestRenderer(t, map[string]string{
		"src/layouts/default.html": "{{> body}}",
	})
	page, err := ParsePage("src/a.html", "a.html", []byte("---\ntitle: x\n---\n{{#if title}}open"))
	require.NoError(t, err)

	_, err = r.Render(page)
	var be *sitekiterrors.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "html", be.Task)
	assert.Equal(t, "src/a.html", be.File)
}

func TestRefreshPicksUpChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "src/layouts/default.html", []byte("v1 {{> body}}"), 0o644))
	r := New(fs, Options{Layouts: "src/layouts", Partials: "src/partials"})
	require.NoError(t, r.Refresh())

	page := &Page{Path: "src/a.html", Rel: "a.html", Body: "x", BodyLine: 1, Data: map[string]interface{}{}}
	out, err := r.Render(page)
	require.NoError(t, err)
	assert.Equal(t, "v1 x", out)

	require.NoError(t, afero.WriteFile(fs, "src/layouts/default.html", []byte("v2 {{> body}}"), 0o644))
	require.NoError(t, r.Refresh())
	out, err = r.Render(page)
	require.NoError(t, err)
	assert.Equal(t, "v2 x", out)
}

func TestRefreshRejectsBodyPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "src/partials/body.html", []byte("x"), 0o644))
	r := New(fs, Options{Layouts: "src/layouts", Partials: "src/partials"})
	assert.Error(t, r.Refresh())
}
