package build

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	minhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	minjson "github.com/tdewolff/minify/v2/json"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/tdewolff/minify/v2/xml"

	"github.com/conneroisu/sitekit/internal/config"
)

// Media types handed to the minifier.
const (
	mediaHTML = "text/html"
	mediaSVG  = "image/svg+xml"
	mediaJSON = "application/json"
	mediaXML  = "text/xml"
)

func newMinifier(cfg config.HTMLConfig) *minify.M {
	m := minify.New()
	m.Add(mediaHTML, &minhtml.Minifier{
		KeepComments:        !cfg.RemoveComments,
		KeepWhitespace:      !cfg.CollapseWhitespace,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	// Inline <style> and <script> blocks.
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	m.AddFunc(mediaSVG, svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`[/+]json$`), minjson.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`[/+]xml$`), xml.Minify)
	return m
}
