package server

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// clientTag loads the live reload client.
var clientTag = []byte(`<script src="` + ClientPath + `"></script>`)

// injectClient inserts the client script before the last closing body tag,
// or appends it when the page has none.
func injectClient(page []byte) []byte {
	at := closingBody(page)
	if at < 0 {
		out := make([]byte, 0, len(page)+len(clientTag))
		out = append(out, page...)
		return append(out, clientTag...)
	}

	out := make([]byte, 0, len(page)+len(clientTag))
	out = append(out, page[:at]...)
	out = append(out, clientTag...)
	return append(out, page[at:]...)
}

// closingBody returns the offset of the last </body> token, or -1.
func closingBody(page []byte) int {
	z := html.NewTokenizer(bytes.NewReader(page))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				found = offset
			}
		}
		offset += raw
	}
}
