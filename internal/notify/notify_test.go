package notify

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitekit/internal/build"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
	"github.com/conneroisu/sitekit/internal/logging"
)

type sent struct {
	title, body string
}

func fakeDesktop(fail error) (*Desktop, *[]sent) {
	var got []sent
	return &Desktop{
		logger: logging.NopLogger{},
		send: func(title, message string, _ any) error {
			got = append(got, sent{title, message})
			return fail
		},
	}, &got
}

func TestNotifyOnlyOnErrors(t *testing.T) {
	d, got := fakeDesktop(nil)

	d.Notify(build.Event{Task: build.TaskHTML, Kind: build.EventReload})
	d.Notify(build.Event{Task: build.TaskStyles, Kind: build.EventCSS, Recovered: true})
	assert.Empty(t, *got)

	be := sitekiterrors.NewBuildError(build.TaskStyles, "src/scss/main.scss", errors.New("Undefined variable: \"$brand\"."))
	be.Line, be.Column = 4, 10
	d.Notify(build.Event{Task: build.TaskStyles, Kind: build.EventError, Errors: []*sitekiterrors.BuildError{be}})

	require.Len(t, *got, 1)
	assert.Equal(t, "sitekit: 'styles' failed", (*got)[0].title)
	assert.Equal(t, "src/scss/main.scss:4:10\nUndefined variable: \"$brand\".", (*got)[0].body)
}

func TestNotifyFailureIsNotFatal(t *testing.T) {
	d, got := fakeDesktop(errors.New("no notification daemon"))
	assert.NotPanics(t, func() {
		d.Notify(build.Event{Task: build.TaskScripts, Kind: build.EventError})
	})
	assert.Len(t, *got, 1)
}

func TestMessage(t *testing.T) {
	_, body := Message(build.Event{Task: "fonts", Kind: build.EventError})
	assert.Equal(t, "See the terminal for details.", body)

	errs := []*sitekiterrors.BuildError{
		sitekiterrors.NewBuildError("html", "", errors.New("first")),
		sitekiterrors.NewBuildError("html", "", errors.New("second")),
		sitekiterrors.NewBuildError("html", "", errors.New("third")),
	}
	_, body = Message(build.Event{Task: "html", Kind: build.EventError, Errors: errs})
	assert.Equal(t, "first\n(+2 more)", body)

	long := sitekiterrors.NewBuildError("html", "", errors.New(strings.Repeat("x", 500)))
	_, body = Message(build.Event{Task: "html", Kind: build.EventError, Errors: []*sitekiterrors.BuildError{long}})
	assert.Len(t, body, maxBody)
	assert.True(t, strings.HasSuffix(body, "..."))

	// 'é' is two bytes: the cut falls inside a rune and moves back to its start.
	wide := sitekiterrors.NewBuildError("html", "", errors.New(strings.Repeat("é", 300)))
	_, body = Message(build.Event{Task: "html", Kind: build.EventError, Errors: []*sitekiterrors.BuildError{wide}})
	assert.True(t, utf8.ValidString(body))
	assert.LessOrEqual(t, len(body), maxBody)
	assert.Equal(t, strings.Repeat("é", (maxBody-4)/2)+"...", body)
}
