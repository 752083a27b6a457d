package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *BuildError
		want string
	}{
		{
			name: "full location",
			err:  &BuildError{Task: "styles", File: "src/scss/main.scss", Line: 4, Column: 2, Message: "expected }"},
			want: "styles: src/scss/main.scss:4:2: expected }",
		},
		{
			name: "line only",
			err:  &BuildError{Task: "html", File: "src/index.html", Line: 3, Message: "bad front matter"},
			want: "html: src/index.html:3: bad front matter",
		},
		{
			name: "no file",
			err:  &BuildError{Task: "clean", Message: "permission denied"},
			want: "clean: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestBuildErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewBuildError("fonts", "src/fonts/a.woff", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorSeverityError, err.Severity)
	assert.False(t, err.Timestamp.IsZero())
}

func TestAsBuildErrors(t *testing.T) {
	assert.Nil(t, AsBuildErrors("x", nil))

	many := BuildErrors{
		{Task: "scripts", Message: "one"},
		{Task: "scripts", Message: "two"},
	}
	wrapped := fmt.Errorf("scripts failed: %w", many)
	assert.Len(t, AsBuildErrors("scripts", wrapped), 2)

	single := fmt.Errorf("wrap: %w", &BuildError{Task: "html", Message: "x"})
	got := AsBuildErrors("html", single)
	require.Len(t, got, 1)
	assert.Equal(t, "html", got[0].Task)

	plain := AsBuildErrors("images", errors.New("decode failed"))
	require.Len(t, plain, 1)
	assert.Equal(t, "images", plain[0].Task)
	assert.Equal(t, "decode failed", plain[0].Message)
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	assert.False(t, ec.HasErrors())
	assert.Empty(t, ec.ErrorOverlay())

	ec.Set("styles", []*BuildError{{Task: "styles", Message: "bad <scss>"}})
	ec.Set("html", []*BuildError{{Task: "html", Message: "missing layout"}})
	require.True(t, ec.HasErrors())

	errs := ec.GetErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, "html", errs[0].Task)
	assert.Equal(t, "styles", errs[1].Task)

	overlay := ec.ErrorOverlay()
	assert.Contains(t, overlay, "sitekit-error-overlay")
	assert.Contains(t, overlay, "bad &lt;scss&gt;")

	ec.Clear("styles")
	ec.Clear("html")
	assert.False(t, ec.HasErrors())
}
