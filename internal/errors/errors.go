// Package errors holds the build error type reported by pipeline tasks and
// the collector that feeds the browser error overlay.
package errors

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
)

// BuildError represents a build error
type BuildError struct {
	Task      string        `json:"task"`
	File      string        `json:"file,omitempty"`
	Line      int           `json:"line,omitempty"`
	Column    int           `json:"column,omitempty"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	Cause     error         `json:"-"`
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText lets severities render as words in JSON status output.
func (s ErrorSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NewBuildError wraps cause as an error-severity BuildError for task and file.
func NewBuildError(task, file string, cause error) *BuildError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &BuildError{
		Task:      task,
		File:      file,
		Message:   msg,
		Severity:  ErrorSeverityError,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Location returns "file:line:col", dropping parts that are unknown.
func (be *BuildError) Location() string {
	switch {
	case be.File == "":
		return ""
	case be.Line == 0:
		return be.File
	case be.Column == 0:
		return fmt.Sprintf("%s:%d", be.File, be.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", be.File, be.Line, be.Column)
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	var b strings.Builder
	if be.Task != "" {
		b.WriteString(be.Task)
		b.WriteString(": ")
	}
	if loc := be.Location(); loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
	}
	b.WriteString(be.Message)
	return b.String()
}

// Unwrap exposes the underlying library error.
func (be *BuildError) Unwrap() error {
	return be.Cause
}

// BuildErrors is the error returned when one library call reports several
// problems at once (esbuild and front matter parsing both can).
type BuildErrors []*BuildError

func (be BuildErrors) Error() string {
	msgs := make([]string, len(be))
	for i, e := range be {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// AsBuildErrors flattens err into the BuildErrors it carries. Errors that are
// not build errors are wrapped under task.
func AsBuildErrors(task string, err error) []*BuildError {
	if err == nil {
		return nil
	}
	var many BuildErrors
	if errors.As(err, &many) {
		return many
	}
	var one *BuildError
	if errors.As(err, &one) {
		return []*BuildError{one}
	}
	return []*BuildError{NewBuildError(task, "", err)}
}

// ErrorCollector keeps the latest failure of each task so the dev server can
// show them until the task succeeds again.
type ErrorCollector struct {
	byTask map[string][]*BuildError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{byTask: make(map[string][]*BuildError)}
}

// Set replaces the errors recorded for task.
func (ec *ErrorCollector) Set(task string, errs []*BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if len(errs) == 0 {
		delete(ec.byTask, task)
		return
	}
	ec.byTask[task] = errs
}

// Clear forgets the errors of task.
func (ec *ErrorCollector) Clear(task string) {
	ec.Set(task, nil)
}

// GetErrors returns all collected errors ordered by task name.
func (ec *ErrorCollector) GetErrors() []*BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	names := make([]string, 0, len(ec.byTask))
	for name := range ec.byTask {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []*BuildError
	for _, name := range names {
		result = append(result, ec.byTask[name]...)
	}
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.byTask) > 0
}

// ErrorOverlay generates HTML for the error overlay. Empty when there are no
// errors.
func (ec *ErrorCollector) ErrorOverlay() string {
	return FormatErrorsForBrowser(ec.GetErrors())
}

// FormatErrorsForBrowser renders errs as an HTML fragment for the live reload
// client to drop into the page.
func FormatErrorsForBrowser(errs []*BuildError) string {
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div id="sitekit-error-overlay" style="position:fixed;top:0;left:0;width:100%;height:100%;` +
		`background:rgba(0,0,0,.85);color:#fff;font:14px Menlo,Monaco,monospace;z-index:99999;` +
		`padding:20px;box-sizing:border-box;overflow:auto">`)
	b.WriteString(`<h2 style="margin:0 0 20px;color:#ff6b6b">Build Errors</h2>`)

	for _, err := range errs {
		color := "#ff6b6b"
		switch err.Severity {
		case ErrorSeverityWarning:
			color = "#feca57"
		case ErrorSeverityInfo:
			color = "#48dbfb"
		}
		fmt.Fprintf(&b, `<div style="background:#2d3748;padding:15px;margin-bottom:15px;border-left:4px solid %s">`, color)
		fmt.Fprintf(&b, `<div style="color:%s;font-weight:bold">%s &middot; %s</div>`,
			color, html.EscapeString(err.Task), err.Severity)
		if loc := err.Location(); loc != "" {
			fmt.Fprintf(&b, `<div style="color:#a0aec0;font-size:12px">%s</div>`, html.EscapeString(loc))
		}
		fmt.Fprintf(&b, `<pre style="white-space:pre-wrap;margin:8px 0 0">%s</pre>`, html.EscapeString(err.Message))
		b.WriteString(`</div>`)
	}

	b.WriteString(`</div>`)
	return b.String()
}
